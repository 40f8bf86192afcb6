// Command edfuse mounts an EdFS image at a mount point and serves it until
// the filesystem is unmounted.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jacobsa/fuse"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	goedfs "github.com/edfs/go-edfs"
	edfsfs "github.com/edfs/go-edfs/fs"
)

func main() {
	app := &cli.App{
		Name:      "edfuse",
		Usage:     "mount an EdFS image through the host FUSE bridge",
		ArgsUsage: "IMAGE_FILE MOUNT_POINT",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "read-only",
				Aliases: []string{"r"},
				Usage:   "mount the image read-only",
			},
			&cli.StringSliceFlag{
				Name:    "option",
				Aliases: []string{"o"},
				Usage:   "mount options passed through to the bridge (key or key=value, comma separated)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log every filesystem operation error",
			},
		},
		Action: mount,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatalf("fatal error: %s", err)
	}
}

func mount(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected IMAGE_FILE and MOUNT_POINT arguments, got %d", c.NArg())
	}
	imagePath := c.Args().Get(0)
	mountPoint := c.Args().Get(1)

	logger := logrus.New()
	if c.Bool("debug") {
		logger.SetLevel(logrus.DebugLevel)
	}

	engine, err := goedfs.Open(imagePath, c.Bool("read-only"))
	if err != nil {
		return fmt.Errorf("unable to mount %s: %w", imagePath, err)
	}
	defer engine.Close()

	server, err := edfsfs.NewServer(&edfsfs.ServerConfig{
		Engine: engine,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("unable to create server: %w", err)
	}

	cfg := &fuse.MountConfig{
		FSName:   imagePath,
		Subtype:  "edfs",
		ReadOnly: c.Bool("read-only"),
		Options:  parseOptions(c.StringSlice("option")),
	}

	logger.Infof("mounting %s at %s", imagePath, mountPoint)
	mfs, err := fuse.Mount(mountPoint, server, cfg)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	if err = mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	logger.Infof("unmounted %s", mountPoint)
	return nil
}

// parseOptions splits repeated -o flags of comma separated key[=value]
// pairs, the way mount(8) writes them
func parseOptions(raw []string) map[string]string {
	options := make(map[string]string)
	for _, group := range raw {
		for _, opt := range strings.Split(group, ",") {
			if opt == "" {
				continue
			}
			key, value, _ := strings.Cut(opt, "=")
			options[key] = value
		}
	}
	return options
}
