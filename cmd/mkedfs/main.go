// Command mkedfs creates a fresh EdFS image.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	goedfs "github.com/edfs/go-edfs"
	"github.com/edfs/go-edfs/filesystem/edfs"
)

func main() {
	app := &cli.App{
		Name:      "mkedfs",
		Usage:     "create an EdFS image",
		ArgsUsage: "IMAGE_FILE SIZE",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  "block-size",
				Usage: "bytes per data block",
				Value: 512,
			},
			&cli.UintFlag{
				Name:  "inodes",
				Usage: "inode table slots (0 picks a size from the block count)",
			},
		},
		Action: format,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatalf("fatal error: %s", err)
	}
}

func format(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected IMAGE_FILE and SIZE arguments, got %d", c.NArg())
	}
	imagePath := c.Args().Get(0)
	size, err := parseSize(c.Args().Get(1))
	if err != nil {
		return err
	}

	fs, err := goedfs.Create(imagePath, size, &edfs.Params{
		BlockSize:  uint32(c.Uint("block-size")),
		InodeCount: uint32(c.Uint("inodes")),
	})
	if err != nil {
		return err
	}
	defer fs.Close()

	stat, err := fs.FSStat()
	if err != nil {
		return err
	}
	logrus.Infof("created %s: %d blocks of %d bytes, %d inodes",
		imagePath, stat.Blocks, stat.BlockSize, stat.Inodes)
	return nil
}

// parseSize reads a byte count with an optional K, M or G suffix
func parseSize(s string) (int64, error) {
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		multiplier = 1 << 10
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		multiplier = 1 << 20
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "G"), strings.HasSuffix(s, "g"):
		multiplier = 1 << 30
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n * multiplier, nil
}
