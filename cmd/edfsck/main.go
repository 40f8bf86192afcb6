// Command edfsck checks the structural invariants of an EdFS image.
package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	goedfs "github.com/edfs/go-edfs"
	"github.com/edfs/go-edfs/util"
)

func main() {
	app := &cli.App{
		Name:      "edfsck",
		Usage:     "check an EdFS image for structural problems",
		ArgsUsage: "IMAGE_FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dump-super",
				Usage: "hex dump the superblock before checking",
			},
		},
		Action: check,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatalf("fatal error: %s", err)
	}
}

func check(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected IMAGE_FILE argument, got %d", c.NArg())
	}
	imagePath := c.Args().Get(0)

	if c.Bool("dump-super") {
		if err := dumpSuperblock(imagePath); err != nil {
			return err
		}
	}

	fs, err := goedfs.Open(imagePath, true)
	if err != nil {
		return err
	}
	defer fs.Close()

	err = fs.Check()
	if err == nil {
		logrus.Infof("%s: clean", imagePath)
		return nil
	}

	if merr, ok := err.(*multierror.Error); ok {
		for _, problem := range merr.Errors {
			logrus.Errorf("%s: %s", imagePath, problem)
		}
		return fmt.Errorf("%s: %d problems found", imagePath, len(merr.Errors))
	}
	return err
}

// dumpSuperblock prints the raw superblock region of the image
func dumpSuperblock(imagePath string) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return err
	}
	defer f.Close()

	b := make([]byte, 64)
	if _, err = f.ReadAt(b, 0); err != nil {
		return fmt.Errorf("unable to read superblock: %w", err)
	}
	fmt.Print(util.DumpByteSlice(b, 16))
	return nil
}
