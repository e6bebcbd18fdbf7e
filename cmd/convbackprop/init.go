package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fxnlabs/convbackprop/fixtures"
)

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write the default config file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Value: defaultConfigPath, Usage: "Where to write the config"},
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
		},
		Action: func(c *cli.Context) error {
			log := c.App.Metadata["logger"].(*zap.Logger)
			path := c.String("output")
			return writeConfig(path, c.Bool("force"), log)
		},
	}
}

func writeConfig(path string, force bool, log *zap.Logger) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.WriteFile(path, fixtures.ConfigTemplate, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	log.Info("config written", zap.String("path", path))
	return nil
}
