package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fxnlabs/convbackprop/internal/config"
	"github.com/fxnlabs/convbackprop/internal/logger"
)

const defaultConfigPath = "config.yaml"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		if rootLogger, ok := app.Metadata["logger"].(*zap.Logger); ok {
			rootLogger.Fatal("failed to run app", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func newApp() *cli.App {
	var configPath string
	var rootLogger *zap.Logger

	return &cli.App{
		Name:  "convbackprop",
		Usage: "Compare, time and verify convolutional backprop-errors kernels",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Value:       defaultConfigPath,
				Usage:       "Path to the config file",
				EnvVars:     []string{"CONVBACKPROP_CONFIG"},
				Destination: &configPath,
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(configPath)
			if errors.Is(err, fs.ErrNotExist) && !c.IsSet("config") {
				cfg, err = config.Default(), nil
			}
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config %s: %w", configPath, err)
			}
			zapLogger, err := logger.New(cfg.Logger.Verbosity, cfg.Logger.Encoding)
			if err != nil {
				return err
			}
			rootLogger = zapLogger.Named("cli")
			c.App.Metadata["config"] = cfg
			c.App.Metadata["logger"] = rootLogger
			return nil
		},
		After: func(c *cli.Context) error {
			if rootLogger != nil {
				_ = rootLogger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			compareCommand(),
			perfCommand(),
			checkCommand(),
			deviceCommand(),
			initCommand(),
		},
	}
}
