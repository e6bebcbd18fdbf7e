package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/fxnlabs/convbackprop/internal/config"
	"github.com/fxnlabs/convbackprop/internal/gpu"
	"github.com/fxnlabs/convbackprop/internal/metrics"
)

// runtime is what a command needs once the device is up.
type runtime struct {
	cfg     *config.Config
	log     *zap.Logger
	manager *gpu.Manager
	timer   *metrics.Timer
}

func newManager(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gpu.Manager, error) {
	m, err := gpu.NewManager(log.Named("device"), cfg.Device.Preference, cfg.Device.Workers)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return m.Cleanup()
		},
	})
	return m, nil
}

func newTimer() (*metrics.Timer, error) {
	return metrics.NewTimer(prometheus.DefaultRegisterer)
}

// withRuntime selects the configured device, runs fn and releases the device.
func withRuntime(c *cli.Context, fn func(rt *runtime) error) (err error) {
	rt := &runtime{
		cfg: c.App.Metadata["config"].(*config.Config),
		log: c.App.Metadata["logger"].(*zap.Logger),
	}

	app := fx.New(
		fx.Supply(rt.cfg, rt.log),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
		fx.Provide(newManager, newTimer),
		fx.Populate(&rt.manager, &rt.timer),
	)
	if err := app.Err(); err != nil {
		return fmt.Errorf("failed to set up device: %w", err)
	}
	if err := app.Start(c.Context); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		if stopErr := app.Stop(context.Background()); stopErr != nil && err == nil {
			err = fmt.Errorf("failed to release device: %w", stopErr)
		}
	}()

	rt.log.Info("device selected",
		zap.String("backend", rt.manager.GetBackendType()),
		zap.String("name", rt.manager.GetDeviceInfo().Name),
	)
	return fn(rt)
}
