package main

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"raspisanie/internal/app"
	"raspisanie/internal/config"
	logx "raspisanie/pkg/logx"
)

const shutdownTimeout = 45 * time.Second

func newRunCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the update worker until interrupted",
		Example: `  raspisanie run --config /etc/raspisanie/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(config.NewConfigManager(f.config))
			if err != nil {
				return err
			}
			log := a.Logger()
			if err := a.Start(ctx); err != nil {
				_ = a.Stop(context.Background(), app.StopFatalError)
				return fmt.Errorf("start: %w", err)
			}
			if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
				log.Warn("sd_notify ready failed", logx.Err(err))
			} else if ok {
				log.Debug("sd_notify ready sent")
			}

			<-ctx.Done()
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.Stop(stopCtx, app.StopSignal)
		},
	}
}

func newOnceCmd(f *rootFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single update cycle and exit",
		Example: `  # re-apply even when the page did not change
  raspisanie once --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(config.NewConfigManager(f.config))
			if err != nil {
				return err
			}
			defer func() { _ = a.Stop(context.Background(), app.StopOnce) }()

			res, err := a.RunOnce(cmd.Context(), force)
			if err != nil {
				return err
			}
			fields := append([]logx.Field{
				logx.String("result", res.Result),
				logx.Duration("took", res.Took),
			}, res.Stats.Fields()...)
			a.Logger().Info("cycle finished", fields...)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "ignore stored fingerprints")
	return cmd
}
