package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/foomo/caretaker/pkg/scheduler"
	"github.com/foomo/keel/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func NewScheduleCommand(root *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Runs backups on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger(), root)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := newScheduler(a)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return s.Run(ctx)
		},
	}

	addScheduleFlag(cmd.Flags(), root)

	return cmd
}

// newScheduler runs a complete backup on every tick of the configured schedule.
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	bucket, err := a.bucket()
	if err != nil {
		return nil, err
	}
	return scheduler.New(a.l, a.cfg.Schedule, func(ctx context.Context) error {
		result, err := a.frontend.RunBackup(ctx, a.backend, bucket, a.cfg.CreateOptions())
		a.l.Info("backup run",
			zap.String("data", result.Data.String()),
			zap.String("archive", result.Archive.String()),
		)
		return err
	})
}
