package cmd

import (
	"context"

	"github.com/foomo/caretaker/pkg/handler"
	"github.com/foomo/keel"
	"github.com/foomo/keel/healthz"
	"github.com/foomo/keel/net/http/middleware"
	"github.com/foomo/keel/service"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func NewServeCommand(root *viper.Viper) *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start http server listing and serving backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svr := keel.NewServer(
				keel.WithHTTPPrometheusService(servicePrometheusEnabledFlag(v)),
				keel.WithHTTPHealthzService(serviceHealthzEnabledFlag(v)),
				keel.WithPrometheusMeter(servicePrometheusEnabledFlag(v)),
				keel.WithGracefulPeriod(gracefulPeriodFlag(v)),
				keel.WithOTLPGRPCTracer(otelEnabledFlag(v)),
			)

			l := svr.Logger()

			a, err := newApp(cmd.Context(), l, root)
			if err != nil {
				return err
			}
			bucket, err := a.bucket()
			if err != nil {
				_ = a.Close()
				return err
			}

			auth, err := a.cfg.Auth.Middlewares()
			if err != nil {
				_ = a.Close()
				return err
			}
			if a.cfg.Auth.Disabled {
				l.Warn("serving backups without authentication")
			}

			svr.AddReadinessHealthzers(healthz.NewHealthzerFn(func(ctx context.Context) error {
				_, err := a.backend.Versions(ctx, bucket, a.cfg.DataFile)
				return err
			}))

			svr.AddClosers(func(ctx context.Context) error {
				return a.Close()
			})

			svr.AddServices(
				service.NewHTTP(l.Named("svc.http"), "http", addressFlag(v),
					handler.NewHTTP(l.Named("inst.handler"), a.frontend, a.backend, bucket,
						handler.WithBasePath(basePathFlag(v)),
						handler.WithKeys(a.cfg.DataFile, a.cfg.ArchiveFile),
					),
					append(auth,
						middleware.Telemetry(),
						middleware.Logger(),
						middleware.Recover(),
					)...,
				),
			)

			if scheduleEnabledFlag(v) {
				s, err := newScheduler(a)
				if err != nil {
					_ = a.Close()
					return err
				}
				svr.AddServices(
					service.NewGoRoutine(l.Named("go.scheduler"), "scheduler", func(ctx context.Context, l *zap.Logger) error {
						return s.Run(ctx)
					}),
				)
			}

			svr.Run()
			return nil
		},
	}

	flags := cmd.Flags()
	addAddressFlag(flags, v)
	addBasePathFlag(flags, v)
	addGracefulPeriodFlag(flags, v)
	addOtelEnabledFlag(flags, v)
	addServiceHealthzEnabledFlag(flags, v)
	addServicePrometheusEnabledFlag(flags, v)
	addScheduleEnabledFlag(flags, v)

	return cmd
}
