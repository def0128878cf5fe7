package cmd

import (
	"context"

	"github.com/foomo/caretaker/pkg/backend"
	"github.com/foomo/caretaker/pkg/config"
	"github.com/foomo/caretaker/pkg/dump"
	"github.com/foomo/caretaker/pkg/frontend"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// app holds the resolved frontend and backend of a single command run.
type app struct {
	l        *zap.Logger
	cfg      config.Config
	frontend frontend.Frontend
	backend  backend.Backend
	closers  []func() error
}

func newApp(ctx context.Context, l *zap.Logger, v *viper.Viper) (*app, error) {
	cfg, err := config.Load(v, configFlag(v))
	if err != nil {
		return nil, err
	}

	a := &app{l: l, cfg: cfg}
	opts, err := a.standardOptions()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	frontends := frontend.NewFactory(l, cfg.FrontendSettings(), opts...)
	backends := backend.NewFactory(l, cfg.BackendSettings())
	a.frontend, a.backend, err = frontend.FrontendAndBackend(ctx, frontends, backends, "", "")
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if c, ok := a.backend.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	l.Debug("resolved plugins",
		zap.String("frontend", a.frontend.Name()),
		zap.String("backend", a.backend.Name()),
	)
	return a, nil
}

func (a *app) Close() error {
	var err error
	for _, closer := range a.closers {
		err = multierr.Append(err, closer())
	}
	a.closers = nil
	return err
}

func (a *app) bucket() (string, error) {
	if a.cfg.BackupBucket == "" {
		return "", errors.New("no backup bucket configured")
	}
	return a.cfg.BackupBucket, nil
}

// key returns v or the configured data file name.
func (a *app) key(v string) string {
	if v != "" {
		return v
	}
	return a.cfg.DataFile
}

func (a *app) standardOptions() ([]frontend.StandardOption, error) {
	cfg := a.cfg
	opts := []frontend.StandardOption{
		frontend.StandardWithMediaRoot(cfg.MediaRoot),
		frontend.StandardWithBackupPaths(cfg.AdditionalBackupPaths...),
		frontend.StandardWithRestoreDir(cfg.RestoreDir),
		frontend.StandardWithKeys(cfg.DataFile, cfg.ArchiveFile),
	}

	if cfg.Database.DSN != "" {
		db, err := dump.OpenSQL(a.l, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		opts = append(opts,
			frontend.StandardWithExporter(db),
			frontend.StandardWithImporter(db),
		)
	}

	if export, err := cfg.ExportCommand(); err != nil {
		a.l.Debug("native sql export is not available", zap.Error(err))
	} else {
		opts = append(opts, frontend.StandardWithSQLExporter(dump.NewProcess(a.l, export)))
	}
	if restore, err := cfg.ImportCommand(); err != nil {
		a.l.Debug("native sql import is not available", zap.Error(err))
	} else {
		opts = append(opts, frontend.StandardWithSQLImporter(dump.NewProcess(a.l, restore)))
	}

	return opts, nil
}
