package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type (
	// Job is a single scheduled run.
	Job func(ctx context.Context) error
	// Scheduler runs a job on a cron expression, skipping runs while the previous one is still busy.
	Scheduler struct {
		l    *zap.Logger
		spec string
		job  Job
		cron *cron.Cron
	}
)

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// New validates spec, a standard five field cron expression or a descriptor like "@daily".
func New(l *zap.Logger, spec string, job Job) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, errors.Wrapf(err, "invalid schedule %q", spec)
	}
	inst := &Scheduler{
		l:    l.Named("scheduler"),
		spec: spec,
		job:  job,
	}

	logger := cronLogger{l: inst.l.Sugar()}
	inst.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return inst, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Run blocks until ctx is done and waits for a running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		s.run(context.WithoutCancel(ctx))
	}); err != nil {
		return errors.Wrapf(err, "invalid schedule %q", s.spec)
	}

	s.l.Info("scheduler started", zap.String("schedule", s.spec))
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.l.Debug("scheduler stopped", zap.Error(ctx.Err()))
	return nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (s *Scheduler) run(ctx context.Context) {
	start := time.Now()
	l := s.l.With(zap.String("run_id", uuid.New().String()))

	l.Info("scheduled run started")
	if err := s.job(ctx); err != nil {
		l.Error("scheduled run failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	l.Info("scheduled run finished", zap.Duration("duration", time.Since(start)))
}

type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
