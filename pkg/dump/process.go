package dump

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type (
	// ProcessConfig describes an external dump or restore command.
	ProcessConfig struct {
		Binary string   `mapstructure:"binary"`
		Args   []string `mapstructure:"args"`
		// Env entries in KEY=VALUE form, added to the current environment
		Env []string `mapstructure:"env"`
	}
	// Process exports by streaming the stdout of a command and imports by feeding its stdin.
	Process struct {
		l   *zap.Logger
		cfg ProcessConfig
	}
)

// NewProcess creates a process exporter and importer.
func NewProcess(l *zap.Logger, cfg ProcessConfig) *Process {
	return &Process{
		l:   l.Named("process"),
		cfg: cfg,
	}
}

// DumpCommand returns the default command writing an SQL dump of the database to stdout.
func DumpCommand(db DatabaseConfig) (ProcessConfig, error) {
	switch db.Driver {
	case DriverSQLite:
		return ProcessConfig{Binary: "sqlite3", Args: []string{sqlitePath(db.DSN), ".dump"}}, nil
	case DriverPostgres:
		dsn, env := postgresCredentials(db.DSN)
		return ProcessConfig{Binary: "pg_dump", Args: []string{"--dbname", dsn}, Env: env}, nil
	default:
		return ProcessConfig{}, errors.Errorf("no dump command for database driver %q", db.Driver)
	}
}

// RestoreCommand returns the default command reading an SQL dump from stdin.
func RestoreCommand(db DatabaseConfig) (ProcessConfig, error) {
	switch db.Driver {
	case DriverSQLite:
		return ProcessConfig{Binary: "sqlite3", Args: []string{sqlitePath(db.DSN)}}, nil
	case DriverPostgres:
		dsn, env := postgresCredentials(db.DSN)
		return ProcessConfig{Binary: "psql", Args: []string{"--quiet", "--single-transaction", "--dbname", dsn}, Env: env}, nil
	default:
		return ProcessConfig{}, errors.Errorf("no restore command for database driver %q", db.Driver)
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Binary returns the configured executable.
func (p *Process) Binary() string {
	return p.cfg.Binary
}

func (p *Process) Export(ctx context.Context, w io.Writer) error {
	cmd, stderr, err := p.command(ctx)
	if err != nil {
		return err
	}
	cmd.Stdout = w
	return p.run(cmd, stderr)
}

func (p *Process) Import(ctx context.Context, r io.Reader) error {
	cmd, stderr, err := p.command(ctx)
	if err != nil {
		return err
	}
	cmd.Stdin = r
	cmd.Stdout = io.Discard
	return p.run(cmd, stderr)
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (p *Process) command(ctx context.Context) (*exec.Cmd, *bytes.Buffer, error) {
	if p.cfg.Binary == "" {
		return nil, nil, errors.New("no binary configured")
	}
	cmd := exec.CommandContext(ctx, p.cfg.Binary, p.cfg.Args...)
	if len(p.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), p.cfg.Env...)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return cmd, stderr, nil
}

func (p *Process) run(cmd *exec.Cmd, stderr *bytes.Buffer) error {
	p.l.Info("running command", zap.String("binary", p.cfg.Binary), zap.Strings("args", redactArgs(p.cfg.Args)))
	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, exec.ErrNotFound):
		return errors.Wrapf(err, "you appear not to have %q installed or on your path", p.cfg.Binary)
	case errors.As(err, &exitErr):
		return errors.Errorf("%q returned non-zero exit status %d: %s",
			p.cfg.Binary, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
	default:
		return errors.Wrapf(err, "failed to run %q", p.cfg.Binary)
	}
}

// sqlitePath strips the URI form of a sqlite DSN down to the file path.
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}
