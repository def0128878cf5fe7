package dump

import (
	"context"
	"database/sql"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	// register the supported database drivers
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type (
	// DatabaseConfig selects the database to snapshot.
	DatabaseConfig struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	}
	// Snapshot is the JSON document written by SQL.Export.
	Snapshot struct {
		Driver string  `json:"driver"`
		Tables []Table `json:"tables"`
	}
	Table struct {
		Name    string   `json:"name"`
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	// SQL snapshots all user tables of a database as JSON and loads them back.
	SQL struct {
		l      *zap.Logger
		db     *sql.DB
		driver string
	}
)

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// OpenSQL opens the configured database.
func OpenSQL(l *zap.Logger, cfg DatabaseConfig) (*SQL, error) {
	if err := validateDriver(cfg.Driver); err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is required")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", cfg.Driver)
	}
	return NewSQL(l, db, cfg.Driver)
}

// NewSQL wraps an open database. driver must be DriverSQLite or DriverPostgres.
func NewSQL(l *zap.Logger, db *sql.DB, driver string) (*SQL, error) {
	if err := validateDriver(driver); err != nil {
		return nil, err
	}
	return &SQL{
		l:      l.Named("sql"),
		db:     db,
		driver: driver,
	}, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// DB returns the underlying database.
func (s *SQL) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *SQL) Close() error {
	return s.db.Close()
}

// Export writes a snapshot of all tables, read inside a single transaction.
func (s *SQL) Export(ctx context.Context, w io.Writer) error {
	tx, err := s.db.BeginTx(ctx, s.snapshotTxOptions())
	if err != nil {
		return errors.Wrap(err, "failed to begin snapshot transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	names, err := s.tables(ctx, tx)
	if err != nil {
		return err
	}

	snapshot := Snapshot{Driver: s.driver, Tables: make([]Table, 0, len(names))}
	for _, name := range names {
		table, err := s.readTable(ctx, tx, name)
		if err != nil {
			return err
		}
		snapshot.Tables = append(snapshot.Tables, table)
	}

	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		return errors.Wrap(err, "failed to write snapshot")
	}
	s.l.Info("exported snapshot", zap.Int("tables", len(snapshot.Tables)))
	return nil
}

// Import replaces the contents of every table in the snapshot inside a single transaction.
// Tables must exist, tables not in the snapshot are left untouched.
func (s *SQL) Import(ctx context.Context, r io.Reader) (err error) {
	var snapshot Snapshot
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&snapshot); err != nil {
		return errors.Wrap(err, "failed to decode snapshot")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin import transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var rows int
	for _, table := range snapshot.Tables {
		if err := s.writeTable(ctx, tx, table); err != nil {
			return err
		}
		rows += len(table.Rows)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit import")
	}
	s.l.Info("imported snapshot", zap.Int("tables", len(snapshot.Tables)), zap.Int("rows", rows))
	return nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (s *SQL) snapshotTxOptions() *sql.TxOptions {
	if s.driver == DriverPostgres {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	// sqlite transactions are serializable
	return nil
}

func (s *SQL) tables(ctx context.Context, tx *sql.Tx) ([]string, error) {
	query := `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	if s.driver == DriverPostgres {
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`
	}
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tables")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to list tables")
		}
		names = append(names, name)
	}
	return names, errors.Wrap(rows.Err(), "failed to list tables")
}

func (s *SQL) readTable(ctx context.Context, tx *sql.Tx, name string) (Table, error) {
	rows, err := tx.QueryContext(ctx, "SELECT * FROM "+quoteIdent(name))
	if err != nil {
		return Table{}, errors.Wrapf(err, "failed to read table %s", name)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Table{}, errors.Wrapf(err, "failed to read columns of %s", name)
	}

	table := Table{Name: name, Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Table{}, errors.Wrapf(err, "failed to read row of %s", name)
		}
		for i, v := range values {
			// drivers return text columns as bytes
			if b, ok := v.([]byte); ok && utf8.Valid(b) {
				values[i] = string(b)
			}
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return Table{}, errors.Wrapf(err, "failed to read table %s", name)
	}
	s.l.Debug("read table", zap.String("table", name), zap.Int("rows", len(table.Rows)))
	return table, nil
}

func (s *SQL) writeTable(ctx context.Context, tx *sql.Tx, table Table) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+quoteIdent(table.Name)); err != nil {
		return errors.Wrapf(err, "failed to clear table %s", table.Name)
	}
	if len(table.Rows) == 0 {
		return nil
	}

	columns := make([]string, len(table.Columns))
	placeholders := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		columns[i] = quoteIdent(c)
		placeholders[i] = s.placeholder(i + 1)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+quoteIdent(table.Name)+
		" ("+strings.Join(columns, ", ")+") VALUES ("+strings.Join(placeholders, ", ")+")")
	if err != nil {
		return errors.Wrapf(err, "failed to prepare insert into %s", table.Name)
	}
	defer stmt.Close()

	for i, row := range table.Rows {
		if len(row) != len(table.Columns) {
			return errors.Errorf("row %d of %s has %d values, expected %d", i, table.Name, len(row), len(table.Columns))
		}
		args := make([]any, len(row))
		for j, v := range row {
			args[j] = importValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.Wrapf(err, "failed to insert row %d into %s", i, table.Name)
		}
	}
	s.l.Debug("wrote table", zap.String("table", table.Name), zap.Int("rows", len(table.Rows)))
	return nil
}

func (s *SQL) placeholder(n int) string {
	if s.driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// importValue converts decoded JSON numbers to int64 or float64.
func importValue(v any) any {
	n, ok := v.(number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func validateDriver(driver string) error {
	switch driver {
	case DriverSQLite, DriverPostgres:
		return nil
	default:
		return errors.Errorf("unsupported database driver %q", driver)
	}
}
