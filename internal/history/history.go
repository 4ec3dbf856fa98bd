// Package history keeps one row per graded run in SQLite or Postgres so
// runs can be listed and browsed without walking run directories.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite

	"github.com/signalnine/gradecheck/internal/result"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// DefaultSQLitePath is used when the sqlite driver is given no DSN.
const DefaultSQLitePath = "results/history.db"

var ErrNotFound = errors.New("run not found")

// Entry is one graded run as stored.
type Entry struct {
	RunID           string    `json:"run_id"`
	Target          string    `json:"target"`
	Rubric          string    `json:"rubric"`
	Repository      string    `json:"repository,omitempty"`
	RunDir          string    `json:"run_dir"`
	StartedAt       time.Time `json:"started_at"`
	DurationS       float64   `json:"duration_s"`
	ExitReason      string    `json:"exit_reason"`
	BuildFailed     bool      `json:"build_failed"`
	TotalScore      float64   `json:"total_score"`
	MaxScore        float64   `json:"max_score"`
	Percentage      float64   `json:"percentage"`
	LetterGrade     string    `json:"letter_grade"`
	SemanticCostUSD float64   `json:"semantic_cost_usd"`
	Error           string    `json:"error,omitempty"`
}

// FromMeta builds the entry for a run directory's meta record.
func FromMeta(runDir string, m *result.RunMeta) Entry {
	return Entry{
		RunID:           m.RunID,
		Target:          m.Target,
		Rubric:          m.Rubric,
		Repository:      m.Repository,
		RunDir:          runDir,
		StartedAt:       m.StartedAt.UTC(),
		DurationS:       m.DurationS,
		ExitReason:      m.ExitReason,
		BuildFailed:     m.BuildFailed,
		TotalScore:      m.TotalScore,
		MaxScore:        m.MaxScore,
		Percentage:      m.Percentage,
		LetterGrade:     m.LetterGrade,
		SemanticCostUSD: m.SemanticCostUSD,
		Error:           m.Error,
	}
}

type Store struct {
	db     *sql.DB
	driver Driver
}

// Open connects and ensures the schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		drvName = "sqlite"
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("creating history directory: %w", err)
			}
		}
	case DriverPostgres, "pgx":
		driver = DriverPostgres
		drvName = "pgx"
		if dsn == "" {
			return nil, fmt.Errorf("postgres history needs a dsn")
		}
	default:
		return nil, fmt.Errorf("unsupported history driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	if driver == DriverSQLite {
		// Pragmas are per connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to history: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema(ctx context.Context) error {
	if s.driver == DriverSQLite {
		for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := s.db.ExecContext(ctx, p); err != nil {
				return fmt.Errorf("history pragma: %w", err)
			}
		}
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating history schema: %w", err)
	}
	return nil
}

// Both drivers accept this DDL.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  target TEXT NOT NULL,
  rubric TEXT NOT NULL DEFAULT '',
  repository TEXT NOT NULL DEFAULT '',
  run_dir TEXT NOT NULL,
  started_at BIGINT NOT NULL,
  duration_s DOUBLE PRECISION NOT NULL DEFAULT 0,
  exit_reason TEXT NOT NULL,
  build_failed BOOLEAN NOT NULL DEFAULT FALSE,
  total_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  max_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
  letter_grade TEXT NOT NULL DEFAULT '',
  semantic_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
  error TEXT NOT NULL DEFAULT ''
)`

const columns = `run_id, target, rubric, repository, run_dir, started_at, duration_s, exit_reason,
  build_failed, total_score, max_score, percentage, letter_grade, semantic_cost_usd, error`

// rebind rewrites ? placeholders as $1..$n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Record inserts e, replacing an earlier row with the same run id.
func (s *Store) Record(ctx context.Context, e Entry) error {
	q := s.rebind(`INSERT INTO runs (` + columns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id) DO UPDATE SET
  exit_reason = excluded.exit_reason, duration_s = excluded.duration_s, build_failed = excluded.build_failed,
  total_score = excluded.total_score, max_score = excluded.max_score, percentage = excluded.percentage,
  letter_grade = excluded.letter_grade, semantic_cost_usd = excluded.semantic_cost_usd, error = excluded.error`)
	_, err := s.db.ExecContext(ctx, q,
		e.RunID, e.Target, e.Rubric, e.Repository, e.RunDir, e.StartedAt.UnixMilli(), e.DurationS, e.ExitReason,
		e.BuildFailed, e.TotalScore, e.MaxScore, e.Percentage, e.LetterGrade, e.SemanticCostUSD, e.Error)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", e.RunID, err)
	}
	return nil
}

// List returns runs newest first. An empty target lists every target;
// limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, target string, limit int) ([]Entry, error) {
	q := `SELECT ` + columns + ` FROM runs`
	var args []any
	if target != "" {
		q += ` WHERE target = ?`
		args = append(args, target)
	}
	q += ` ORDER BY started_at DESC, run_id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, runID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+columns+` FROM runs WHERE run_id = ?`), runID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var e Entry
	var started int64
	err := sc.Scan(&e.RunID, &e.Target, &e.Rubric, &e.Repository, &e.RunDir, &started, &e.DurationS, &e.ExitReason,
		&e.BuildFailed, &e.TotalScore, &e.MaxScore, &e.Percentage, &e.LetterGrade, &e.SemanticCostUSD, &e.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("reading run: %w", err)
	}
	e.StartedAt = time.UnixMilli(started).UTC()
	return e, nil
}
