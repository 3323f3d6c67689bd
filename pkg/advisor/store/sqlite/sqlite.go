package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/rule"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/store"
)

// timeLayout has a fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Initialize schema
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS rules (
	position INTEGER PRIMARY KEY,
	id TEXT NOT NULL,
	operator TEXT NOT NULL,
	conditions TEXT NOT NULL,
	conclusion TEXT NOT NULL,
	conclusion_value INTEGER NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	category TEXT,
	terminal INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	session_id TEXT,
	category TEXT,
	conclusions TEXT,
	questions TEXT,
	answers TEXT,
	fired_rules TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS reports_created_at ON reports(created_at);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// ReplaceRules swaps the rule catalogue in one transaction
func (s *sqliteStore) ReplaceRules(ctx context.Context, rules []rule.Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rules`); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO rules (position, id, operator, conditions, conclusion, conclusion_value, priority, category, terminal)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range rules {
		conds, err := json.Marshal(r.Conditions)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, i, r.ID, string(r.Operator), string(conds),
			r.Conclusion, r.ConclusionValue, r.Priority, r.Category, r.Terminal); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListRules returns the catalogue in stored order
func (s *sqliteStore) ListRules(ctx context.Context) ([]rule.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, operator, conditions, conclusion, conclusion_value, priority, COALESCE(category, ''), terminal
FROM rules ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rule.Rule
	for rows.Next() {
		var (
			r     rule.Rule
			op    string
			conds string
		)
		if err := rows.Scan(&r.ID, &op, &conds, &r.Conclusion, &r.ConclusionValue, &r.Priority, &r.Category, &r.Terminal); err != nil {
			return nil, err
		}
		r.Operator = rule.Operator(op)
		if err := json.Unmarshal([]byte(conds), &r.Conditions); err != nil {
			return nil, fmt.Errorf("rule %s conditions: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveReport inserts a report
func (s *sqliteStore) SaveReport(ctx context.Context, r store.Report) error {
	if r.ID == "" {
		return fmt.Errorf("save report: empty id: %w", internalerr.ErrInvalidInput)
	}
	enc, err := encodeReport(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO reports (id, session_id, category, conclusions, questions, answers, fired_rules, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.Category, enc.conclusions, enc.questions, enc.answers, enc.fired,
		r.CreatedAt.UTC().Format(timeLayout))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("save report %s: %w", r.ID, internalerr.ErrDuplicate)
	}
	return err
}

// GetReport loads one report by ID
func (s *sqliteStore) GetReport(ctx context.Context, id string) (store.Report, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, session_id, category, conclusions, questions, answers, fired_rules, created_at
FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Report{}, fmt.Errorf("report %s: %w", id, internalerr.ErrNotFound)
	}
	return r, err
}

// ListReports returns the newest reports first
func (s *sqliteStore) ListReports(ctx context.Context, limit int) ([]store.Report, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, category, conclusions, questions, answers, fired_rules, created_at
FROM reports ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type encodedReport struct {
	conclusions, questions, answers, fired string
}

func encodeReport(r store.Report) (encodedReport, error) {
	var enc encodedReport
	for _, f := range []struct {
		dst *string
		v   any
	}{
		{&enc.conclusions, nonNil(r.Conclusions)},
		{&enc.questions, nonNil(r.Questions)},
		{&enc.answers, r.Answers},
		{&enc.fired, nonNil(r.FiredRules)},
	} {
		b, err := json.Marshal(f.v)
		if err != nil {
			return enc, err
		}
		*f.dst = string(b)
	}
	return enc, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (store.Report, error) {
	var (
		r                                      store.Report
		conclusions, questions, answers, fired string
		createdAt                              string
	)
	if err := row.Scan(&r.ID, &r.SessionID, &r.Category, &conclusions, &questions, &answers, &fired, &createdAt); err != nil {
		return store.Report{}, err
	}
	for _, f := range []struct {
		src string
		dst any
	}{
		{conclusions, &r.Conclusions},
		{questions, &r.Questions},
		{answers, &r.Answers},
		{fired, &r.FiredRules},
	} {
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return store.Report{}, fmt.Errorf("report %s: %w", r.ID, err)
		}
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return store.Report{}, err
	}
	r.CreatedAt = t
	return r, nil
}
