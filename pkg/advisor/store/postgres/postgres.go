package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/rule"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/store"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

type pgStore struct {
	db *sql.DB
}

// Open connects to PostgreSQL and creates the schema if needed.
func Open(ctx context.Context, dsn string) (store.Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &pgStore{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS rules (
	position INTEGER PRIMARY KEY,
	id TEXT NOT NULL,
	operator TEXT NOT NULL,
	conditions JSONB NOT NULL,
	conclusion TEXT NOT NULL,
	conclusion_value BOOLEAN NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	category TEXT,
	terminal BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	session_id TEXT,
	category TEXT,
	conclusions TEXT[] NOT NULL,
	questions TEXT[] NOT NULL,
	answers JSONB NOT NULL,
	fired_rules TEXT[] NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS reports_created_at ON reports(created_at);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *pgStore) Close() error {
	return s.db.Close()
}

func (s *pgStore) ReplaceRules(ctx context.Context, rules []rule.Rule) error {
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
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
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

func (s *pgStore) ListRules(ctx context.Context) ([]rule.Rule, error) {
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
			conds []byte
		)
		if err := rows.Scan(&r.ID, &op, &conds, &r.Conclusion, &r.ConclusionValue, &r.Priority, &r.Category, &r.Terminal); err != nil {
			return nil, err
		}
		r.Operator = rule.Operator(op)
		if err := json.Unmarshal(conds, &r.Conditions); err != nil {
			return nil, fmt.Errorf("rule %s conditions: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *pgStore) SaveReport(ctx context.Context, r store.Report) error {
	if r.ID == "" {
		return fmt.Errorf("save report: empty id: %w", internalerr.ErrInvalidInput)
	}
	answers := r.Answers
	if answers == nil {
		answers = map[string]bool{}
	}
	ans, err := json.Marshal(answers)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO reports (id, session_id, category, conclusions, questions, answers, fired_rules, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.SessionID, r.Category,
		pq.Array(nonNil(r.Conclusions)), pq.Array(nonNil(r.Questions)), string(ans), pq.Array(nonNil(r.FiredRules)),
		r.CreatedAt.UTC())

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("save report %s: %w", r.ID, internalerr.ErrDuplicate)
	}
	return err
}

func (s *pgStore) GetReport(ctx context.Context, id string) (store.Report, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, session_id, category, conclusions, questions, answers, fired_rules, created_at
FROM reports WHERE id = $1`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Report{}, fmt.Errorf("report %s: %w", id, internalerr.ErrNotFound)
	}
	return r, err
}

func (s *pgStore) ListReports(ctx context.Context, limit int) ([]store.Report, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, category, conclusions, questions, answers, fired_rules, created_at
FROM reports ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (store.Report, error) {
	var (
		r       store.Report
		answers []byte
	)
	err := row.Scan(&r.ID, &r.SessionID, &r.Category,
		pq.Array(&r.Conclusions), pq.Array(&r.Questions), &answers, pq.Array(&r.FiredRules), &r.CreatedAt)
	if err != nil {
		return store.Report{}, err
	}
	if err := json.Unmarshal(answers, &r.Answers); err != nil {
		return store.Report{}, fmt.Errorf("report %s answers: %w", r.ID, err)
	}
	return r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
