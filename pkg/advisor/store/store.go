package store

import (
	"context"
	"time"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/rule"
)

// Store persists the rule catalogue and completed consultation reports.
// Live sessions are never stored.
type Store interface {
	Close() error

	// Rules
	ReplaceRules(ctx context.Context, rules []rule.Rule) error
	ListRules(ctx context.Context) ([]rule.Rule, error)

	// Reports
	SaveReport(ctx context.Context, r Report) error
	GetReport(ctx context.Context, id string) (Report, error)
	ListReports(ctx context.Context, limit int) ([]Report, error)
}

// Report is the stored outcome of a finished consultation
type Report struct {
	ID          string
	SessionID   string
	Category    string
	Conclusions []string
	Questions   []string
	Answers     map[string]bool
	FiredRules  []string
	CreatedAt   time.Time
}

// DefaultListLimit applies when ListReports is called with limit <= 0
const DefaultListLimit = 50
