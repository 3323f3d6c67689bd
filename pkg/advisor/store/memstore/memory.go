package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/rule"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu      sync.RWMutex
	rules   []rule.Rule
	reports map[string]store.Report
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		reports: make(map[string]store.Report),
	}
}

var _ store.Store = (*Store)(nil)

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// ReplaceRules swaps the whole rule catalogue.
func (s *Store) ReplaceRules(ctx context.Context, rules []rule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = make([]rule.Rule, len(rules))
	for i, r := range rules {
		s.rules[i] = copyRule(r)
	}
	return nil
}

// ListRules returns the catalogue in insertion order.
func (s *Store) ListRules(ctx context.Context) ([]rule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rule.Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = copyRule(r)
	}
	return out, nil
}

// SaveReport stores a report, keyed by ID.
func (s *Store) SaveReport(ctx context.Context, r store.Report) error {
	if r.ID == "" {
		return fmt.Errorf("save report: empty id: %w", internalerr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[r.ID]; ok {
		return fmt.Errorf("save report %s: %w", r.ID, internalerr.ErrDuplicate)
	}
	s.reports[r.ID] = copyReport(r)
	return nil
}

// GetReport returns a report by ID.
func (s *Store) GetReport(ctx context.Context, id string) (store.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return store.Report{}, fmt.Errorf("report %s: %w", id, internalerr.ErrNotFound)
	}
	return copyReport(r), nil
}

// ListReports returns the newest reports first.
func (s *Store) ListReports(ctx context.Context, limit int) ([]store.Report, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, copyReport(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyRule(r rule.Rule) rule.Rule {
	r.Conditions = append([]rule.Condition(nil), r.Conditions...)
	return r
}

func copyReport(r store.Report) store.Report {
	r.Conclusions = append([]string(nil), r.Conclusions...)
	r.Questions = append([]string(nil), r.Questions...)
	r.FiredRules = append([]string(nil), r.FiredRules...)
	answers := make(map[string]bool, len(r.Answers))
	for k, v := range r.Answers {
		answers[k] = v
	}
	r.Answers = answers
	return r
}
