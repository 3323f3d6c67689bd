package advisor

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/kb"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/registry"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/report"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/rule"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/store"
)

// Advisor is the visa advisor facade used by transports
type Advisor struct {
	store    store.Store
	sessions *registry.Registry
	reports  *report.Builder
	logger   *zap.Logger
	maxIter  int
	strict   bool

	mu    sync.RWMutex
	rules []rule.Rule
	kbs   map[string]*kb.KnowledgeBase
}

// Options configures an Advisor instance
type Options struct {
	Store store.Store
	// Rules replaces the stored catalogue when non-empty; otherwise the
	// catalogue is read from Store.
	Rules         []rule.Rule
	Logger        *zap.Logger
	MaxIterations int
	StrictAnswers bool
}

// New creates an Advisor with the given dependencies
func New(ctx context.Context, opts Options) (*Advisor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Advisor{
		store:    opts.Store,
		sessions: registry.New(logger),
		reports:  report.New(),
		logger:   logger,
		maxIter:  opts.MaxIterations,
		strict:   opts.StrictAnswers,
		kbs:      make(map[string]*kb.KnowledgeBase),
	}

	if len(opts.Rules) > 0 {
		if err := a.ReloadRules(ctx, opts.Rules); err != nil {
			return nil, err
		}
		return a, nil
	}

	rules, err := a.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	a.rules = rules
	logger.Info("rule catalogue loaded", zap.Int("rules", len(rules)))
	return a, nil
}

// Close cleanly shuts down the Advisor instance
func (a *Advisor) Close() error {
	return a.store.Close()
}

// Sessions exposes the live session registry
func (a *Advisor) Sessions() *registry.Registry { return a.sessions }

// ReloadRules validates and stores a new catalogue. Running sessions keep
// the knowledge base they started with.
func (a *Advisor) ReloadRules(ctx context.Context, rules []rule.Rule) error {
	if _, err := kb.Build(rules, ""); err != nil {
		return err
	}
	if err := a.store.ReplaceRules(ctx, rules); err != nil {
		return fmt.Errorf("store rules: %w", err)
	}

	a.mu.Lock()
	a.rules = append([]rule.Rule(nil), rules...)
	a.kbs = make(map[string]*kb.KnowledgeBase)
	a.mu.Unlock()

	a.logger.Info("rule catalogue replaced", zap.Int("rules", len(rules)))
	return nil
}

// Rules returns the full rule catalogue
func (a *Advisor) Rules() []rule.Rule {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]rule.Rule(nil), a.rules...)
}

// KnowledgeBase returns the finalized knowledge base for category, building
// and caching it on first use. "" selects every rule.
func (a *Advisor) KnowledgeBase(category string) (*kb.KnowledgeBase, error) {
	a.mu.RLock()
	k, ok := a.kbs[category]
	a.mu.RUnlock()
	if ok {
		return k, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if k, ok := a.kbs[category]; ok {
		return k, nil
	}
	k, err := kb.Build(a.rules, category)
	if err != nil {
		return nil, err
	}
	a.kbs[category] = k
	a.logger.Debug("knowledge base built",
		zap.String("category", category),
		zap.Int("rules", len(k.Rules())),
		zap.Int("basic_facts", len(k.BasicFacts())))
	return k, nil
}

// Categories lists the category tags present in the catalogue
func (a *Advisor) Categories() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	set := make(map[string]struct{})
	for _, r := range a.rules {
		if r.Category != "" {
			set[r.Category] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// FactSets classifies the fact names of one knowledge base
type FactSets struct {
	All       []string `json:"all_facts"`
	Basic     []string `json:"basic_facts"`
	Derivable []string `json:"derivable_facts"`
}

// Facts returns the fact classification for category
func (a *Advisor) Facts(category string) (FactSets, error) {
	k, err := a.KnowledgeBase(category)
	if err != nil {
		return FactSets{}, err
	}
	return FactSets{
		All:       k.AllFacts(),
		Basic:     k.BasicFacts(),
		Derivable: k.DerivableFacts(),
	}, nil
}
