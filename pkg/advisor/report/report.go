package report

import (
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/consultation"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/store"
)

// Builder constructs explainable consultation reports
type Builder struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// New creates a new report builder
func New() *Builder {
	return &Builder{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Report summarizes how a consultation reached its conclusions
type Report struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Category    string          `json:"visa_type"`
	Conclusions []string        `json:"conclusions"`
	Questions   []string        `json:"question_history"`
	Answers     map[string]bool `json:"answer_history"`
	FiredRules  []string        `json:"fired_rules"`
	Explain     []Step          `json:"explain"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Step is one derived fact and the rule that produced it
type Step struct {
	Fact   string          `json:"fact"`
	Value  bool            `json:"value"`
	Rule   string          `json:"rule"`
	Inputs map[string]bool `json:"inputs"`
}

// Build snapshots c into a report with a fresh ULID
func (b *Builder) Build(sessionID, category string, c *consultation.Consultation) Report {
	b.mu.Lock()
	now := b.now()
	id := ulid.MustNew(ulid.Timestamp(now), b.entropy).String()
	b.mu.Unlock()

	snap := c.Snapshot()
	rep := Report{
		ID:          id,
		SessionID:   sessionID,
		Category:    category,
		Conclusions: c.Conclusions(),
		Questions:   answered(snap.QuestionHistory, snap.AnswerHistory),
		Answers:     snap.AnswerHistory,
		FiredRules:  snap.FiredRules,
		CreatedAt:   now.UTC(),
	}

	// Explain every derived fact through the rule that set it
	k := c.KnowledgeBase()
	for _, st := range snap.Rules {
		if !st.IsFired {
			continue
		}
		r, ok := k.RuleByID(st.RuleID)
		if !ok {
			continue
		}
		step := Step{
			Fact:   r.Conclusion,
			Value:  r.ConclusionValue,
			Rule:   r.ID,
			Inputs: make(map[string]bool),
		}
		for _, cond := range r.Conditions {
			if v, known := snap.Facts[cond.FactName]; known {
				step.Inputs[cond.FactName] = v
			}
		}
		rep.Explain = append(rep.Explain, step)
	}
	sort.SliceStable(rep.Explain, func(i, j int) bool {
		return indexOf(rep.FiredRules, rep.Explain[i].Rule) < indexOf(rep.FiredRules, rep.Explain[j].Rule)
	})

	return rep
}

// answered drops proposed questions the user never answered.
func answered(questions []string, answers map[string]bool) []string {
	out := make([]string, 0, len(questions))
	for _, q := range questions {
		if _, ok := answers[q]; ok {
			out = append(out, q)
		}
	}
	return out
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return len(ids)
}

// ToStore converts the report to its stored form
func (r Report) ToStore() store.Report {
	return store.Report{
		ID:          r.ID,
		SessionID:   r.SessionID,
		Category:    r.Category,
		Conclusions: r.Conclusions,
		Questions:   r.Questions,
		Answers:     r.Answers,
		FiredRules:  r.FiredRules,
		CreatedAt:   r.CreatedAt,
	}
}

// FromStore rebuilds a report without its explain trace
func FromStore(s store.Report) Report {
	return Report{
		ID:          s.ID,
		SessionID:   s.SessionID,
		Category:    s.Category,
		Conclusions: s.Conclusions,
		Questions:   s.Questions,
		Answers:     s.Answers,
		FiredRules:  s.FiredRules,
		CreatedAt:   s.CreatedAt,
	}
}
