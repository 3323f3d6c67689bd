// Package consultation runs one question/answer session over a knowledge base.
package consultation

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/inference"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/inference/forward"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/kb"
)

// State is the lifecycle state of a consultation.
type State string

const (
	NotStarted State = "not_started"
	Active     State = "active"
	Finished   State = "finished"
)

// Options configures a Consultation.
type Options struct {
	// Strict rejects answers for any fact other than the current question.
	Strict        bool
	MaxIterations int
	Logger        *zap.Logger
}

// Consultation binds one knowledge base to one evolving fact store and the
// question/answer history. It is not safe for concurrent use.
type Consultation struct {
	kb      *kb.KnowledgeBase
	engine  inference.Engine
	strict  bool
	started bool

	questions []string
	answers   map[string]bool
}

// New creates a consultation in the NotStarted state.
func New(k *kb.KnowledgeBase, opts Options) *Consultation {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consultation{
		kb: k,
		engine: forward.New(k,
			forward.WithMaxIterations(opts.MaxIterations),
			forward.WithLogger(logger)),
		strict:  opts.Strict,
		answers: make(map[string]bool),
	}
}

// KnowledgeBase returns the knowledge base this session reasons over.
func (c *Consultation) KnowledgeBase() *kb.KnowledgeBase { return c.kb }

// Start clears facts, histories and fired rules.
func (c *Consultation) Start() {
	c.engine.Clear()
	c.questions = nil
	c.answers = make(map[string]bool)
	c.started = true
}

// Restart is Start on an already running session.
func (c *Consultation) Restart() { c.Start() }

// State reports the lifecycle state.
func (c *Consultation) State() State {
	switch {
	case !c.started:
		return NotStarted
	case c.IsFinished():
		return Finished
	default:
		return Active
	}
}

// NextQuestion asks the engine for the next fact and records it in the
// history unless it is already the most recent entry.
func (c *Consultation) NextQuestion() (string, bool, error) {
	if !c.started {
		return "", false, internalerr.ErrNotStarted
	}
	fact, ok := c.engine.NextQuestion()
	if !ok {
		return "", false, nil
	}
	if n := len(c.questions); n == 0 || c.questions[n-1] != fact {
		c.questions = append(c.questions, fact)
	}
	return fact, true, nil
}

// Current returns the most recent entry of the question history. After
// GoBack this is the question the user is expected to answer again.
func (c *Consultation) Current() (string, bool) {
	if len(c.questions) == 0 {
		return "", false
	}
	return c.questions[len(c.questions)-1], true
}

// Answer records value for fact and derives to a fixed point. Re-answering a
// known fact first invalidates everything derived from it.
func (c *Consultation) Answer(fact string, value bool) error {
	if !c.started {
		return internalerr.ErrNotStarted
	}
	if fact == "" {
		return fmt.Errorf("answer: empty fact name: %w", internalerr.ErrInvalidInput)
	}
	if c.strict {
		current, ok := c.Current()
		if !ok || current != fact {
			return fmt.Errorf("answer %q (current %q): %w", fact, current, internalerr.ErrQuestionMismatch)
		}
	}

	if _, known := c.engine.Facts().Lookup(fact); known {
		c.engine.ResetFromFact(fact)
	}
	c.engine.Assert(fact, value)
	c.answers[fact] = value
	c.engine.ForwardChain()
	return nil
}

// GoBack removes the most recent question and its answer, invalidates what
// was derived from it and returns the new most recent question. With fewer
// than two questions asked it does nothing.
func (c *Consultation) GoBack() (string, bool) {
	if len(c.questions) < 2 {
		return "", false
	}
	last := c.questions[len(c.questions)-1]
	c.questions = c.questions[:len(c.questions)-1]
	delete(c.answers, last)
	c.engine.ResetFromFact(last)

	return c.questions[len(c.questions)-1], true
}

// Conclusions returns the terminal conclusions currently true.
func (c *Consultation) Conclusions() []string {
	return c.engine.Conclusions()
}

// IsFinished is true when nothing is left to ask or any terminal conclusion
// has been derived, even if questions remain.
func (c *Consultation) IsFinished() bool {
	if len(c.engine.Conclusions()) > 0 {
		return true
	}
	_, ok := c.engine.NextQuestion()
	return !ok
}

// Questions returns a copy of the question history.
func (c *Consultation) Questions() []string {
	return append([]string(nil), c.questions...)
}

// Answers returns a copy of the answer history.
func (c *Consultation) Answers() map[string]bool {
	out := make(map[string]bool, len(c.answers))
	for k, v := range c.answers {
		out[k] = v
	}
	return out
}

// Visualization is the read-only snapshot offered to presentation layers.
type Visualization struct {
	Rules           []inference.RuleStatus `json:"rules"`
	Facts           map[string]bool        `json:"facts"`
	FiredRules      []string               `json:"fired_rules"`
	QuestionHistory []string               `json:"question_history"`
	AnswerHistory   map[string]bool        `json:"answer_history"`
}

// Snapshot captures the session for inspection.
func (c *Consultation) Snapshot() Visualization {
	return Visualization{
		Rules:           c.engine.RuleStatuses(),
		Facts:           c.engine.Facts().Values(),
		FiredRules:      c.engine.FiredRules(),
		QuestionHistory: c.Questions(),
		AnswerHistory:   c.Answers(),
	}
}
