package advisor

import (
	"context"

	"go.uber.org/zap"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/consultation"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/registry"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/report"
)

// Turn is the state a client needs after each step of a consultation
type Turn struct {
	SessionID    string
	Category     string
	NextQuestion string // "" when nothing is left to ask
	Conclusions  []string
	Finished     bool
}

// BackResult is the outcome of GoBack
type BackResult struct {
	Previous string // "" when going back was a no-op
	Current  string // most recent question after the call
}

// Start opens a consultation for category and proposes the first question
func (a *Advisor) Start(ctx context.Context, category string) (Turn, error) {
	k, err := a.KnowledgeBase(category)
	if err != nil {
		return Turn{}, err
	}

	c := consultation.New(k, consultation.Options{
		Strict:        a.strict,
		MaxIterations: a.maxIter,
		Logger:        a.logger,
	})
	c.Start()
	id := a.sessions.Create(category, c)

	var turn Turn
	err = a.sessions.With(id, func(e *registry.Entry) error {
		var err error
		turn, err = a.turn(ctx, e)
		return err
	})
	if err != nil {
		return Turn{}, err
	}
	a.logger.Info("consultation started", zap.String("session", id), zap.String("category", category))
	return turn, nil
}

// Answer records an answer and returns the next step. Changing an earlier
// answer re-arms the report so a new outcome is stored again.
func (a *Advisor) Answer(ctx context.Context, id, fact string, value bool) (Turn, error) {
	var turn Turn
	err := a.sessions.With(id, func(e *registry.Entry) error {
		c := e.Session()
		prev, known := c.Answers()[fact]
		if err := c.Answer(fact, value); err != nil {
			return err
		}
		if known && prev != value {
			e.ResetReported()
		}
		var err error
		turn, err = a.turn(ctx, e)
		return err
	})
	return turn, err
}

// GoBack undoes the most recent question. Withdrawing an answer re-arms
// the report.
func (a *Advisor) GoBack(ctx context.Context, id string) (BackResult, error) {
	var res BackResult
	err := a.sessions.With(id, func(e *registry.Entry) error {
		c := e.Session()
		last, _ := c.Current()
		_, wasAnswered := c.Answers()[last]
		var popped bool
		res.Previous, popped = c.GoBack()
		res.Current, _ = c.Current()
		if popped && wasAnswered {
			e.ResetReported()
		}
		return nil
	})
	return res, err
}

// Restart clears the session and proposes the first question again
func (a *Advisor) Restart(ctx context.Context, id string) (Turn, error) {
	var turn Turn
	err := a.sessions.With(id, func(e *registry.Entry) error {
		e.Session().Restart()
		e.ResetReported()
		var err error
		turn, err = a.turn(ctx, e)
		return err
	})
	return turn, err
}

// Conclusions returns the terminal conclusions of a session
func (a *Advisor) Conclusions(ctx context.Context, id string) ([]string, error) {
	var out []string
	err := a.sessions.With(id, func(e *registry.Entry) error {
		out = e.Session().Conclusions()
		return nil
	})
	return out, err
}

// Visualization returns the inspection snapshot of a session
func (a *Advisor) Visualization(ctx context.Context, id string) (consultation.Visualization, error) {
	var v consultation.Visualization
	err := a.sessions.With(id, func(e *registry.Entry) error {
		v = e.Session().Snapshot()
		return nil
	})
	return v, err
}

// End discards a session
func (a *Advisor) End(id string) bool {
	return a.sessions.Delete(id)
}

// turn proposes the next question and, the first time the session is
// finished, stores its report. Must run inside registry.With.
func (a *Advisor) turn(ctx context.Context, e *registry.Entry) (Turn, error) {
	c := e.Session()
	next, _, err := c.NextQuestion()
	if err != nil {
		return Turn{}, err
	}
	turn := Turn{
		SessionID:    e.ID(),
		Category:     e.Category(),
		NextQuestion: next,
		Conclusions:  c.Conclusions(),
		Finished:     c.IsFinished(),
	}

	if turn.Finished && e.MarkReported() {
		rep := a.reports.Build(e.ID(), e.Category(), c)
		if err := a.store.SaveReport(ctx, rep.ToStore()); err != nil {
			a.logger.Warn("failed to store report", zap.String("session", e.ID()), zap.Error(err))
		} else {
			a.logger.Info("consultation finished",
				zap.String("session", e.ID()),
				zap.String("report", rep.ID),
				zap.Strings("conclusions", rep.Conclusions))
		}
	}
	return turn, nil
}

// Reports lists stored consultation reports, newest first
func (a *Advisor) Reports(ctx context.Context, limit int) ([]report.Report, error) {
	stored, err := a.store.ListReports(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]report.Report, len(stored))
	for i, s := range stored {
		out[i] = report.FromStore(s)
	}
	return out, nil
}

// Report loads one stored report
func (a *Advisor) Report(ctx context.Context, id string) (report.Report, error) {
	s, err := a.store.GetReport(ctx, id)
	if err != nil {
		return report.Report{}, err
	}
	return report.FromStore(s), nil
}
