package httpapi

import (
	"net/http"
	"strings"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/config"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/store"
)

type startRequest struct {
	VisaType string `json:"visa_type"`
}

type sessionResponse struct {
	SessionID    string  `json:"session_id"`
	NextQuestion *string `json:"next_question"`
	VisaType     string  `json:"visa_type"`
}

type answerRequest struct {
	Question string `json:"question"`
	Answer   *bool  `json:"answer"`
}

type answerResponse struct {
	NextQuestion *string  `json:"next_question"`
	Conclusions  []string `json:"conclusions"`
	IsFinished   bool     `json:"is_finished"`
}

type backResponse struct {
	PreviousQuestion *string `json:"previous_question"`
	CurrentQuestion  *string `json:"current_question"`
}

type conclusionsResponse struct {
	Conclusions []string `json:"conclusions"`
}

// optional maps "" to JSON null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func sessionBody(t advisor.Turn) sessionResponse {
	return sessionResponse{
		SessionID:    t.SessionID,
		NextQuestion: optional(t.NextQuestion),
		VisaType:     t.Category,
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "visa expert system API",
		"version": Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"sessions": s.adv.Sessions().Len(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.VisaType = strings.TrimSpace(req.VisaType)
	if req.VisaType == "" {
		s.writeError(w, r, internalerr.ErrInvalidInput)
		return
	}
	turn, err := s.adv.Start(r.Context(), req.VisaType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessionBody(turn))
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Question == "" || req.Answer == nil {
		s.writeError(w, r, internalerr.ErrInvalidInput)
		return
	}
	turn, err := s.adv.Answer(r.Context(), r.PathValue("id"), req.Question, *req.Answer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, answerResponse{
		NextQuestion: optional(turn.NextQuestion),
		Conclusions:  nonNil(turn.Conclusions),
		IsFinished:   turn.Finished,
	})
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	res, err := s.adv.GoBack(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, backResponse{
		PreviousQuestion: optional(res.Previous),
		CurrentQuestion:  optional(res.Current),
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	turn, err := s.adv.Restart(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessionBody(turn))
}

func (s *Server) handleVisualization(w http.ResponseWriter, r *http.Request) {
	v, err := s.adv.Visualization(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleConclusions(w http.ResponseWriter, r *http.Request) {
	out, err := s.adv.Conclusions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conclusionsResponse{Conclusions: nonNil(out)})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if !s.adv.End(r.PathValue("id")) {
		s.writeError(w, r, internalerr.ErrNoSession)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, config.FromRules(s.adv.Rules()))
}

func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	facts, err := s.adv.Facts(r.URL.Query().Get("visa_type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	facts.All, facts.Basic, facts.Derivable = nonNil(facts.All), nonNil(facts.Basic), nonNil(facts.Derivable)
	s.writeJSON(w, http.StatusOK, facts)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.adv.Reports(r.Context(), queryInt(r, "limit", store.DefaultListLimit))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.adv.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}
