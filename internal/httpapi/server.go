package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Server exposes an Advisor over JSON/HTTP.
type Server struct {
	adv     *advisor.Advisor
	logger  *zap.Logger
	origins []string
	mux     *http.ServeMux
}

// Options configures a Server.
type Options struct {
	Logger         *zap.Logger
	AllowedOrigins []string
}

// New creates a Server and registers its routes.
func New(adv *advisor.Advisor, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		adv:     adv,
		logger:  logger,
		origins: opts.AllowedOrigins,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/consultation/start", s.handleStart)
	s.mux.HandleFunc("POST /api/consultation/{id}/answer", s.handleAnswer)
	s.mux.HandleFunc("POST /api/consultation/{id}/back", s.handleBack)
	s.mux.HandleFunc("POST /api/consultation/{id}/restart", s.handleRestart)
	s.mux.HandleFunc("GET /api/consultation/{id}/visualization", s.handleVisualization)
	s.mux.HandleFunc("GET /api/consultation/{id}/conclusions", s.handleConclusions)
	s.mux.HandleFunc("DELETE /api/consultation/{id}", s.handleEnd)

	s.mux.HandleFunc("GET /api/rules", s.handleRules)
	s.mux.HandleFunc("GET /api/facts", s.handleFacts)
	s.mux.HandleFunc("GET /api/reports", s.handleReports)
	s.mux.HandleFunc("GET /api/reports/{id}", s.handleReport)
}

// ServeHTTP applies the middleware chain and dispatches to the routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withRequestID(s.withLogging(s.withCORS(s.mux))).ServeHTTP(w, r)
}

// Serve listens on addr, accepting at most maxConns concurrent connections,
// until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler, maxConns int, logger *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	logger.Info("listening", zap.String("addr", ln.Addr().String()), zap.Int("max_conns", maxConns))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

// writeError maps domain errors to status codes. Client usage errors are
// reported distinctly from internal faults.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, internalerr.ErrNoSession), errors.Is(err, internalerr.ErrNotStarted):
		status = http.StatusBadRequest
		err = internalerr.ErrNotStarted
	case errors.Is(err, internalerr.ErrUnknownCategory), errors.Is(err, internalerr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, internalerr.ErrQuestionMismatch):
		status = http.StatusConflict
	case errors.Is(err, internalerr.ErrInvalidInput):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.Error(err))
		s.writeJSON(w, status, errorResponse{Detail: "internal error"})
		return
	}
	s.writeJSON(w, status, errorResponse{Detail: err.Error()})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(internalerr.ErrInvalidInput, err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
