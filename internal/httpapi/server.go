package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	apimw "github.com/hamed0406/tlsprober/internal/httpapi/middleware"
	"github.com/hamed0406/tlsprober/internal/domain"
	"github.com/hamed0406/tlsprober/internal/probe"
	"github.com/hamed0406/tlsprober/internal/repo"
)

type Server struct {
	Logger  *zap.Logger
	Targets repo.TargetStore
	Results repo.ResultStore
	Checker probe.Checker

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	// TrustedProxies are the peers whose X-Forwarded-For the rate limiter
	// believes.
	TrustedProxies []netip.Prefix
}

func NewServer(l *zap.Logger, ts repo.TargetStore, rs repo.ResultStore, c probe.Checker) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Targets: ts, Results: rs, Checker: c}
}

// Router wires routes. Reads need any key, adding targets needs an admin
// key; each group has its own per-client rate limit. Empty allowedOrigins
// allows every origin.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	r.Use(corsHandler(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(pubRPM, pubBurst, s.TrustedProxies...))
			r.Use(apimw.RequireAny(keys))
			r.Get("/probe", s.handleProbe)
			r.Get("/verify", s.handleVerify)
			r.Get("/targets", s.handleListTargets)
			r.Get("/results/latest", s.handleLatest)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(admRPM, admBurst, s.TrustedProxies...))
			r.Use(apimw.RequireAdmin(keys))
			r.Post("/targets", s.handleAddTarget)
		})
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// GET /api/probe?target=
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		writeError(w, http.StatusBadRequest, "missing target")
		return
	}
	res := s.Checker.Check(r.Context(), target)
	s.Logger.Info("probe_done",
		zap.String("target", target),
		zap.String("status", string(res.Status)),
		zap.String("reason", res.Reason),
	)
	writeJSON(w, http.StatusOK, res)
}

type verifyResponse struct {
	Target string       `json:"target"`
	Verify bool         `json:"verify"`
	Result probe.Result `json:"result"`
}

// GET /api/verify?target=  whether a client calling target should verify TLS.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		writeError(w, http.StatusBadRequest, "missing target")
		return
	}
	res := s.Checker.Check(r.Context(), target)
	writeJSON(w, http.StatusOK, verifyResponse{Target: target, Verify: res.IsValid(), Result: res})
}

type addPayload struct {
	Target string `json:"target"`
	URL    string `json:"url"` // accepted for older clients
}

func (s *Server) handleAddTarget(w http.ResponseWriter, r *http.Request) {
	var p addPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	raw := p.Target
	if raw == "" {
		raw = p.URL
	}
	pt, err := probe.ParseTarget(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid target")
		return
	}

	t := &domain.Target{Raw: raw, Host: pt.Host, Port: pt.Port, CreatedAt: time.Now().UTC()}
	if err := s.Targets.Add(r.Context(), t); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			writeError(w, http.StatusConflict, "target already exists")
			return
		}
		s.Logger.Warn("add_target_error", zap.String("target", raw), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add")
		return
	}

	// One synchronous probe for immediate feedback.
	res := s.Checker.Check(r.Context(), raw)
	rec := domain.NewProbeRecord(t.ID, res, time.Now())
	if err := s.Results.Append(r.Context(), rec); err != nil {
		s.Logger.Warn("append_result_error", zap.String("target_id", string(t.ID)), zap.Error(err))
	}

	s.Logger.Info("added_target",
		zap.String("target", raw),
		zap.String("address", pt.Address()),
		zap.String("status", string(res.Status)),
		zap.Float64("latency_ms", res.LatencyMS),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"target": t, "summary": rec,
	})
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Targets.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Results.Latest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "latest error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
