// Package server exposes extraction, feedback and learned recommendations
// over HTTP.
package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/program-extract/internal/learning"
	"github.com/sells-group/program-extract/internal/metrics"
	"github.com/sells-group/program-extract/internal/model"
	"github.com/sells-group/program-extract/internal/pipeline"
	"github.com/sells-group/program-extract/internal/scrape"
)

const (
	maxBodyBytes   = 5 << 20
	requestTimeout = 90 * time.Second
)

// Extractor runs one extraction over a set of pages.
type Extractor interface {
	Run(ctx context.Context, pages ...model.Page) (*pipeline.Result, error)
}

// Fetcher retrieves a page when a request carries only a URL.
type Fetcher interface {
	Scrape(ctx context.Context, targetURL string) (*scrape.Result, error)
}

// Server holds the HTTP dependencies.
type Server struct {
	extractor Extractor
	learning  *learning.Engine
	fetcher   Fetcher
	metrics   *metrics.Metrics
	router    *chi.Mux
}

// New builds the router. fetcher and m may be nil.
func New(ext Extractor, learn *learning.Engine, fetcher Fetcher, m *metrics.Metrics) *Server {
	s := &Server{extractor: ext, learning: learn, fetcher: fetcher, metrics: m, router: chi.NewRouter()}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(requestTimeout))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/extract", s.handleExtract)
		r.Post("/feedback", s.handleFeedback)
		r.Get("/history", s.handleHistory)
		r.Get("/domains/{domain}/strategy", s.handleStrategy)
		r.Get("/domains/{domain}/similar", s.handleSimilar)
		r.Get("/fields/{field}/warnings", s.handleWarnings)
	})
}

// requestLogger logs each request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "revision": s.learning.Revision()})
}

// PageInput is one page in an extract request.
type PageInput struct {
	URL  string `json:"url"`
	HTML string `json:"html,omitempty"`
	Text string `json:"text,omitempty"`
}

// ExtractRequest is the body of POST /v1/extract. Either the top-level
// page or Pages is used; a page with only a URL is fetched.
type ExtractRequest struct {
	PageInput
	Pages []PageInput `json:"pages,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if !decodeBody(w, r, &req) {
		return
	}
	inputs := req.Pages
	if len(inputs) == 0 {
		inputs = []PageInput{req.PageInput}
	}

	pages := make([]model.Page, 0, len(inputs))
	for _, in := range inputs {
		if in.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		if in.HTML != "" || in.Text != "" {
			pages = append(pages, model.Page{URL: in.URL, HTML: in.HTML, Text: in.Text})
			continue
		}
		if s.fetcher == nil {
			writeError(w, http.StatusBadRequest, "html or text is required")
			return
		}
		res, err := s.fetcher.Scrape(r.Context(), in.URL)
		if err != nil {
			zap.L().Warn("server: fetch failed", zap.String("url", in.URL), zap.Error(err))
			writeError(w, http.StatusBadGateway, "fetch failed: "+err.Error())
			return
		}
		pages = append(pages, res.Page)
	}

	res, err := s.extractor.Run(r.Context(), pages...)
	if err != nil {
		if eris.Is(err, pipeline.ErrNoPages) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// FeedbackRequest is the body of POST /v1/feedback.
type FeedbackRequest struct {
	Key     string `json:"key"`
	Correct *bool  `json:"correct"`
	Value   any    `json:"value,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Key == "" || req.Correct == nil {
		writeError(w, http.StatusBadRequest, "key and correct are required")
		return
	}

	rec, err := s.learning.ProvideFeedback(r.Context(), req.Key, *req.Correct, req.Value)
	if err != nil {
		if eris.Is(err, learning.ErrHistoryNotFound) {
			writeError(w, http.StatusNotFound, "unknown history key")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.ObserveFeedback(*req.Correct)

	resp := map[string]any{"status": "recorded"}
	if rec != nil {
		resp["correction"] = rec
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := learning.HistoryFilter{Domain: q.Get("domain"), Field: q.Get("field")}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	hist := s.learning.History(f)
	if hist == nil {
		hist = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	field := strings.TrimSpace(r.URL.Query().Get("field"))
	if field == "" {
		writeError(w, http.StatusBadRequest, "field is required")
		return
	}
	domain := model.DomainOf(chi.URLParam(r, "domain"))
	writeJSON(w, http.StatusOK, s.learning.GetOptimizedStrategy(field, domain))
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	domain := model.DomainOf(chi.URLParam(r, "domain"))
	sites := s.learning.FindSimilarSites(domain)
	if sites == nil {
		sites = []learning.SimilarSite{}
	}
	writeJSON(w, http.StatusOK, sites)
}

func (s *Server) handleWarnings(w http.ResponseWriter, r *http.Request) {
	field := chi.URLParam(r, "field")
	domain := model.DomainOf(r.URL.Query().Get("domain"))
	warnings := s.learning.GetFieldWarnings(field, domain)
	if warnings == nil {
		warnings = []learning.Warning{}
	}
	writeJSON(w, http.StatusOK, warnings)
}
