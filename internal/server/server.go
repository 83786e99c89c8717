// Package server exposes the news service over a small JSON API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deusflow/newspulse/internal/library"
	"github.com/deusflow/newspulse/internal/logger"
	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/news"
	"github.com/deusflow/newspulse/internal/rss"
	"github.com/deusflow/newspulse/internal/scraper"
)

// Server serves the API and the metrics endpoints.
type Server struct {
	svc    *news.Service
	router chi.Router
	addr   string
}

// New builds the router for svc.
func New(svc *news.Service, addr string) *Server {
	s := &Server{svc: svc, router: chi.NewRouter(), addr: addr}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/master", s.handleMaster)
		r.Get("/sources", s.handleSources)
		r.Get("/sources/{id}", s.handleSource)
		r.Get("/tags", s.handleTags)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/summary", s.handleSummary)

		r.Post("/read", s.handleMarkRead)
		r.Delete("/read", s.handleMarkUnread)
		for path, list := range map[string]library.List{
			"/bookmarks": library.Bookmarks,
			"/favorites": library.Favorites,
		} {
			r.Get(path, s.handleSaved(list))
			r.Post(path, s.handleSave(list))
			r.Delete(path, s.handleUnsave(list))
		}
	})
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	if !metrics.Global.Healthy() {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, metrics.Global.GetStats())
}

func (s *Server) handleMaster(w http.ResponseWriter, r *http.Request) {
	pool, err := s.svc.MasterPool(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondView(w, r, pool)
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	type sourceJSON struct {
		ID string `json:"id"`
		rss.Source
	}
	sources := s.svc.Sources()
	out := make([]sourceJSON, 0, len(sources))
	for _, src := range sources {
		out = append(out, sourceJSON{ID: src.ID(), Source: src})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	pool, err := s.svc.SourcePool(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	s.respondView(w, r, pool)
}

func (s *Server) respondView(w http.ResponseWriter, r *http.Request, pool models.ClusterPool) {
	q := r.URL.Query()
	page, err := s.svc.View(r.Context(), pool, news.ViewOptions{
		UnreadOnly:    boolParam(q.Get("unread")),
		Search:        q.Get("q"),
		ClustersFirst: boolParam(q.Get("clusters_first")),
		Page:          intParam(q.Get("page")),
		PerPage:       intParam(q.Get("per_page")),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		pool models.ClusterPool
		err  error
	)
	if id := q.Get("source"); id != "" {
		pool, err = s.svc.SourcePool(r.Context(), id)
	} else {
		pool, err = s.svc.MasterPool(r.Context())
	}
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	entries, err := s.svc.TrendingTags(r.Context(), pool, boolParam(q.Get("unread")))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Refresh(r.Context(), boolParam(r.URL.Query().Get("force")))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	link := r.URL.Query().Get("url")
	if link == "" {
		respondError(w, http.StatusBadRequest, errors.New("missing url parameter"))
		return
	}
	summary, err := s.svc.Summarize(r.Context(), link)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

type linksRequest struct {
	Links []string `json:"links"`
}

type articlesRequest struct {
	Articles []models.Article `json:"articles"`
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req linksRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.MarkRead(r.Context(), req.Links...); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkUnread(w http.ResponseWriter, r *http.Request) {
	var req linksRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.MarkUnread(r.Context(), req.Links...); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSaved(list library.List) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.svc.Saved(r.Context(), list)
		if err != nil {
			respondError(w, statusFor(err), err)
			return
		}
		respondJSON(w, http.StatusOK, entries)
	}
}

func (s *Server) handleSave(list library.List) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req articlesRequest
		if !decode(w, r, &req) {
			return
		}
		for _, a := range req.Articles {
			if a.Link == "" {
				respondError(w, http.StatusBadRequest, errors.New("article without link"))
				return
			}
		}
		if err := s.svc.Save(r.Context(), list, req.Articles...); err != nil {
			respondError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleUnsave(list library.List) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req linksRequest
		if !decode(w, r, &req) {
			return
		}
		if err := s.svc.Unsave(r.Context(), list, req.Links...); err != nil {
			respondError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rss.ErrUnknownSource), errors.Is(err, library.ErrUnknownList):
		return http.StatusNotFound
	case errors.Is(err, news.ErrSummariesDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, scraper.ErrNoContent):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Error("API error", "status", status, "error", err)
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func boolParam(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

func intParam(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}
