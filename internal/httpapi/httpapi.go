// SPDX-License-Identifier: MIT

// Package httpapi implements the content HTTP surface: manifest and
// per-video metadata, range-aware file streaming, view-count tracking,
// and the readiness probe.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vds-project/vds/internal/catalog"
	"github.com/vds-project/vds/internal/command"
	"github.com/vds-project/vds/internal/log"
)

// Server holds the dependencies the HTTP surface reads from.
type Server struct {
	catalog     *catalog.Catalog
	commands    *command.Channel
	contentPath string
	ready       func() bool
}

// New constructs a Server. ready reports whether the daemon should be
// considered healthy (the catalog has finished opening).
func New(cat *catalog.Catalog, commands *command.Channel, contentPath string, ready func() bool) *Server {
	return &Server{catalog: cat, commands: commands, contentPath: contentPath, ready: ready}
}

// Router builds the chi router with the canonical middleware stack applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(log.Middleware())

	r.Get("/healthz", s.handleHealthz)
	r.Route("/api", func(r chi.Router) {
		r.Get("/content/meta", s.handleContentMetaList)
		r.Get("/content/meta/{id}", s.handleContentMetaOne)
		r.Get("/content/{id}", s.handleContentStream)
		r.Post("/content/{id}/view", s.handleContentView)
		r.Get("/manifest/latest", s.handleManifestLatest)
		r.Post("/manifest/fetch", s.handleManifestFetch)
	})
	return r
}

// recoverer is the outermost safety net: it converts a handler panic into a
// 500 response instead of crashing the process.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithComponentFromContext(r.Context(), "httpapi").
					Error().Interface("panic", rec).Msg("recovered from panic")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleManifestLatest(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.catalog.CurrentManifestRaw()
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleManifestFetch(w http.ResponseWriter, r *http.Request) {
	s.commands.Post(command.FetchManifest)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
