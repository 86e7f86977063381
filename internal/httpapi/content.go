// SPDX-License-Identifier: MIT

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vds-project/vds/internal/catalog"
	"github.com/vds-project/vds/internal/log"
)

// VideoPublic is the wire representation of a catalog row. Status is an
// externally-tagged union mirroring the original Rust VideoStatus enum's
// serde encoding: "Pending" and "Downloaded" are bare strings, while
// "Downloading" and "Failed" carry their payload nested under the tag
// (e.g. {"Downloading":0.5}, {"Failed":"message"}).
type VideoPublic struct {
	ID             uuid.UUID
	Name           string
	Size           uint64
	DownloadStatus catalog.DownloadStatusKind
	Progress       float64
	Message        string
	ViewCount      uint64
}

// CatalogVideoPublic is a named section of VideoPublic rows, mirroring the
// manifest's own section grouping.
type CatalogVideoPublic struct {
	Name    string        `json:"name"`
	Content []VideoPublic `json:"content"`
}

func (v VideoPublic) MarshalJSON() ([]byte, error) {
	var status any
	switch v.DownloadStatus {
	case catalog.StatusPending:
		status = "Pending"
	case catalog.StatusInProgress:
		status = map[string]float64{"Downloading": v.Progress}
	case catalog.StatusDownloaded:
		status = "Downloaded"
	case catalog.StatusFailed:
		status = map[string]string{"Failed": v.Message}
	default:
		return nil, fmt.Errorf("httpapi: unknown download status %v", v.DownloadStatus)
	}

	type wire struct {
		ID        uuid.UUID `json:"id"`
		Name      string    `json:"name"`
		Size      uint64    `json:"size"`
		Status    any       `json:"status"`
		ViewCount uint64    `json:"view_count"`
	}
	return json.Marshal(wire{ID: v.ID, Name: v.Name, Size: v.Size, Status: status, ViewCount: v.ViewCount})
}

func toVideoPublic(v catalog.Video) VideoPublic {
	out := VideoPublic{
		ID:             v.ID,
		Name:           v.Name,
		Size:           v.FileSize,
		DownloadStatus: v.DownloadStatus,
		ViewCount:      v.ViewCount,
	}
	switch v.DownloadStatus {
	case catalog.StatusInProgress:
		if v.FileSize > 0 {
			out.Progress = float64(v.DownloadedSize) / float64(v.FileSize)
		}
	case catalog.StatusFailed:
		out.Message = v.Message
	}
	return out
}

func (s *Server) handleContentMetaList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.WithComponentFromContext(ctx, "httpapi")

	sections, err := s.catalog.CurrentManifestSections(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to assemble content metadata")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	videos := make([]CatalogVideoPublic, 0, len(sections))
	for _, sec := range sections {
		content := make([]VideoPublic, 0, len(sec.Content))
		for _, v := range sec.Content {
			content = append(content, toVideoPublic(v))
		}
		videos = append(videos, CatalogVideoPublic{Name: sec.Name, Content: content})
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": videos})
}

func (s *Server) handleContentMetaOne(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.WithComponentFromContext(ctx, "httpapi")

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	row, err := s.catalog.FindVideo(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"meta": nil})
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("id", id.String()).Msg("failed to look up video")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"meta": toVideoPublic(*row)})
}

func (s *Server) handleContentView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.WithComponentFromContext(ctx, "httpapi")

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	row, err := s.catalog.FindVideo(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("id", id.String()).Msg("failed to look up video")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if row.DownloadStatus != catalog.StatusDownloaded {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if err := s.catalog.IncrementViewCount(ctx, id); err != nil {
		logger.Error().Err(err).Str("id", id.String()).Msg("failed to increment view count")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
