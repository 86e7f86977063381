// SPDX-License-Identifier: MIT

package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vds-project/vds/internal/catalog"
	"github.com/vds-project/vds/internal/log"
)

// streamChunkSize bounds how much of the file is held in memory at once;
// each iteration of the copy loop below allocates a fresh slice of this
// size rather than reusing one across the response, so no buffer survives
// past the write that consumes it.
const streamChunkSize = 4096

var rangePattern = regexp.MustCompile(`^bytes=(\d+)-(\d*)$`)

// byteRange is an inclusive, fully-resolved [start, end] pair.
type byteRange struct {
	start, end int64
}

// parseRange parses a single "bytes=B-E" range header against a resource of
// the given total size. E is optional and defaults to total-1; an E past
// the end of the resource is clamped to total-1. Returns
// ok=false if there is no Range header; an error if the header is present
// but malformed or unsatisfiable.
func parseRange(header string, total int64) (byteRange, bool, error) {
	if header == "" {
		return byteRange{}, false, nil
	}
	m := rangePattern.FindStringSubmatch(header)
	if m == nil {
		return byteRange{}, false, fmt.Errorf("malformed range header %q", header)
	}
	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return byteRange{}, false, fmt.Errorf("malformed range start: %w", err)
	}
	end := total - 1
	if m[2] != "" {
		end, err = strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return byteRange{}, false, fmt.Errorf("malformed range end: %w", err)
		}
	}
	if end >= total {
		end = total - 1
	}
	if start > end || start >= total {
		return byteRange{}, false, fmt.Errorf("unsatisfiable range bytes=%d-%d/%d", start, end, total)
	}
	return byteRange{start: start, end: end}, true, nil
}

// handleContentStream serves the on-disk file for a downloaded video,
// honoring a single byte range if present. It deliberately does not
// delegate to http.ServeContent: that helper's copy path keeps a single
// buffer alive across the whole response, whereas this handler allocates a
// fresh chunk per iteration so at most one chunk is ever live at a time.
func (s *Server) handleContentStream(w http.ResponseWriter, r *http.Request) {
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
	if row.DownloadStatus != catalog.StatusDownloaded || row.FilePath == "" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	f, err := os.Open(row.FilePath)
	if err != nil {
		logger.Error().Err(err).Str("id", id.String()).Str("path", row.FilePath).Msg("failed to open content file")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = f.Close() }()

	total := int64(row.FileSize)
	rng, hasRange, err := parseRange(r.Header.Get("Range"), total)
	if err != nil {
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Accept-Ranges", "bytes")

	if !hasRange {
		w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
		w.WriteHeader(http.StatusOK)
		copyChunked(w, f, total, logger)
		return
	}

	if _, err := f.Seek(rng.start, io.SeekStart); err != nil {
		logger.Error().Err(err).Str("id", id.String()).Msg("failed to seek content file")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	length := rng.end - rng.start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, total))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	copyChunked(w, f, length, logger)
}

// copyChunked streams up to n bytes from src to w, allocating a fresh
// chunkSize (or smaller, for the final partial chunk) buffer per
// iteration. It never reuses a buffer across writes.
func copyChunked(w io.Writer, src io.Reader, n int64, logger zerolog.Logger) {
	remaining := n
	for remaining > 0 {
		size := int64(streamChunkSize)
		if remaining < size {
			size = remaining
		}
		chunk := make([]byte, size)
		read, err := io.ReadFull(src, chunk)
		if read > 0 {
			if _, werr := w.Write(chunk[:read]); werr != nil {
				logger.Warn().Err(werr).Msg("client disconnected mid-stream")
				return
			}
			remaining -= int64(read)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Warn().Err(err).Msg("failed reading content file mid-stream")
			}
			return
		}
	}
}
