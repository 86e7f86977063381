// SPDX-License-Identifier: MIT

// Package catalog holds the durable per-video state and the in-memory
// published manifest, with the atomicity guarantees required so that
// clients never see a manifest whose videos are absent from the catalog.
package catalog

import (
	"errors"

	"github.com/google/uuid"
)

// DownloadStatusKind is the small integer enum persisted for a video's
// download status.
type DownloadStatusKind int

const (
	StatusPending DownloadStatusKind = iota
	StatusFailed
	StatusInProgress
	StatusDownloaded
)

func (k DownloadStatusKind) String() string {
	switch k {
	case StatusPending:
		return "Pending"
	case StatusFailed:
		return "Failed"
	case StatusInProgress:
		return "InProgress"
	case StatusDownloaded:
		return "Downloaded"
	default:
		return "Unknown"
	}
}

// Video is the persistent per-ID record.
type Video struct {
	ID             uuid.UUID
	Name           string
	FileSize       uint64
	DownloadStatus DownloadStatusKind
	DownloadedSize uint64
	Message        string
	FilePath       string
	ViewCount      uint64
}

var (
	// ErrNotFound is returned when no row exists for the requested ID.
	ErrNotFound = errors.New("catalog: video not found")

	// ErrAlreadyExists is returned by InsertVideo when the ID is already
	// present.
	ErrAlreadyExists = errors.New("catalog: video already exists")

	// ErrVideoStillInManifest is returned by DeleteVideo when the ID is
	// referenced by the currently-published manifest.
	ErrVideoStillInManifest = errors.New("catalog: video is still referenced by the published manifest")

	// ErrMissingVideoInDB indicates a published manifest references an ID
	// with no corresponding catalog row — a programming-error-class
	// invariant violation.
	ErrMissingVideoInDB = errors.New("catalog: manifest references a video missing from the database")
)

// SectionVideos pairs a section name with its catalog rows, in manifest
// order.
type SectionVideos struct {
	Name    string
	Content []Video
}
