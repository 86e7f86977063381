// SPDX-License-Identifier: MIT

// Package downloader implements the per-video download pipeline and the
// per-manifest batch supervisor that drives it with bounded concurrency,
// exponential backoff, and cancel-safe preemption.
package downloader

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vds-project/vds/internal/catalog"
	"github.com/vds-project/vds/internal/manifest"
	"github.com/vds-project/vds/internal/remote"
)

// Job is a unit of work: the intent to fetch exactly one video, carrying
// its current backoff duration.
type Job struct {
	Video   manifest.Video
	Backoff time.Duration
}

// Context bundles the shared, read-only dependencies a worker needs.
type Context struct {
	Backend     remote.Backend
	Catalog     *catalog.Catalog
	ContentPath string
}

// Outcome classifies a worker's result for the supervisor's run loop.
type Outcome int

const (
	// OutcomeOK: the video downloaded and verified successfully.
	OutcomeOK Outcome = iota
	// OutcomeShouldRetry: a transient failure; the job should re-enter the
	// backoff set.
	OutcomeShouldRetry
	// OutcomeUnrecoverable: a catalog mutation failed; the batch must
	// abort.
	OutcomeUnrecoverable
)

const readChunkSize = 32 * 1024

// targetPath returns the deterministic on-disk path for a video ID.
func targetPath(contentPath string, id uuid.UUID) string {
	return filepath.Join(contentPath, id.String()+".mp4")
}

// Run executes the single-video pipeline: stream, hash, write, commit.
func Run(ctx context.Context, dctx Context, job Job) Outcome {
	video := job.Video

	stream, err := dctx.Backend.FetchResource(ctx, video.URI)
	if err != nil {
		return failTransient(ctx, dctx, video.ID, fmt.Sprintf("open stream: %v", err))
	}
	defer stream.Close()

	path := targetPath(dctx.ContentPath, video.ID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return failTransient(ctx, dctx, video.ID, fmt.Sprintf("create target file: %v", err))
	}
	defer file.Close()

	hasher := sha256.New()
	var counter uint64

	buf := make([]byte, readChunkSize)
	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, err := hasher.Write(chunk); err != nil {
				return failTransient(ctx, dctx, video.ID, fmt.Sprintf("hash chunk: %v", err))
			}
			if _, err := file.Write(chunk); err != nil {
				return failTransient(ctx, dctx, video.ID, fmt.Sprintf("write chunk: %v", err))
			}
			counter += uint64(n)
			if err := dctx.Catalog.UpdateDownloadProgress(ctx, video.ID, counter); err != nil {
				return Outcome(unrecoverable())
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return failTransient(ctx, dctx, video.ID, fmt.Sprintf("read stream: %v", readErr))
		}
	}

	var got manifest.Sha256
	copy(got[:], hasher.Sum(nil))
	if !got.Equal(video.Sha256) {
		msg := fmt.Sprintf("Got hash: %s. Expected: %s", got, video.Sha256)
		return failTransient(ctx, dctx, video.ID, msg)
	}

	if err := dctx.Catalog.SetDownloaded(ctx, video.ID, path); err != nil {
		return unrecoverable()
	}
	return OutcomeOK
}

func failTransient(ctx context.Context, dctx Context, id uuid.UUID, reason string) Outcome {
	if err := dctx.Catalog.SetDownloadFailed(ctx, id, reason); err != nil {
		return unrecoverable()
	}
	return OutcomeShouldRetry
}

func unrecoverable() Outcome {
	return OutcomeUnrecoverable
}
