// SPDX-License-Identifier: MIT

package downloader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vds-project/vds/internal/catalog"
	"github.com/vds-project/vds/internal/log"
	"github.com/vds-project/vds/internal/manifest"
	"golang.org/x/sync/semaphore"
)

// RetryConfig bounds the per-job exponential backoff.
type RetryConfig struct {
	InitialBackoff time.Duration
	BackoffFactor  float64
	MaxBackoff     time.Duration
}

// Config configures one Supervisor.
type Config struct {
	ConcurrentDownloads int
	Retry               RetryConfig
}

// Supervisor runs one download batch for one manifest: bounded
// concurrency, a backoff queue, and a cancel-safe run loop.
type Supervisor struct {
	dctx Context
	cfg  Config
}

// New constructs a Supervisor for one batch.
func New(dctx Context, cfg Config) *Supervisor {
	return &Supervisor{dctx: dctx, cfg: cfg}
}

type workerResult struct {
	job     Job
	outcome Outcome
}

// Run executes the full batch sequence: reconcile, publish, cleanup,
// build the work set, and drive the cancel-safe run loop until the work
// set, in-flight set, and backoff set are all empty, or the batch is
// aborted (unrecoverable catalog error) or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, m manifest.Manifest, rawManifest []byte) error {
	logger := log.WithComponent("supervisor")

	if err := s.reconcile(ctx, m); err != nil {
		return fmt.Errorf("downloader: reconcile: %w", err)
	}

	s.dctx.Catalog.PublishManifest(rawManifest, m)

	if err := s.cleanup(ctx, m); err != nil {
		logger.Warn().Err(err).Msg("cleanup pass encountered an error")
	}

	queue, err := s.buildWorkSet(ctx, m)
	if err != nil {
		return fmt.Errorf("downloader: build work set: %w", err)
	}

	return s.runLoop(ctx, queue)
}

func (s *Supervisor) reconcile(ctx context.Context, m manifest.Manifest) error {
	for _, section := range m.Sections {
		for _, v := range section.Content {
			_, err := s.dctx.Catalog.FindVideo(ctx, v.ID)
			if err == catalog.ErrNotFound {
				if insertErr := s.dctx.Catalog.InsertVideo(ctx, v.ID, v.Name, v.FileSize); insertErr != nil && insertErr != catalog.ErrAlreadyExists {
					return insertErr
				}
				continue
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Supervisor) cleanup(ctx context.Context, m manifest.Manifest) error {
	referenced := make(map[uuid.UUID]struct{})
	for _, section := range m.Sections {
		for _, v := range section.Content {
			referenced[v.ID] = struct{}{}
		}
	}

	rows, err := s.dctx.Catalog.ListAllVideos(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if _, ok := referenced[row.ID]; ok {
			continue
		}
		if err := s.dctx.Catalog.DeleteVideo(ctx, row.ID); err != nil && err != catalog.ErrVideoStillInManifest {
			return err
		}
	}
	return nil
}

func (s *Supervisor) buildWorkSet(ctx context.Context, m manifest.Manifest) ([]Job, error) {
	seen := make(map[uuid.UUID]struct{})
	var queue []Job

	for _, section := range m.Sections {
		for _, v := range section.Content {
			if _, dup := seen[v.ID]; dup {
				continue
			}
			seen[v.ID] = struct{}{}

			row, err := s.dctx.Catalog.FindVideo(ctx, v.ID)
			if err != nil {
				return nil, err
			}
			if row.DownloadStatus == catalog.StatusDownloaded {
				continue
			}
			queue = append(queue, Job{Video: v, Backoff: s.cfg.Retry.InitialBackoff})
		}
	}
	return queue, nil
}

// runLoop is the cancel-safe core described in SPEC_FULL.md §4.E/§9: the
// backoff-expiry branch reads the head's wake time and pops it within the
// same select case body that waited on the timer, so cancellation can never
// observe a job half-moved between the backoff set and the work queue.
func (s *Supervisor) runLoop(ctx context.Context, queue []Job) error {
	logger := log.WithComponent("supervisor")

	sem := semaphore.NewWeighted(int64(s.cfg.ConcurrentDownloads))
	results := make(chan workerResult)
	var backoffs backoffSet
	inFlight := 0

	spawn := func(job Job) {
		inFlight++
		go func() {
			defer sem.Release(1)
			outcome := Run(ctx, s.dctx, job)
			select {
			case results <- workerResult{job: job, outcome: outcome}:
			case <-ctx.Done():
			}
		}()
	}

	for {
		for len(queue) > 0 && sem.TryAcquire(1) {
			job := queue[0]
			queue = queue[1:]
			spawn(job)
		}

		if len(queue) == 0 && inFlight == 0 && len(backoffs) == 0 {
			return nil
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if head, ok := backoffs.peek(); ok {
			d := time.Until(head.wakeAt)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case res := <-results:
			if timer != nil {
				timer.Stop()
			}
			inFlight--
			switch res.outcome {
			case OutcomeOK:
				// nothing further to do
			case OutcomeShouldRetry:
				job := res.job
				next := time.Now().Add(job.Backoff)
				job.Backoff = nextBackoff(job.Backoff, s.cfg.Retry.BackoffFactor, s.cfg.Retry.MaxBackoff)
				backoffs.insert(next, job)
			case OutcomeUnrecoverable:
				logger.Error().Str("video_id", res.job.Video.ID.String()).Msg("unrecoverable catalog error, aborting batch")
				return fmt.Errorf("downloader: unrecoverable error for video %s", res.job.Video.ID)
			}

		case <-timerC:
			entry := backoffs.pop()
			queue = append(queue, entry.job)
		}
	}
}
