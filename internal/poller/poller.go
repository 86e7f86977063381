// SPDX-License-Identifier: MIT

// Package poller drives the download supervisor: it periodically (and
// on-demand) fetches the manifest, decides whether it supersedes the
// currently-published one, and preempts any in-flight batch in favor of a
// new one — all through a single owned supervisor task handle.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/vds-project/vds/internal/catalog"
	"github.com/vds-project/vds/internal/command"
	"github.com/vds-project/vds/internal/downloader"
	"github.com/vds-project/vds/internal/log"
	"github.com/vds-project/vds/internal/manifest"
	"github.com/vds-project/vds/internal/remote"
)

// Config configures the poller's loop and the supervisors it spawns.
type Config struct {
	UpdateInterval time.Duration
	ContentPath    string
	Downloader     downloader.Config
}

// Poller owns the single active supervisor task handle and drives its
// replacement as newer manifests are promoted.
type Poller struct {
	backend  remote.Backend
	catalog  *catalog.Catalog
	commands *command.Channel
	cfg      Config

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// New constructs a Poller. Callers must call Run to start the loop.
func New(backend remote.Backend, cat *catalog.Catalog, commands *command.Channel, cfg Config) *Poller {
	return &Poller{backend: backend, catalog: cat, commands: commands, cfg: cfg}
}

// Run drives the poll loop until ctx is cancelled. At startup, if a
// manifest is already published, it spawns a supervisor for it before
// entering the loop, so a restart resumes in-progress downloads.
func (p *Poller) Run(ctx context.Context) {
	logger := log.WithComponent("poller")

	if m, ok := p.catalog.CurrentManifest(); ok {
		raw, _ := p.catalog.CurrentManifestRaw()
		p.spawnSupervisor(ctx, m, raw)
	}

	timer := time.NewTimer(p.cfg.UpdateInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.awaitCurrent()
			return

		case <-timer.C:
			p.tick(ctx)
			timer.Reset(p.cfg.UpdateInterval)

		case <-p.commands.Chan():
			p.tick(ctx)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(p.cfg.UpdateInterval)
		}

		// Drain any commands that landed in the overflow slice instead of
		// the buffered channel (a burst beyond its capacity): each still
		// deserves its own poll, since a caller posted expecting one.
		for {
			if _, ok := p.commands.Receive(); !ok {
				break
			}
			p.tick(ctx)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(p.cfg.UpdateInterval)
		}

		logger.Debug().Msg("poll cycle complete")
	}
}

func (p *Poller) tick(ctx context.Context) {
	logger := log.WithComponent("poller")

	raw, err := p.backend.FetchManifest(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("manifest fetch failed, will retry at next interval")
		return
	}

	newManifest, err := manifest.Parse(raw)
	if err != nil {
		logger.Warn().Err(err).Msg("manifest parse failed, will retry at next interval")
		return
	}

	cur, hasCur := p.catalog.CurrentManifest()
	if hasCur && !p.shouldPromote(cur, newManifest) {
		logger.Debug().Msg("manifest up to date")
		return
	}

	if err := p.catalog.SaveManifestToDisk(raw); err != nil {
		logger.Error().Err(err).Msg("failed to persist new manifest, not promoting")
		return
	}

	p.preemptCurrent()
	p.spawnSupervisor(ctx, newManifest, raw)
}

// shouldPromote implements §4.F step 4: promote iff cur is absent OR
// (cur != new AND cur.date < new.date).
func (p *Poller) shouldPromote(cur, newManifest manifest.Manifest) bool {
	if cur.Equal(newManifest) {
		return false
	}
	return cur.Date.Before(newManifest.Date)
}

func (p *Poller) preemptCurrent() {
	p.mu.Lock()
	cancel := p.cancelFunc
	done := p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

func (p *Poller) awaitCurrent() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Poller) spawnSupervisor(parent context.Context, m manifest.Manifest, raw []byte) {
	logger := log.WithComponent("poller")
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancelFunc = cancel
	p.done = done
	p.mu.Unlock()

	dctx := downloader.Context{
		Backend:     p.backend,
		Catalog:     p.catalog,
		ContentPath: p.cfg.ContentPath,
	}
	sup := downloader.New(dctx, p.cfg.Downloader)

	go func() {
		defer close(done)
		if err := sup.Run(ctx, m, raw); err != nil {
			logger.Warn().Err(err).Msg("supervisor batch ended with an error")
		}

		p.mu.Lock()
		if p.done == done {
			p.cancelFunc = nil
			p.done = nil
		}
		p.mu.Unlock()
	}()
}
