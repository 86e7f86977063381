// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vds-project/vds/internal/log"
	"github.com/vds-project/vds/internal/manifest"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO
)

const (
	dbFileName           = "vds.db"
	manifestFileName     = "current_manifest.json"
	tempManifestFileName = "_temp_manifest.json"
)

// Config configures the durable store.
type Config struct {
	RuntimePath string
	BusyTimeout time.Duration
	PoolSize    int
}

// Catalog is the durable per-video store plus the in-memory published
// manifest cell.
type Catalog struct {
	db          *sql.DB
	runtimePath string

	mu           sync.RWMutex
	manifestRaw  []byte
	manifestVal  manifest.Manifest
	hasManifest  bool
}

// Open opens or creates the durable store, applies pending migrations, and
// loads the last-published manifest from disk into memory if present and
// parseable.
func Open(ctx context.Context, cfg Config) (*Catalog, error) {
	if err := os.MkdirAll(cfg.RuntimePath, 0o755); err != nil {
		return nil, fmt.Errorf("catalog: create runtime path: %w", err)
	}

	busyTimeoutMS := cfg.BusyTimeout.Milliseconds()
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = 5000
	}
	dbPath := filepath.Join(cfg.RuntimePath, dbFileName)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath, busyTimeoutMS)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open database: %w", err)
	}
	if cfg.PoolSize > 0 {
		db.SetMaxOpenConns(cfg.PoolSize)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: ping database: %w", err)
	}

	c := &Catalog{db: db, runtimePath: cfg.RuntimePath}

	if err := c.applyPendingMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}

	if err := c.loadManifestFromDisk(); err != nil {
		log.WithComponent("catalog").Warn().Err(err).Msg("no usable persisted manifest at startup")
	}

	return c, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) applyPendingMigrations(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		downloaded_size INTEGER NOT NULL DEFAULT 0,
		download_status INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		file_path BLOB NOT NULL DEFAULT '',
		view_count INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

func (c *Catalog) manifestPath() string {
	return filepath.Join(c.runtimePath, manifestFileName)
}

func (c *Catalog) tempManifestPath() string {
	return filepath.Join(c.runtimePath, tempManifestFileName)
}

// loadManifestFromDisk is called once at Open; a missing or corrupt file is
// tolerated (startup proceeds with no published manifest).
func (c *Catalog) loadManifestFromDisk() error {
	data, err := os.ReadFile(c.manifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read persisted manifest: %w", err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return fmt.Errorf("parse persisted manifest: %w", err)
	}

	c.mu.Lock()
	c.manifestRaw = data
	c.manifestVal = m
	c.hasManifest = true
	c.mu.Unlock()
	return nil
}

// SaveManifestToDisk performs the two-phase durable publish: write to the
// fixed temp path, then rename onto the fixed final path. The rename is the
// atomic publish point; a crash between these steps leaves the previous
// manifest_path intact. Callers MUST call this before PublishManifest.
func (c *Catalog) SaveManifestToDisk(data []byte) error {
	tmp := c.tempManifestPath()

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("catalog: create temp manifest: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("catalog: write temp manifest: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("catalog: sync temp manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("catalog: close temp manifest: %w", err)
	}

	if err := os.Rename(tmp, c.manifestPath()); err != nil {
		return fmt.Errorf("catalog: publish manifest rename: %w", err)
	}
	return nil
}

// PublishManifest replaces the in-memory published manifest. Must be called
// only after SaveManifestToDisk has succeeded for the bytes that parse to m,
// and after all of m's video IDs are present in the durable store.
func (c *Catalog) PublishManifest(raw []byte, m manifest.Manifest) {
	c.mu.Lock()
	c.manifestRaw = raw
	c.manifestVal = m
	c.hasManifest = true
	c.mu.Unlock()
}

// CurrentManifest returns a snapshot of the published manifest, if any.
func (c *Catalog) CurrentManifest() (manifest.Manifest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.manifestVal, c.hasManifest
}

// CurrentManifestRaw returns the raw bytes last persisted, if any.
func (c *Catalog) CurrentManifestRaw() ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasManifest {
		return nil, false
	}
	out := make([]byte, len(c.manifestRaw))
	copy(out, c.manifestRaw)
	return out, true
}

// CurrentManifestSections joins the published manifest's order with catalog
// rows. Returns ErrMissingVideoInDB if any referenced row is absent.
func (c *Catalog) CurrentManifestSections(ctx context.Context) ([]SectionVideos, error) {
	m, ok := c.CurrentManifest()
	if !ok {
		return nil, nil
	}

	out := make([]SectionVideos, 0, len(m.Sections))
	for _, section := range m.Sections {
		content := make([]Video, 0, len(section.Content))
		for _, mv := range section.Content {
			v, err := c.FindVideo(ctx, mv.ID)
			if err != nil {
				if err == ErrNotFound {
					return nil, fmt.Errorf("%w: %s", ErrMissingVideoInDB, mv.ID)
				}
				return nil, err
			}
			content = append(content, *v)
		}
		out = append(out, SectionVideos{Name: section.Name, Content: content})
	}
	return out, nil
}
