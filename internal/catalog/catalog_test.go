// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/vds-project/vds/internal/manifest"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(context.Background(), Config{RuntimePath: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestInsertFindVideo(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	id := uuid.New()

	if err := c.InsertVideo(ctx, id, "lesson one", 4); err != nil {
		t.Fatalf("InsertVideo: %v", err)
	}
	v, err := c.FindVideo(ctx, id)
	if err != nil {
		t.Fatalf("FindVideo: %v", err)
	}
	if v.Name != "lesson one" || v.FileSize != 4 || v.DownloadStatus != StatusPending || v.ViewCount != 0 {
		t.Errorf("unexpected row: %+v", v)
	}
}

func TestInsertVideoDuplicateIsError(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	id := uuid.New()

	if err := c.InsertVideo(ctx, id, "a", 1); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := c.InsertVideo(ctx, id, "b", 2); err != ErrAlreadyExists {
		t.Fatalf("second insert: got %v, want ErrAlreadyExists", err)
	}

	v, err := c.FindVideo(ctx, id)
	if err != nil {
		t.Fatalf("FindVideo: %v", err)
	}
	if v.Name != "a" {
		t.Errorf("expected original row to survive, got name %q", v.Name)
	}
}

func TestDeleteVideoRefusedWhileInManifest(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	id := uuid.New()

	if err := c.InsertVideo(ctx, id, "a", 1); err != nil {
		t.Fatalf("insert: %v", err)
	}

	m := manifestWithVideo(t, id)
	raw, err := manifest.Serialize(m)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if err := c.SaveManifestToDisk(raw); err != nil {
		t.Fatalf("SaveManifestToDisk: %v", err)
	}
	c.PublishManifest(raw, m)

	if err := c.DeleteVideo(ctx, id); err != ErrVideoStillInManifest {
		t.Fatalf("DeleteVideo = %v, want ErrVideoStillInManifest", err)
	}

	c.PublishManifest([]byte(`{}`), manifest.Manifest{})
	if err := c.DeleteVideo(ctx, id); err != nil {
		t.Fatalf("DeleteVideo after unpublish: %v", err)
	}
}

func TestDownloadedBytesNeverExceedFileSize(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	id := uuid.New()
	if err := c.InsertVideo(ctx, id, "a", 100); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := c.UpdateDownloadProgress(ctx, id, 50); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	v, err := c.FindVideo(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if v.DownloadedSize > v.FileSize {
		t.Errorf("downloaded_size %d exceeds file_size %d", v.DownloadedSize, v.FileSize)
	}
	if v.DownloadStatus != StatusInProgress {
		t.Errorf("status = %v, want InProgress", v.DownloadStatus)
	}
}

func TestSetDownloadedAndFailed(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	id := uuid.New()
	if err := c.InsertVideo(ctx, id, "a", 4); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := c.SetDownloadFailed(ctx, id, "hash mismatch"); err != nil {
		t.Fatalf("SetDownloadFailed: %v", err)
	}
	v, err := c.FindVideo(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if v.DownloadStatus != StatusFailed || v.Message != "hash mismatch" {
		t.Errorf("unexpected row after failure: %+v", v)
	}

	if err := c.SetDownloaded(ctx, id, "/content/"+id.String()+".mp4"); err != nil {
		t.Fatalf("SetDownloaded: %v", err)
	}
	v, err = c.FindVideo(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if v.DownloadStatus != StatusDownloaded || v.FilePath == "" || v.Message != "" {
		t.Errorf("unexpected row after success: %+v", v)
	}
}

func TestIncrementViewCountConcurrent(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	id := uuid.New()
	if err := c.InsertVideo(ctx, id, "a", 4); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.IncrementViewCount(ctx, id); err != nil {
				t.Errorf("IncrementViewCount: %v", err)
			}
		}()
	}
	wg.Wait()

	v, err := c.FindVideo(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if v.ViewCount != 3 {
		t.Errorf("view_count = %d, want 3", v.ViewCount)
	}
}

func TestSaveManifestToDiskCrashSafety(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(context.Background(), Config{RuntimePath: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	original := []byte(`{"name":"b0","date":"2026-01-01","version":"v1.0.0","sections":[]}`)
	if err := c.SaveManifestToDisk(original); err != nil {
		t.Fatalf("save b0: %v", err)
	}
	c.PublishManifest(original, manifest.Manifest{})

	// Simulate a crash: write the temp file for b1 but never rename it.
	if err := os.WriteFile(filepath.Join(dir, tempManifestFileName), []byte(`{"name":"b1"}`), 0o644); err != nil {
		t.Fatalf("simulate crash temp write: %v", err)
	}

	c2, err := Open(context.Background(), Config{RuntimePath: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()

	raw, ok := c2.CurrentManifestRaw()
	if !ok {
		t.Fatal("expected a persisted manifest to load")
	}
	if string(raw) != string(original) {
		t.Errorf("reload got %q, want original %q", raw, original)
	}

	if _, err := os.Stat(filepath.Join(dir, tempManifestFileName)); err != nil {
		t.Errorf("expected temp manifest file to still exist untouched: %v", err)
	}
}

func TestCurrentManifestSectionsMissingRowIsInvariantViolation(t *testing.T) {
	c := openTestCatalog(t)
	id := uuid.New()
	m := manifestWithVideo(t, id)
	c.PublishManifest(nil, m)

	if _, err := c.CurrentManifestSections(context.Background()); !errors.Is(err, ErrMissingVideoInDB) {
		t.Fatalf("got %v, expected ErrMissingVideoInDB when no row was inserted", err)
	}
}

func manifestWithVideo(t *testing.T, id uuid.UUID) manifest.Manifest {
	t.Helper()
	sha, err := manifest.ParseSha256("9f64a747e1b97f131fabb6b447296c9b6f0201e79fb3c5356e6c77e89b6a806a")
	if err != nil {
		t.Fatalf("parse sha256 fixture: %v", err)
	}
	data := []byte(`{"name":"x","date":"2026-01-01","version":"v1.0.0","sections":[]}`)
	var m manifest.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	m.Sections = []manifest.Section{
		{Name: "section", Content: []manifest.Video{
			{Name: "video", ID: id, URI: "file:///video.mp4", Sha256: sha, FileSize: 4},
		}},
	}
	return m
}
