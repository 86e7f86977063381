// SPDX-License-Identifier: MIT

package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/vds-project/vds/internal/catalog"
	"github.com/vds-project/vds/internal/command"
	"github.com/vds-project/vds/internal/manifest"
)

func sha256Fixture(body []byte) manifest.Sha256 {
	sum := sha256.Sum256(body)
	var out manifest.Sha256
	copy(out[:], sum[:])
	return out
}

func openTestServer(t *testing.T) (*Server, *catalog.Catalog) {
	t.Helper()
	cat, err := catalog.Open(context.Background(), catalog.Config{RuntimePath: t.TempDir()})
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	srv := New(cat, command.New(), t.TempDir(), func() bool { return true })
	return srv, cat
}

func publishSingleVideo(t *testing.T, cat *catalog.Catalog, contentDir string, body []byte) uuid.UUID {
	t.Helper()
	id := uuid.New()
	v := manifest.Video{
		Name: "fixture.mp4", ID: id, URI: "file:///fixture.mp4",
		Sha256: sha256Fixture(body), FileSize: uint64(len(body)),
	}
	m := manifest.Manifest{
		Name: "m", Date: manifest.Date{}, Version: manifest.Version{Major: 1},
		Sections: []manifest.Section{{Name: "section", Content: []manifest.Video{v}}},
	}
	raw, err := manifest.Serialize(m)
	if err != nil {
		t.Fatalf("serialize manifest: %v", err)
	}
	if err := cat.SaveManifestToDisk(raw); err != nil {
		t.Fatalf("save manifest: %v", err)
	}
	cat.PublishManifest(raw, m)

	if err := cat.InsertVideo(context.Background(), id, v.Name, v.FileSize); err != nil {
		t.Fatalf("insert video: %v", err)
	}
	path := filepath.Join(contentDir, id.String()+".mp4")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write content file: %v", err)
	}
	if err := cat.SetDownloaded(context.Background(), id, path); err != nil {
		t.Fatalf("set downloaded: %v", err)
	}
	return id
}

func TestHealthzReflectsReadiness(t *testing.T) {
	cat, err := catalog.Open(context.Background(), catalog.Config{RuntimePath: t.TempDir()})
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer cat.Close()

	ready := false
	srv := New(cat, command.New(), t.TempDir(), func() bool { return ready })
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()

	ready = true
	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestContentMetaListAndOne(t *testing.T) {
	srv, cat := openTestServer(t)
	contentDir := t.TempDir()
	id := publishSingleVideo(t, cat, contentDir, []byte{1, 2, 3, 4})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/content/meta")
	if err != nil {
		t.Fatalf("GET meta list: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	// Decode against the wire shape directly (status as a raw tagged
	// union) rather than VideoPublic, which only implements MarshalJSON.
	var body struct {
		Videos []struct {
			Name    string `json:"name"`
			Content []struct {
				Status json.RawMessage `json:"status"`
			} `json:"content"`
		} `json:"videos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Videos) != 1 || len(body.Videos[0].Content) != 1 {
		t.Fatalf("unexpected shape: %+v", body)
	}
	if got := string(body.Videos[0].Content[0].Status); got != `"Downloaded"` {
		t.Errorf("status = %s, want \"Downloaded\"", got)
	}

	resp2, err := http.Get(ts.URL + "/api/content/meta/" + id.String())
	if err != nil {
		t.Fatalf("GET meta one: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp2.StatusCode)
	}
}

func TestContentMetaOneMalformedID(t *testing.T) {
	srv, _ := openTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/content/meta/not-a-uuid")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestContentStreamRangeRead(t *testing.T) {
	srv, cat := openTestServer(t)
	contentDir := t.TempDir()
	body := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	id := publishSingleVideo(t, cat, contentDir, body)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/content/"+id.String(), nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Range", "bytes=2-5")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET content: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes 2-5/10" {
		t.Errorf("Content-Range = %q, want %q", got, "bytes 2-5/10")
	}
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	want := []byte{2, 3, 4, 5}
	if string(got) != string(want) {
		t.Errorf("body = %v, want %v", got, want)
	}
}

func TestContentStreamFullBodyWithoutRange(t *testing.T) {
	srv, cat := openTestServer(t)
	contentDir := t.TempDir()
	body := []byte{9, 8, 7, 6}
	id := publishSingleVideo(t, cat, contentDir, body)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/content/" + id.String())
	if err != nil {
		t.Fatalf("GET content: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("body = %v, want %v", got, body)
	}
}

func TestContentStreamUnsatisfiableRange(t *testing.T) {
	srv, cat := openTestServer(t)
	contentDir := t.TempDir()
	id := publishSingleVideo(t, cat, contentDir, []byte{1, 2, 3})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/content/"+id.String(), nil)
	req.Header.Set("Range", "bytes=10-20")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET content: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestedRangeNotSatisfiable {
		t.Errorf("status = %d, want 416", resp.StatusCode)
	}
}

func TestContentViewConcurrentIncrements(t *testing.T) {
	srv, cat := openTestServer(t)
	contentDir := t.TempDir()
	id := publishSingleVideo(t, cat, contentDir, []byte{1})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(ts.URL+"/api/content/"+id.String()+"/view", "", nil)
			if err != nil {
				t.Errorf("POST view: %v", err)
				return
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()

	row, err := cat.FindVideo(context.Background(), id)
	if err != nil {
		t.Fatalf("find video: %v", err)
	}
	if row.ViewCount != 3 {
		t.Errorf("view_count = %d, want 3", row.ViewCount)
	}
}

func TestContentViewNotDownloadedIs404(t *testing.T) {
	srv, cat := openTestServer(t)
	id := uuid.New()
	if err := cat.InsertVideo(context.Background(), id, "pending.mp4", 10); err != nil {
		t.Fatalf("insert video: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/content/"+id.String()+"/view", "", nil)
	if err != nil {
		t.Fatalf("POST view: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestManifestLatestAndFetch(t *testing.T) {
	srv, cat := openTestServer(t)
	contentDir := t.TempDir()
	publishSingleVideo(t, cat, contentDir, []byte{1, 2})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/manifest/latest")
	if err != nil {
		t.Fatalf("GET manifest/latest: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(raw) == 0 {
		t.Error("expected non-empty manifest body")
	}

	resp2, err := http.Post(ts.URL+"/api/manifest/fetch", "", nil)
	if err != nil {
		t.Fatalf("POST manifest/fetch: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp2.StatusCode)
	}
}
