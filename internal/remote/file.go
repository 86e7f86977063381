// SPDX-License-Identifier: MIT

package remote

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileBackend resolves resource URIs against a local base directory.
type FileBackend struct {
	baseDir string
}

// NewFileBackend returns a Backend rooted at baseDir.
func NewFileBackend(baseDir string) *FileBackend {
	return &FileBackend{baseDir: baseDir}
}

func (b *FileBackend) resolve(uri string) string {
	path := uri
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.TrimPrefix(path, string(filepath.Separator))
	path = strings.TrimPrefix(path, "/")
	return filepath.Join(b.baseDir, path)
}

// FetchManifest reads <baseDir>/manifest.json.
func (b *FileBackend) FetchManifest(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.baseDir, manifestKey))
	if err != nil {
		return nil, fetchErrorf("file backend: read manifest: %v", err)
	}
	return data, nil
}

// FetchResource opens the file resolved from uri for streaming reads.
func (b *FileBackend) FetchResource(ctx context.Context, uri string) (io.ReadCloser, error) {
	f, err := os.Open(b.resolve(uri))
	if err != nil {
		return nil, fetchErrorf("file backend: open %q: %v", uri, err)
	}
	return f, nil
}
