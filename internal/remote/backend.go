// SPDX-License-Identifier: MIT

// Package remote abstracts the source of manifest and video bytes: a
// local directory or an S3-compatible object store.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrFetch wraps every transient error encountered while fetching a
// manifest or a resource.
var ErrFetch = errors.New("remote: fetch error")

// ErrUnsupportedScheme is returned when the configured remote URI scheme
// has no backend implementation.
var ErrUnsupportedScheme = errors.New("remote: unsupported scheme")

// Backend abstracts the source of manifest and video bytes.
type Backend interface {
	// FetchManifest returns the raw manifest document bytes. Integrity is
	// the caller's concern.
	FetchManifest(ctx context.Context) ([]byte, error)

	// FetchResource opens a single-shot, lazy byte stream for uri. The
	// returned ReadCloser must be closed by the caller. A fresh call
	// re-opens the resource; streams are not restartable.
	FetchResource(ctx context.Context, uri string) (io.ReadCloser, error)
}

const manifestKey = "manifest.json"

func fetchErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFetch, fmt.Sprintf(format, args...))
}
