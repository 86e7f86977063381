// SPDX-License-Identifier: MIT

package remote

import (
	"context"
	"fmt"
	"net/url"
)

// Config supplies the inputs needed to select and construct a Backend.
type Config struct {
	RemoteServer string // configured remote URI; scheme selects the variant
	S3           S3Config
}

// New selects and constructs a Backend from the configured remote URI
// scheme: "file" or no scheme selects the file variant (rooted at the
// URI's path); "s3" selects the object-store variant. Any other scheme
// fails startup.
func New(ctx context.Context, cfg Config) (Backend, error) {
	u, err := url.Parse(cfg.RemoteServer)
	if err != nil {
		return nil, fetchErrorf("parse remote_server %q: %v", cfg.RemoteServer, err)
	}

	switch u.Scheme {
	case "", "file":
		return NewFileBackend(u.Path), nil
	case "s3":
		s3cfg := cfg.S3
		if s3cfg.Bucket == "" {
			s3cfg.Bucket = u.Host
		}
		return NewS3Backend(ctx, s3cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}
