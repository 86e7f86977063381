// SPDX-License-Identifier: MIT

// Package config defines the typed configuration surface consumed by the
// process composition root. Loading configuration from a file or flags is
// an external collaborator's responsibility; this package only defines
// the shape, with struct tags documenting the VDS_-prefixed environment
// variable an external loader would flatten onto each field.
package config

import "time"

// HTTPConfig configures the content HTTP surface's listener.
type HTTPConfig struct {
	ListenAddress string `env:"VDS_HTTP_LISTEN_ADDRESS"`
	ListenPort    int    `env:"VDS_HTTP_LISTEN_PORT"`
}

// RetryConfig bounds the downloader's exponential backoff.
type RetryConfig struct {
	InitialBackoff time.Duration `env:"VDS_DOWNLOADER_RETRY_INITIAL_BACKOFF"`
	BackoffFactor  float64       `env:"VDS_DOWNLOADER_RETRY_BACKOFF_FACTOR"`
	MaxBackoff     time.Duration `env:"VDS_DOWNLOADER_RETRY_MAX_BACKOFF"`
}

// DownloaderConfig configures the manifest poller and download supervisor.
type DownloaderConfig struct {
	ConcurrentDownloads int           `env:"VDS_DOWNLOADER_CONCURRENT_DOWNLOADS"`
	ContentPath         string        `env:"VDS_DOWNLOADER_CONTENT_PATH"`
	RemoteServer        string        `env:"VDS_DOWNLOADER_REMOTE_SERVER"`
	UpdateInterval      time.Duration `env:"VDS_DOWNLOADER_UPDATE_INTERVAL"`
	Retry               RetryConfig
}

// DBConfig configures the catalog's durable store.
type DBConfig struct {
	BusyTimeout time.Duration `env:"VDS_DB_BUSY_TIMEOUT"`
	RuntimePath string        `env:"VDS_DB_RUNTIME_PATH"`
	PoolSize    int           `env:"VDS_DB_POOL_SIZE"`
}

// AWSConfig supplies object-store credentials. An empty Region, or an
// empty AccessKeyID or SecretAccessKey (which disables both), falls back
// to the AWS SDK's default credential chain.
type AWSConfig struct {
	AccessKeyID     string `env:"VDS_AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"VDS_AWS_SECRET_ACCESS_KEY"`
	Region          string `env:"VDS_AWS_REGION"`
}

// Config is the complete typed configuration surface.
type Config struct {
	Debug      bool `env:"VDS_DEBUG"`
	HTTP       HTTPConfig
	Downloader DownloaderConfig
	DB         DBConfig
	AWS        AWSConfig
}

// Default returns a Config with the same defaults the teacher's bootstrap
// pattern applies before any external override is layered on top.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			ListenAddress: "127.0.0.1",
			ListenPort:    8080,
		},
		Downloader: DownloaderConfig{
			ConcurrentDownloads: 8,
			ContentPath:         "content",
			UpdateInterval:      15 * time.Minute,
			Retry: RetryConfig{
				InitialBackoff: 500 * time.Millisecond,
				BackoffFactor:  2.0,
				MaxBackoff:     30 * time.Second,
			},
		},
		DB: DBConfig{
			BusyTimeout: 5 * time.Second,
			RuntimePath: "runtime",
			PoolSize:    8,
		},
	}
}
