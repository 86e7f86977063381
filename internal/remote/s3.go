// SPDX-License-Identifier: MIT

package remote

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// maxS3Attempts bounds retries for transient upstream failures, per §4.B.
const maxS3Attempts = 3

// S3Config supplies explicit credentials/region. A non-empty Region is
// used as given; the static credentials are used only when both
// AccessKeyID and SecretAccessKey are set. Otherwise region and
// credentials come from the SDK's default chain (environment, shared
// config, instance role).
type S3Config struct {
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// S3Backend resolves resource URIs as keys in a configured bucket.
type S3Backend struct {
	client *s3.Client
	bucket string
}

// NewS3Backend constructs a client for cfg.Bucket and verifies the bucket
// is reachable before returning, so misconfiguration fails fast at
// startup.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(maxS3Attempts),
	}
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fetchErrorf("s3 backend: load config: %v", err)
	}

	client := s3.NewFromConfig(awsCfg)

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fetchErrorf("s3 backend: bucket %q unreachable: %v", cfg.Bucket, err)
	}

	return &S3Backend{client: client, bucket: cfg.Bucket}, nil
}

func (b *S3Backend) key(uri string) string {
	path := uri
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		path = u.Path
	}
	return strings.TrimPrefix(path, "/")
}

// FetchManifest reads the "manifest.json" key from the configured bucket.
func (b *S3Backend) FetchManifest(ctx context.Context) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(manifestKey),
	})
	if err != nil {
		return nil, fetchErrorf("s3 backend: get manifest: %v", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fetchErrorf("s3 backend: read manifest body: %v", err)
	}
	return data, nil
}

// FetchResource streams the object resolved from uri.
func (b *S3Backend) FetchResource(ctx context.Context, uri string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(uri)),
	})
	if err != nil {
		return nil, fetchErrorf("s3 backend: get object %q: %v", uri, err)
	}
	return out.Body, nil
}
