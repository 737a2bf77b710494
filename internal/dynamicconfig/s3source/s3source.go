// Package s3source implements dynamicconfig.LocalSource by reading the
// fleet-wide desired-config document from a single object in an S3 bucket,
// adapted from the teacher's per-node S3Store (internal/store/s3.go) to
// the Dynamic Config Store's fleet-wide shape.
package s3source

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds options for creating a Source.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string
	// Key is the object key holding the fleet-wide desired config document.
	Key string
	// Region is the AWS region. If empty, it's resolved from the environment.
	Region string
	// EndpointURL overrides the S3 endpoint (useful for LocalStack/MinIO testing).
	EndpointURL string
}

// Source implements dynamicconfig.LocalSource.
type Source struct {
	client *s3.Client
	bucket string
	key    string
}

// New creates a Source. AWS credentials are resolved from the standard
// chain (env vars, instance profile, shared config, etc.).
func New(ctx context.Context, cfg Config) (*Source, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3source: loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.EndpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		})
	}

	return &Source{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		key:    cfg.Key,
	}, nil
}

// NewFromClient creates a Source with a pre-configured S3 client, useful
// for testing against a fake or local endpoint.
func NewFromClient(client *s3.Client, bucket, key string) *Source {
	return &Source{client: client, bucket: bucket, key: key}
}

// Load implements dynamicconfig.LocalSource.
func (s *Source) Load(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3source: fetching s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3source: reading s3://%s/%s body: %w", s.bucket, s.key, err)
	}
	return data, nil
}
