package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the s3:// strategy.
type S3Config struct {
	// Region is the AWS region. Required unless Endpoint implies one.
	Region string

	// Endpoint overrides the S3 endpoint, for MinIO and other
	// S3-compatible stores. Empty uses AWS.
	Endpoint string

	// AccessKeyID/SecretAccessKey are static credentials. When empty the
	// default AWS credential chain applies.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle addresses buckets as path components instead of
	// subdomains. Required by most S3-compatible stores.
	ForcePathStyle bool
}

// S3Fetcher fetches s3://bucket/key URIs with the AWS SDK.
type S3Fetcher struct {
	client *s3.Client
}

// NewS3Fetcher builds the S3 client from configuration.
func NewS3Fetcher(ctx context.Context, cfg S3Config) (*S3Fetcher, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("fetch: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3Fetcher{client: client}, nil
}

// NewS3FetcherWithClient wraps an existing client. Primarily for tests.
func NewS3FetcherWithClient(client *s3.Client) *S3Fetcher {
	return &S3Fetcher{client: client}
}

// Open implements the per-scheme strategy contract for s3://bucket/key URIs.
func (f *S3Fetcher) Open(ctx context.Context, uri string, _ map[string]any) (io.ReadCloser, int64, error) {
	bucket, key, err := splitS3URI(uri)
	if err != nil {
		return nil, 0, err
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("fetch: s3 get %s: %w", uri, err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

func splitS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("fetch: parse s3 uri %q: %w", uri, err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("fetch: s3 uri %q must be s3://bucket/key", uri)
	}
	return bucket, key, nil
}
