// Package s3ds retrieves trip data from S3 or an S3-compatible object store.
package s3ds

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds connection settings. With no static keys the client runs
// unauthenticated, which is enough for public buckets.
type Config struct {
	Region          string
	Endpoint        string // host or URL of an S3-compatible store; implies path-style
	AccessKeyID     string
	SecretAccessKey string
}

type getObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source streams a single object.
type Source struct {
	api    getObjectAPI
	bucket string
	key    string
}

// New builds a Source for an s3://bucket/key locator.
func New(locator string, cfg Config) (*Source, error) {
	bucket, key, err := parseS3Path(locator)
	if err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{Region: region}
	if cfg.AccessKeyID != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}
	if cfg.Endpoint != "" {
		ep := cfg.Endpoint
		if !strings.Contains(ep, "://") {
			ep = "https://" + ep
		}
		opts.BaseEndpoint = aws.String(ep)
		opts.UsePathStyle = true
	}

	return &Source{api: s3.New(opts), bucket: bucket, key: key}, nil
}

// Bucket returns the object's bucket.
func (s *Source) Bucket() string { return s.bucket }

// Key returns the object key.
func (s *Source) Key() string { return s.key }

// Open issues GetObject and returns the streaming body.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("GetObject s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return out.Body, nil
}

// parseS3Path extracts bucket and key from an "s3://bucket/path/to/file" URI.
func parseS3Path(s3Path string) (bucket, key string, err error) {
	u, err := url.Parse(s3Path)
	if err != nil {
		return "", "", fmt.Errorf("parse S3 path %q: %w", s3Path, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("expected s3:// scheme, got %q in %q", u.Scheme, s3Path)
	}
	bucket = u.Host
	if bucket == "" {
		return "", "", fmt.Errorf("empty bucket in S3 path %q", s3Path)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("empty key in S3 path %q", s3Path)
	}
	return bucket, key, nil
}
