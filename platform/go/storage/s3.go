package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store keeps artifacts in an S3-compatible bucket and hands out presigned
// download links. A custom endpoint points it at MinIO in development.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	linkTTL time.Duration
	http    *http.Client
}

func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a bucket")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.S3Bucket,
		linkTTL: cfg.LinkTTL,
		http:    &http.Client{},
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3 object %s: %w", key, err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.linkTTL))
	if err != nil {
		return "", fmt.Errorf("presign s3 object %s: %w", key, err)
	}

	return req.URL, nil
}

func (s *S3Store) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if key, ok := s.keyForURL(rawURL); ok {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("get s3 object %s: %w", key, err)
		}
		defer out.Body.Close() // nolint:errcheck

		data, err := readCapped(out.Body)
		if err != nil {
			return nil, fmt.Errorf("read s3 object %s: %w", key, err)
		}
		return data, nil
	}

	return fetchHTTP(ctx, s.http, rawURL)
}

func (s *S3Store) Check(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}

// keyForURL recovers the object key from one of our own links, presigned or
// not, so expired signatures never block a re-download. Both path-style
// (MinIO) and virtual-host addressing are recognized.
func (s *S3Store) keyForURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	path := strings.TrimPrefix(u.Path, "/")
	if strings.HasPrefix(u.Host, s.bucket+".") {
		return path, path != ""
	}
	if key, ok := strings.CutPrefix(path, s.bucket+"/"); ok {
		return key, key != ""
	}

	return "", false
}
