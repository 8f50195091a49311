package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const gcsHost = "storage.googleapis.com"

// GCSStore keeps artifacts in a Google Cloud Storage bucket. Credentials come
// from application default credentials; links are V4 signed URLs.
type GCSStore struct {
	client  *gcs.Client
	bucket  string
	linkTTL time.Duration
	http    *http.Client
}

func NewGCSStore(ctx context.Context, cfg Config) (*GCSStore, error) {
	if cfg.GCSBucket == "" {
		return nil, fmt.Errorf("gcs backend requires a bucket")
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("init gcs client: %w", err)
	}

	return &GCSStore{
		client:  client,
		bucket:  cfg.GCSBucket,
		linkTTL: cfg.LinkTTL,
		http:    &http.Client{},
	}, nil
}

func (s *GCSStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		return "", fmt.Errorf("write gcs object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("commit gcs object %s: %w", key, err)
	}

	signed, err := s.client.Bucket(s.bucket).SignedURL(key, &gcs.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.linkTTL),
		Scheme:  gcs.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("sign gcs url %s: %w", key, err)
	}

	return signed, nil
}

func (s *GCSStore) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if key, ok := s.keyForURL(rawURL); ok {
		rc, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
		if err != nil {
			return nil, fmt.Errorf("open gcs object %s: %w", key, err)
		}
		defer rc.Close() // nolint:errcheck

		data, err := readCapped(rc)
		if err != nil {
			return nil, fmt.Errorf("read gcs object %s: %w", key, err)
		}
		return data, nil
	}

	return fetchHTTP(ctx, s.http, rawURL)
}

func (s *GCSStore) Check(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("bucket attrs %s: %w", s.bucket, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// keyForURL recovers the object key from one of our own signed URLs so expiry
// never blocks a re-download.
func (s *GCSStore) keyForURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	path := strings.TrimPrefix(u.Path, "/")
	if u.Host == s.bucket+"."+gcsHost {
		return path, path != ""
	}
	if u.Host == gcsHost {
		if key, ok := strings.CutPrefix(path, s.bucket+"/"); ok {
			return key, key != ""
		}
	}

	return "", false
}
