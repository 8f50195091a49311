// Package storage persists signing artifacts (signed PDFs, audit bundles) and
// resolves previously issued artifact URLs back to bytes.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Artifact object names under a request's key prefix.
const (
	SignedPDFName = "signed.pdf"
	AuditLogName  = "audit.json"
)

// maxFetchBytes caps downloads of base documents; uploaded leases are small PDFs.
const maxFetchBytes = 50 << 20

// Store is the artifact persistence contract shared by all backends.
type Store interface {
	// Put uploads data under key and returns a URL a signer can open.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	// Fetch retrieves the bytes behind a URL. Implementations resolve their own
	// URLs directly and fall back to a plain HTTP GET for foreign ones.
	Fetch(ctx context.Context, url string) ([]byte, error)
	// Check verifies the backend is reachable; readiness probes call it.
	Check(ctx context.Context) error
}

// ArtifactKey builds the canonical object key for a signing artifact.
func ArtifactKey(leaseID, requestID uuid.UUID, name string) string {
	return fmt.Sprintf("leases/%s/%s/%s", leaseID, requestID, name)
}

// Backend identifiers accepted in configuration.
const (
	BackendS3    = "s3"
	BackendGCS   = "gcs"
	BackendLocal = "local"
)

// Config selects and parameterizes the artifact backend.
type Config struct {
	Backend string

	// S3 / MinIO
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool

	// Google Cloud Storage
	GCSBucket string

	// Local directory backend
	LocalDir string

	// PublicBaseURL is the externally reachable origin of the API, used by the
	// local backend to mint artifact URLs.
	PublicBaseURL string

	// LinkTTL bounds the validity of minted download links where the backend
	// supports expiry. Defaults to 7 days, matching the signing-link TTL.
	LinkTTL time.Duration
}

// New constructs the configured backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 7 * 24 * time.Hour
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendS3:
		return NewS3Store(ctx, cfg)
	case BackendGCS:
		return NewGCSStore(ctx, cfg)
	case BackendLocal, "":
		return NewLocalStore(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// readCapped drains an object body under the global size cap.
func readCapped(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxFetchBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxFetchBytes {
		return nil, fmt.Errorf("object exceeds %d bytes", maxFetchBytes)
	}
	return data, nil
}

// fetchHTTP downloads a foreign URL with a size cap.
func fetchHTTP(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := readCapped(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	return data, nil
}
