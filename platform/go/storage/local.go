package storage

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps artifacts on disk for development and tests. The API serves
// the directory under /artifacts so minted URLs resolve over HTTP too.
type LocalStore struct {
	dir     string
	baseURL string
	http    *http.Client
}

func NewLocalStore(cfg Config) (*LocalStore, error) {
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, fmt.Errorf("local backend requires a directory")
	}
	if err := os.MkdirAll(cfg.LocalDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	return &LocalStore{
		dir:     cfg.LocalDir,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		http:    &http.Client{},
	}, nil
}

// Dir is the root the API mounts as a static file server.
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	path, err := s.pathForKey(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir for %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", key, err)
	}

	return s.baseURL + "/artifacts/" + key, nil
}

func (s *LocalStore) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if key, ok := strings.CutPrefix(rawURL, s.baseURL+"/artifacts/"); ok && key != "" {
		path, err := s.pathForKey(key)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", key, err)
		}
		return data, nil
	}

	return fetchHTTP(ctx, s.http, rawURL)
}

func (s *LocalStore) Check(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("stat artifact dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("artifact path %s is not a directory", s.dir)
	}
	return nil
}

// pathForKey maps a key onto the artifact directory, refusing anything that
// would escape it.
func (s *LocalStore) pathForKey(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}
