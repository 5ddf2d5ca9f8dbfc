package store

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/careerlens/careerlens/internal/config"
)

const memoryDSN = ":memory:"

// buildLibsqlDSN prefers a remote URL (with the auth token as a query
// parameter) and otherwise opens a local file.
func buildLibsqlDSN(cfg config.StoreConfig) (string, error) {
	if remote := strings.TrimSpace(cfg.URL); remote != "" {
		return withAuthToken(remote, strings.TrimSpace(cfg.AuthToken))
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return "", errors.New("store path or url is required")
	case path == memoryDSN, strings.HasPrefix(path, "libsql:"):
		return path, nil
	case strings.HasPrefix(path, "file:"):
		local, err := fileURLPath(path)
		if err != nil {
			return "", err
		}
		return path, ensureParentDir(local)
	default:
		return "file:" + filepath.Clean(path), ensureParentDir(path)
	}
}

// buildSQLiteDSN accepts a path in either Path or URL.
func buildSQLiteDSN(cfg config.StoreConfig) (string, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = strings.TrimSpace(cfg.URL)
	}
	switch {
	case path == "":
		return "", errors.New("store path is required")
	case path == memoryDSN, strings.HasPrefix(path, "file:"):
		return path, nil
	default:
		return filepath.Clean(path), ensureParentDir(path)
	}
}

func buildPostgresDSN(cfg config.StoreConfig) (string, error) {
	dsn := strings.TrimSpace(cfg.URL)
	if dsn == "" {
		return "", errors.New("store url is required for postgres")
	}
	return dsn, nil
}

// withAuthToken sets authToken on dsn unless the URL already carries one.
func withAuthToken(dsn, token string) (string, error) {
	if token == "" {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	q := u.Query()
	if q.Get("authToken") != "" {
		return dsn, nil
	}
	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func fileURLPath(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store path: %w", err)
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	return strings.TrimPrefix(p, "//"), nil
}

func ensureParentDir(path string) error {
	if path == "" || path == memoryDSN {
		return nil
	}
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- shared data directory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
