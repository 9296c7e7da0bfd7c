package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FileStore persists objects onto the local filesystem. It is the degraded /
// development backend used when no object storage service is configured.
// Signed URLs point at the service's own /static handler and carry an
// HMAC-expiring token so the external contract matches a real object store.
type FileStore struct {
	basePath string
	baseURL  string
	secret   []byte
	now      func() time.Time
}

// NewFileStore initializes a FileStore rooted at basePath. baseURL is the
// externally reachable origin of the service, secret signs download tokens.
func NewFileStore(basePath, baseURL, secret string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
		secret:   []byte(secret),
		now:      time.Now,
	}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	return s.basePath
}

func (s *FileStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return Locator(cleanKey), nil
}

func (s *FileStore) Download(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	return data, nil
}

func (s *FileStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	exp := s.now().Add(ttl).Unix()
	sig := signStaticToken(s.secret, cleanKey, exp)
	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", sig)
	return fmt.Sprintf("%s/static/%s?%s", s.baseURL, cleanKey, q.Encode()), nil
}

func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: stat file: %w", err)
	}
	return true, nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := filepath.WalkDir(s.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: walk: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// VerifyStaticToken checks the exp/sig pair the /static handler receives.
func (s *FileStore) VerifyStaticToken(key, expStr, sig string) bool {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return false
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return false
	}
	expected := signStaticToken(s.secret, cleanKey, exp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

func signStaticToken(secret []byte, key string, exp int64) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s|%d", key, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

var _ Store = (*FileStore)(nil)
