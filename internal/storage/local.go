package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidDownloadToken is returned for expired or tampered links
var ErrInvalidDownloadToken = errors.New("invalid download token")

// downloadClaims is the payload of a local signed download link
type downloadClaims struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

// LocalStore keeps report files on disk and signs download links with
// HS256 tokens served by the /files/download route
type LocalStore struct {
	root    string
	baseURL string
	secret  []byte
}

// NewLocalStore creates a store rooted at dir. baseURL is the externally
// reachable server address used in signed links.
func NewLocalStore(dir, baseURL, secret string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{
		root:    dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  []byte(secret),
	}, nil
}

// Upload writes the file, replacing any existing one
func (s *LocalStore) Upload(ctx context.Context, p string, content []byte, contentType string) error {
	full, err := s.fullPath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write then rename so a reader never sees a partial file.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// SignURL returns a download link valid for ttl
func (s *LocalStore) SignURL(ctx context.Context, p string, ttl time.Duration) (string, error) {
	full, err := s.fullPath(p)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrObjectNotFound, p)
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	now := time.Now()
	claims := &downloadClaims{
		Path: p,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign download token: %w", err)
	}

	return s.baseURL + "/files/download?token=" + url.QueryEscape(token), nil
}

// DeleteMany removes files; already missing files are skipped
func (s *LocalStore) DeleteMany(ctx context.Context, paths []string) error {
	for _, p := range paths {
		full, err := s.fullPath(p)
		if err != nil {
			return err
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	return nil
}

// Resolve validates a download token and returns the file location and
// its base name
func (s *LocalStore) Resolve(token string) (string, string, error) {
	claims := &downloadClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", "", ErrInvalidDownloadToken
	}

	full, err := s.fullPath(claims.Path)
	if err != nil {
		return "", "", ErrInvalidDownloadToken
	}
	if _, err := os.Stat(full); err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrObjectNotFound, claims.Path)
	}
	return full, path.Base(claims.Path), nil
}

// fullPath maps an object path onto the root, rejecting escapes
func (s *LocalStore) fullPath(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", fmt.Errorf("invalid object path %q", p)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
