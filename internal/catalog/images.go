package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

const maxImageBytes = 10 << 20

// ImageStore downloads item images into the media directory.
type ImageStore struct {
	dir       string
	userAgent string
	http      *http.Client
}

// NewImageStore creates an ImageStore rooted at mediaDir.
func NewImageStore(mediaDir, userAgent string, hc *http.Client) *ImageStore {
	return &ImageStore{dir: mediaDir, userAgent: userAgent, http: hc}
}

// Save fetches rawURL and stores it as items/<basename>. It returns the
// path relative to the media directory.
func (s *ImageStore) Save(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return "", fmt.Errorf("invalid image url %q", rawURL)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("image url %q has no file name", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch image: http %d", resp.StatusCode)
	}

	rel := path.Join("items", name)
	dst := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create image dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, io.LimitReader(resp.Body, maxImageBytes)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return rel, nil
}
