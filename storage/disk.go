package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// DiskStore keeps uploads in a local directory served as static files.
type DiskStore struct {
	Dir     string
	BaseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create upload dir")
	}
	return &DiskStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *DiskStore) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	dst := filepath.Join(s.Dir, filepath.Base(key))
	out, err := os.Create(dst)
	if err != nil {
		return "", errors.Wrap(err, "create upload file")
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		os.Remove(dst)
		return "", errors.Wrap(err, "write upload file")
	}
	return s.BaseURL + "/" + filepath.Base(key), nil
}

func (s *DiskStore) Get(ctx context.Context, url string) ([]byte, error) {
	key, ok := strings.CutPrefix(url, s.BaseURL+"/")
	if !ok {
		return nil, errors.Errorf("url %q outside store base %q", url, s.BaseURL)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, filepath.Base(key)))
	return data, errors.Wrap(err, "read upload file")
}
