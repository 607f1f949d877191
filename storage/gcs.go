package storage

import (
	"context"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/pkg/errors"
)

// GCSStore keeps uploads in a Google Cloud Storage bucket and hands out
// public object URLs.
type GCSStore struct {
	bucket *gcs.BucketHandle
	base   string
}

func NewGCSStore(ctx context.Context, bucketName string) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "gcs client")
	}
	return &GCSStore{
		bucket: client.Bucket(bucketName),
		base:   "https://storage.googleapis.com/" + bucketName + "/",
	}, nil
}

func (s *GCSStore) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", errors.Wrap(err, "gcs write")
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, "gcs close")
	}
	return s.base + key, nil
}

func (s *GCSStore) Get(ctx context.Context, url string) ([]byte, error) {
	key, ok := strings.CutPrefix(url, s.base)
	if !ok {
		return nil, errors.Errorf("url %q outside bucket base", url)
	}
	rd, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "gcs open")
	}
	defer rd.Close()
	return io.ReadAll(rd)
}
