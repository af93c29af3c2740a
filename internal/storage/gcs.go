// Package storage uploads user-submitted images to a GCS bucket and hands
// back public URLs. Everything else about objects (serving, caching) is
// the bucket's problem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

type ImageStore struct {
	client *storage.Client
	bucket string
}

func NewImageStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*ImageStore, error) {
	if bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &ImageStore{client: client, bucket: bucket}, nil
}

var extByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Upload stores the image under a random object name and returns its
// public URL. Only common image content types are accepted.
func (s *ImageStore) Upload(ctx context.Context, contentType string, r io.Reader) (string, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := extByContentType[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
	name := "listings/" + uuid.NewString() + ext

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=86400"
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, name), nil
}

func (s *ImageStore) Close() error {
	return s.client.Close()
}
