package filestore

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// GCSStore is a Store backed by a single GCS bucket; containers map to
// top-level object prefixes.
type GCSStore struct {
	bucket  *storage.BucketHandle
	timeout time.Duration
	logger  ectologger.Logger
}

// NewGCSStore wraps a bucket with a per-operation timeout.
func NewGCSStore(client *storage.Client, bucketName string, timeout time.Duration, logger ectologger.Logger) *GCSStore {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &GCSStore{
		bucket:  client.Bucket(bucketName),
		timeout: timeout,
		logger:  logger,
	}
}

func objectName(container, name string) string {
	return path.Join(container, name)
}

// Download fetches container/name into destDir.
func (s *GCSStore) Download(ctx context.Context, container, name, destDir string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "filestore.GCSStore.Download")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reader, err := s.bucket.Object(objectName(container, name)).NewReader(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("Failed to open %s/%s", container, name)
		return "", fmt.Errorf("filestore: open %s/%s: %w", container, name, err)
	}
	defer reader.Close()

	localPath := filepath.Join(destDir, filepath.Base(name))
	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("filestore: create %s: %w", localPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		os.Remove(localPath)
		s.logger.WithContext(ctx).WithError(err).Errorf("Failed to download %s/%s", container, name)
		return "", fmt.Errorf("filestore: download %s/%s: %w", container, name, err)
	}

	return localPath, nil
}

// Upload stores the local file at container/name.
func (s *GCSStore) Upload(ctx context.Context, container, name, localPath string) (ObjectInfo, error) {
	ctx, span := tracing.StartSpan(ctx, "filestore.GCSStore.Upload")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	in, err := os.Open(localPath)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("filestore: open %s: %w", localPath, err)
	}
	defer in.Close()

	obj := s.bucket.Object(objectName(container, name))
	writer := obj.NewWriter(ctx)
	if _, err := io.Copy(writer, in); err != nil {
		_ = writer.Close()
		s.logger.WithContext(ctx).WithError(err).Errorf("Failed to upload %s/%s", container, name)
		return ObjectInfo{}, fmt.Errorf("filestore: upload %s/%s: %w", container, name, err)
	}
	if err := writer.Close(); err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("Failed to finalize upload of %s/%s", container, name)
		return ObjectInfo{}, fmt.Errorf("filestore: finalize %s/%s: %w", container, name, err)
	}

	attrs := writer.Attrs()
	return ObjectInfo{
		Name:     name,
		Size:     attrs.Size,
		Checksum: hex.EncodeToString(attrs.MD5),
	}, nil
}

// Stat returns the stored object's name and size.
func (s *GCSStore) Stat(ctx context.Context, container, name string) (ObjectInfo, error) {
	ctx, span := tracing.StartSpan(ctx, "filestore.GCSStore.Stat")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	attrs, err := s.bucket.Object(objectName(container, name)).Attrs(ctx)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("filestore: stat %s/%s: %w", container, name, err)
	}

	return ObjectInfo{
		Name:     name,
		Size:     attrs.Size,
		Checksum: hex.EncodeToString(attrs.MD5),
	}, nil
}
