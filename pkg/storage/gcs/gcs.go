package gcs

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	cfg "github.com/feichai0017/document-monitor/config"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

type GCSStorage struct {
	client     *storage.Client
	bucket     *storage.BucketHandle
	bucketName string
	logger     logger.Logger
}

func NewGCSStorage(ctx context.Context, gcsConfig cfg.GCSConfig, log logger.Logger) (*GCSStorage, error) {
	var opts []option.ClientOption
	if gcsConfig.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(gcsConfig.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	bucket := client.Bucket(gcsConfig.BucketName)
	if _, err := bucket.Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to verify bucket %s: %w", gcsConfig.BucketName, err)
	}

	return &GCSStorage{
		client:     client,
		bucket:     bucket,
		bucketName: gcsConfig.BucketName,
		logger:     log.Named("gcs"),
	}, nil
}

// Upload writes through an object writer; the write is only committed on Close.
func (g *GCSStorage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		g.logger.Error("Failed to write GCS object", logger.String("key", key), logger.Error(err))
		return "", errors.Mark(errors.Wrapf(err, "write %s", key), errors.ErrStorageFailed)
	}
	if err := w.Close(); err != nil {
		g.logger.Error("Failed to finalize GCS write", logger.String("key", key), logger.Error(err))
		return "", errors.Mark(errors.Wrapf(err, "finalize %s", key), errors.ErrStorageFailed)
	}

	return fmt.Sprintf("gs://%s/%s", g.bucketName, key), nil
}

func (g *GCSStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if stderrors.Is(err, storage.ErrObjectNotExist) {
			return nil, errors.Mark(errors.Wrapf(err, "object %s", key), errors.ErrNotFound)
		}
		g.logger.Error("Failed to open GCS object", logger.String("key", key), logger.Error(err))
		return nil, errors.Mark(errors.Wrapf(err, "open %s", key), errors.ErrStorageFailed)
	}
	return r, nil
}

func (g *GCSStorage) Download(ctx context.Context, key string) ([]byte, error) {
	r, err := g.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read %s", key), errors.ErrStorageFailed)
	}
	return data, nil
}

func (g *GCSStorage) Delete(ctx context.Context, key string) error {
	if err := g.bucket.Object(key).Delete(ctx); err != nil && !stderrors.Is(err, storage.ErrObjectNotExist) {
		return errors.Mark(errors.Wrapf(err, "delete %s", key), errors.ErrStorageFailed)
	}
	return nil
}

func (g *GCSStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	it := g.bucket.Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		if attrs.Updated.Before(threshold) {
			if err := g.Delete(ctx, attrs.Name); err != nil {
				g.logger.Error("Failed to delete expired object", logger.String("key", attrs.Name), logger.Error(err))
				continue
			}
			g.logger.Info("Deleted expired object", logger.String("key", attrs.Name))
		}
	}
}

// Close releases the underlying client.
func (g *GCSStorage) Close() error {
	return g.client.Close()
}
