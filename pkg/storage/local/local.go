package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

// LocalStorage keeps blobs on the local filesystem under root. Used for
// development and tests.
type LocalStorage struct {
	root   string
	logger logger.Logger
}

func NewLocalStorage(root string, log logger.Logger) (*LocalStorage, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStorage{root: root, logger: log.Named("local_storage")}, nil
}

func (l *LocalStorage) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", errors.Mark(errors.Newf("invalid key %q", key), errors.ErrStorageFailed)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean[1:])), nil
}

func (l *LocalStorage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	p, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "mkdir for %s", key), errors.ErrStorageFailed)
	}
	// rename keeps readers from ever seeing a partial blob
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "write %s", key), errors.ErrStorageFailed)
	}
	if err := os.Rename(tmp, p); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "commit %s", key), errors.ErrStorageFailed)
	}
	l.logger.Debug("Stored blob", logger.String("key", key), logger.Int("bytes", len(data)))
	return "file://local/" + strings.TrimPrefix(path.Clean("/"+key), "/"), nil
}

func (l *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Mark(errors.Wrapf(err, "object %s", key), errors.ErrNotFound)
		}
		return nil, errors.Mark(errors.Wrapf(err, "open %s", key), errors.ErrStorageFailed)
	}
	return f, nil
}

func (l *LocalStorage) Download(ctx context.Context, key string) ([]byte, error) {
	f, err := l.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read %s", key), errors.ErrStorageFailed)
	}
	return data, nil
}

func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	p, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Mark(errors.Wrapf(err, "delete %s", key), errors.ErrStorageFailed)
	}
	return nil
}

func (l *LocalStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	return filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(threshold) {
			if err := os.Remove(p); err != nil {
				l.logger.Error("Failed to delete expired object", logger.String("path", p), logger.Error(err))
				return nil
			}
			l.logger.Info("Deleted expired object", logger.String("path", p))
		}
		return nil
	})
}
