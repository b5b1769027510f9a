package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/feichai0017/document-monitor/config"
	"github.com/feichai0017/document-monitor/pkg/logger"
	"github.com/feichai0017/document-monitor/pkg/storage/gcs"
	"github.com/feichai0017/document-monitor/pkg/storage/local"
	"github.com/feichai0017/document-monitor/pkg/storage/minio"
	"github.com/feichai0017/document-monitor/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
	StorageTypeGCS   StorageType = "gcs"
)

// Storage is the blob gateway used by the pipeline. Keys are slash-separated
// paths; Download and Open fail with errors.ErrNotFound for a missing key and
// errors.ErrStorageFailed for anything else.
type Storage interface {
	// Upload 存储文件，返回对象位置 (s3://bucket/key 等)
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	// Download 读取完整对象
	Download(ctx context.Context, path string) ([]byte, error)
	// Open 以流方式读取对象，调用方负责关闭
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete 删除文件
	Delete(ctx context.Context, path string) error
	// CleanupBefore 清理过期文件
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (Storage, error) {
	switch StorageType(strings.ToLower(cfg.Type)) {
	case StorageTypeLocal, "":
		return local.NewLocalStorage(cfg.LocalRoot, log)
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, cfg.S3, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, cfg.Minio, log)
	case StorageTypeGCS:
		return gcs.NewGCSStorage(ctx, cfg.GCS, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// KeyFromLocation strips a scheme://bucket/ prefix so both bare keys and
// locations returned by Upload can be passed to Download.
func KeyFromLocation(location string) string {
	i := strings.Index(location, "://")
	if i < 0 {
		return location
	}
	rest := location[i+3:]
	if j := strings.Index(rest, "/"); j >= 0 {
		return rest[j+1:]
	}
	return ""
}
