package storage

import (
	"context"

	"github.com/cockroachdb/errors/domains"
	"github.com/veedubyou/stemsplit/src/shared/config"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

var FileNotFoundMark = domains.New("file_not_found")

// FileStore reads and writes whole objects addressed by URL.
//
//counterfeiter:generate . FileStore
type FileStore interface {
	GetFile(ctx context.Context, fileURL string) ([]byte, error)
	WriteFile(ctx context.Context, fileURL string, data []byte) error
	DeleteFile(ctx context.Context, fileURL string) error
	Exists(ctx context.Context, fileURL string) (bool, error)
}

func NewFileStore(ctx context.Context, storageConfig config.CloudStorage) (FileStore, error) {
	switch storageConfig := storageConfig.(type) {
	case config.ProdCloudStorage:
		return NewGoogleFileStore(ctx, storageConfig.StorageHost, storageConfig.SecretKey)

	case config.LocalCloudStorage:
		return NewFakeGoogleFileStore(ctx, storageConfig.StorageHost, storageConfig.HostEndpoint)

	case config.S3CloudStorage:
		return NewS3FileStore(ctx, storageConfig)

	case config.DiskStorage:
		return NewLocalFileStore(storageConfig.RootDir)

	default:
		return nil, cerr.Field("config_type", storageConfig).Error("Unrecognized cloud storage config")
	}
}
