package storage

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/cockroachdb/errors"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/shared/lib/errors/mark"
	"github.com/veedubyou/stemsplit/src/shared/lib/storagepath"
	"google.golang.org/api/option"
)

var _ FileStore = GoogleFileStore{}

type GoogleFileStore struct {
	client *storage.Client
	paths  storagepath.Generator
}

// NewGoogleFileStore authenticates with a service account JSON key.
func NewGoogleFileStore(ctx context.Context, storageHost string, jsonKey string) (GoogleFileStore, error) {
	client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(jsonKey)))
	if err != nil {
		return GoogleFileStore{}, cerr.Wrap(err).Error("Failed to create GCS client")
	}

	return GoogleFileStore{
		client: client,
		paths:  storagepath.Generator{Host: storageHost},
	}, nil
}

// NewFakeGoogleFileStore talks to a GCS emulator without credentials.
func NewFakeGoogleFileStore(ctx context.Context, storageHost string, endpoint string) (GoogleFileStore, error) {
	client, err := storage.NewClient(ctx, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	if err != nil {
		return GoogleFileStore{}, cerr.Field("endpoint", endpoint).Wrap(err).Error("Failed to create fake GCS client")
	}

	return GoogleFileStore{
		client: client,
		paths:  storagepath.Generator{Host: storageHost},
	}, nil
}

func (g GoogleFileStore) Close() error {
	return g.client.Close()
}

func (g GoogleFileStore) GetFile(ctx context.Context, fileURL string) ([]byte, error) {
	object, err := g.object(fileURL)
	if err != nil {
		return nil, err
	}

	reader, err := object.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, mark.Wrap(err, FileNotFoundMark, "No object at "+fileURL)
	}
	if err != nil {
		return nil, cerr.Field("url", fileURL).Wrap(err).Error("Failed to open object")
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, cerr.Field("url", fileURL).Wrap(err).Error("Failed to read object")
	}

	return data, nil
}

func (g GoogleFileStore) WriteFile(ctx context.Context, fileURL string, data []byte) error {
	object, err := g.object(fileURL)
	if err != nil {
		return err
	}

	writer := object.NewWriter(ctx)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return cerr.Field("url", fileURL).Wrap(err).Error("Failed to write object")
	}

	if err := writer.Close(); err != nil {
		return cerr.Field("url", fileURL).Wrap(err).Error("Failed to finish object upload")
	}

	return nil
}

func (g GoogleFileStore) DeleteFile(ctx context.Context, fileURL string) error {
	object, err := g.object(fileURL)
	if err != nil {
		return err
	}

	err = object.Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return mark.Wrap(err, FileNotFoundMark, "No object at "+fileURL)
	}
	if err != nil {
		return cerr.Field("url", fileURL).Wrap(err).Error("Failed to delete object")
	}

	return nil
}

func (g GoogleFileStore) Exists(ctx context.Context, fileURL string) (bool, error) {
	object, err := g.object(fileURL)
	if err != nil {
		return false, err
	}

	_, err = object.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, cerr.Field("url", fileURL).Wrap(err).Error("Failed to get object attributes")
	}

	return true, nil
}

func (g GoogleFileStore) object(fileURL string) (*storage.ObjectHandle, error) {
	bucket, object, err := g.paths.Split(fileURL)
	if err != nil {
		return nil, mark.Wrap(err, FileNotFoundMark, "URL is not in this store")
	}

	return g.client.Bucket(bucket).Object(object), nil
}
