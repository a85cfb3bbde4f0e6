package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/shared/lib/errors/mark"
	"github.com/veedubyou/stemsplit/src/shared/lib/storagepath"
)

var _ FileStore = LocalFileStore{}

// LocalFileStore maps file://{root}/{bucket}/{object} URLs onto the
// filesystem under root.
type LocalFileStore struct {
	root  string
	paths storagepath.Generator
}

func NewLocalFileStore(rootDir string) (LocalFileStore, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return LocalFileStore{}, cerr.Field("root_dir", rootDir).Wrap(err).Error("Failed to resolve storage root")
	}

	if err := os.MkdirAll(absRoot, os.ModePerm); err != nil {
		return LocalFileStore{}, cerr.Field("root_dir", absRoot).Wrap(err).Error("Failed to create storage root")
	}

	return LocalFileStore{
		root:  absRoot,
		paths: storagepath.Generator{Host: "file://" + rootDir},
	}, nil
}

func (l LocalFileStore) Host() string {
	return l.paths.Host
}

func (l LocalFileStore) GetFile(_ context.Context, fileURL string) ([]byte, error) {
	path, err := l.localPath(fileURL)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, mark.Wrap(err, FileNotFoundMark, "No file at "+fileURL)
	}
	if err != nil {
		return nil, cerr.Field("path", path).Wrap(err).Error("Failed to read file")
	}

	return data, nil
}

func (l LocalFileStore) WriteFile(_ context.Context, fileURL string, data []byte) error {
	path, err := l.localPath(fileURL)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return cerr.Field("path", path).Wrap(err).Error("Failed to create parent dirs")
	}

	// write then rename so readers never see a partial object
	tempPath := path + ".partial"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return cerr.Field("path", tempPath).Wrap(err).Error("Failed to write file")
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return cerr.Field("path", path).Wrap(err).Error("Failed to move file into place")
	}

	return nil
}

func (l LocalFileStore) DeleteFile(_ context.Context, fileURL string) error {
	path, err := l.localPath(fileURL)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if os.IsNotExist(err) {
		return mark.Wrap(err, FileNotFoundMark, "No file at "+fileURL)
	}
	if err != nil {
		return cerr.Field("path", path).Wrap(err).Error("Failed to delete file")
	}

	return nil
}

func (l LocalFileStore) Exists(_ context.Context, fileURL string) (bool, error) {
	path, err := l.localPath(fileURL)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, cerr.Field("path", path).Wrap(err).Error("Failed to stat file")
	}

	return !info.IsDir(), nil
}

func (l LocalFileStore) localPath(fileURL string) (string, error) {
	bucket, object, err := l.paths.Split(fileURL)
	if err != nil {
		return "", mark.Wrap(err, FileNotFoundMark, "URL is not in this store")
	}

	escapes := mark.Message(FileNotFoundMark, "URL escapes the storage root: "+fileURL)

	if bucket == "." || bucket == ".." || strings.ContainsAny(bucket, `/\`) {
		return "", escapes
	}

	for _, segment := range strings.Split(object, "/") {
		if segment == ".." {
			return "", escapes
		}
	}

	path := filepath.Join(l.root, bucket, filepath.FromSlash(object))
	rel, err := filepath.Rel(l.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", escapes
	}

	return path, nil
}
