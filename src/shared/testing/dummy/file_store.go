package dummy

import (
	"context"
	"sort"
	"sync"

	"github.com/veedubyou/stemsplit/src/shared/lib/errors/mark"
	"github.com/veedubyou/stemsplit/src/worker/storage"
)

var _ storage.FileStore = &FileStore{}

type FileStore struct {
	Unavailable bool
	// the next FlakyWrites writes fail before writes succeed again
	FlakyWrites int

	WriteAttempts int
	files         map[string][]byte
	mutex         sync.Mutex
}

func NewDummyFileStore() *FileStore {
	return &FileStore{
		files: make(map[string][]byte),
	}
}

func (f *FileStore) GetFile(_ context.Context, fileURL string) ([]byte, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.Unavailable {
		return nil, NetworkFailure
	}

	data, ok := f.files[fileURL]
	if !ok {
		return nil, mark.Wrap(NotFound, storage.FileNotFoundMark, "No file at "+fileURL)
	}

	return data, nil
}

func (f *FileStore) WriteFile(_ context.Context, fileURL string, data []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.WriteAttempts++
	if f.Unavailable {
		return NetworkFailure
	}

	if f.FlakyWrites > 0 {
		f.FlakyWrites--
		return NetworkFailure
	}

	f.files[fileURL] = data
	return nil
}

func (f *FileStore) DeleteFile(_ context.Context, fileURL string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.Unavailable {
		return NetworkFailure
	}

	if _, ok := f.files[fileURL]; !ok {
		return mark.Wrap(NotFound, storage.FileNotFoundMark, "No file at "+fileURL)
	}

	delete(f.files, fileURL)
	return nil
}

func (f *FileStore) Exists(_ context.Context, fileURL string) (bool, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.Unavailable {
		return false, NetworkFailure
	}

	_, ok := f.files[fileURL]
	return ok, nil
}

// URLs lists every stored file, sorted.
func (f *FileStore) URLs() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	urls := make([]string, 0, len(f.files))
	for url := range f.files {
		urls = append(urls, url)
	}

	sort.Strings(urls)
	return urls
}
