package working_dir

import (
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/gofrs/flock"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
)

const (
	tempDirName  = "tmp"
	lockFileName = ".stemsplit.lock"
)

// WorkingDir is the scratch area for one process. Everything under TempDir
// is disposable.
type WorkingDir struct {
	root string
}

func NewWorkingDir(dir string) (WorkingDir, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return WorkingDir{}, cerr.Field("dir", dir).Wrap(err).Error("Failed to convert working dir to absolute format")
	}

	workingDir := WorkingDir{root: absDir}
	if err := os.MkdirAll(workingDir.TempDir(), os.ModePerm); err != nil {
		return WorkingDir{}, cerr.Field("temp_dir", workingDir.TempDir()).
			Wrap(err).Error("Failed to create temp dir")
	}

	return workingDir, nil
}

func (w WorkingDir) Root() string {
	return w.root
}

func (w WorkingDir) TempDir() string {
	return filepath.Join(w.root, tempDirName)
}

// MakeTempDir creates a fresh directory under TempDir. The returned cleanup
// removes it and everything inside.
func (w WorkingDir) MakeTempDir(pattern string) (string, func(), error) {
	tempDir, err := os.MkdirTemp(w.TempDir(), pattern)
	if err != nil {
		return "", nil, cerr.Field("temp_dir", w.TempDir()).
			Wrap(err).Error("Failed to create temp dir")
	}

	cleanup := func() {
		if err := os.RemoveAll(tempDir); err != nil {
			log.WithField("temp_dir", tempDir).WithError(err).Warn("Failed to remove temp dir")
		}
	}

	return tempDir, cleanup, nil
}

// Claim takes an exclusive lock on the working dir and clears out whatever a
// previous process left behind in TempDir. The lock is held until release is
// called.
func (w WorkingDir) Claim() (func(), error) {
	lock := flock.New(filepath.Join(w.root, lockFileName))

	ok, err := lock.TryLock()
	if err != nil {
		return nil, cerr.Field("root", w.root).Wrap(err).Error("Failed to acquire working dir lock")
	}

	if !ok {
		return nil, cerr.Field("root", w.root).Error("Working dir is in use by another process")
	}

	if err := w.sweep(); err != nil {
		_ = lock.Unlock()
		return nil, cerr.Wrap(err).Error("Failed to sweep stale temp files")
	}

	release := func() {
		if err := lock.Unlock(); err != nil {
			log.WithField("root", w.root).WithError(err).Warn("Failed to release working dir lock")
		}
	}

	return release, nil
}

func (w WorkingDir) sweep() error {
	entries, err := os.ReadDir(w.TempDir())
	if err != nil {
		return cerr.Field("temp_dir", w.TempDir()).Wrap(err).Error("Failed to read temp dir")
	}

	for _, entry := range entries {
		stalePath := filepath.Join(w.TempDir(), entry.Name())
		log.WithField("path", stalePath).Info("Removing stale temp entry")
		if err := os.RemoveAll(stalePath); err != nil {
			return cerr.Field("path", stalePath).Wrap(err).Error("Failed to remove stale temp entry")
		}
	}

	return nil
}
