package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors/markers"
	"github.com/google/uuid"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/shared/lib/storagepath"
	"github.com/veedubyou/stemsplit/src/shared/lib/working_dir"
	"github.com/veedubyou/stemsplit/src/worker/audio/codec"
)

const maxRetries = 3

// Gateway is the only way job inputs come in and stems go out.
type Gateway struct {
	fileStore  FileStore
	paths      storagepath.Generator
	workingDir working_dir.WorkingDir
	newBackOff func() backoff.BackOff
}

func NewGateway(fileStore FileStore, paths storagepath.Generator, workingDir working_dir.WorkingDir) Gateway {
	return Gateway{
		fileStore:  fileStore,
		paths:      paths,
		workingDir: workingDir,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// WithRetryInterval swaps the exponential backoff for a constant one.
func (g Gateway) WithRetryInterval(interval time.Duration) Gateway {
	g.newBackOff = func() backoff.BackOff {
		return backoff.NewConstantBackOff(interval)
	}
	return g
}

func (g Gateway) Paths() storagepath.Generator {
	return g.paths
}

// Resolve checks that inputRef names one of owner's uploads, readable and
// in a supported format.
func (g Gateway) Resolve(ctx context.Context, owner string, inputRef string) (codec.Format, error) {
	errctx := cerr.Fields(cerr.F{
		"input_ref": inputRef,
		"owner":     owner,
	})

	if _, _, err := g.paths.Split(inputRef); err != nil {
		return "", failure.Wrap(errctx.Wrap(err).Error("Input is not in this store"),
			failure.InvalidInput, "input reference cannot be resolved")
	}

	if !g.paths.IsUploadOf(inputRef, owner) {
		return "", failure.Wrap(errctx.Error("Input is not an upload of the owner"),
			failure.InvalidInput, "input reference is not one of your uploads")
	}

	format, err := codec.FormatFromPath(inputRef)
	if err != nil {
		return "", errctx.Wrap(err).Error("Input has an unsupported extension")
	}

	var exists bool
	err = g.retry(ctx, func() error {
		var existsErr error
		exists, existsErr = g.fileStore.Exists(ctx, inputRef)
		return existsErr
	})
	if err != nil {
		return "", failure.Wrap(errctx.Wrap(err).Error("Failed to check for input"),
			failure.StorageError, "input could not be checked")
	}

	if !exists {
		return "", failure.Wrap(errctx.Error("Input does not exist"),
			failure.InvalidInput, "input reference cannot be resolved")
	}

	return format, nil
}

// Materialize downloads inputRef into a scratch dir. cleanup removes it and
// must be called on every path.
func (g Gateway) Materialize(ctx context.Context, inputRef string) (string, codec.Format, func(), error) {
	errctx := cerr.Field("input_ref", inputRef)

	format, err := codec.FormatFromPath(inputRef)
	if err != nil {
		return "", "", nil, errctx.Wrap(err).Error("Input has an unsupported extension")
	}

	var data []byte
	err = g.retry(ctx, func() error {
		var getErr error
		data, getErr = g.fileStore.GetFile(ctx, inputRef)
		return getErr
	})
	if markers.Is(err, FileNotFoundMark) {
		return "", "", nil, failure.Wrap(errctx.Wrap(err).Error("Input is gone"),
			failure.InvalidInput, "input reference cannot be resolved")
	}
	if err != nil {
		return "", "", nil, failure.Wrap(errctx.Wrap(err).Error("Failed to download input"),
			failure.StorageError, "input could not be downloaded")
	}

	tempDir, cleanup, err := g.workingDir.MakeTempDir("input-*")
	if err != nil {
		return "", "", nil, failure.Wrap(err, failure.InternalError, "no scratch space for input")
	}

	path := filepath.Join(tempDir, "original"+format.Extension())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		cleanup()
		return "", "", nil, failure.Wrap(errctx.Wrap(err).Error("Failed to write input to scratch"),
			failure.InternalError, "input could not be staged")
	}

	return path, format, cleanup, nil
}

// Persist writes one encoded stem and returns its URL.
func (g Gateway) Persist(ctx context.Context, jobID string, stem string, format codec.Format, data []byte) (string, error) {
	url := g.paths.StemPath(jobID, stem, format.Extension())

	err := g.retry(ctx, func() error {
		return g.fileStore.WriteFile(ctx, url, data)
	})
	if err != nil {
		return "", failure.Wrap(cerr.Fields(cerr.F{
			"job_id": jobID,
			"stem":   stem,
			"url":    url,
		}).Wrap(err).Error("Failed to persist stem"), failure.StorageError, "stem could not be stored")
	}

	return url, nil
}

// Upload stores a user supplied file and returns a reference to submit. An
// empty file is stored like any other; its job fails when decoding.
func (g Gateway) Upload(ctx context.Context, owner string, fileName string, data []byte) (string, error) {
	format, err := codec.FormatFromPath(fileName)
	if err != nil {
		return "", err
	}

	url := g.paths.UploadPath(owner, uuid.New().String(), format.Extension())
	err = g.retry(ctx, func() error {
		return g.fileStore.WriteFile(ctx, url, data)
	})
	if err != nil {
		return "", failure.Wrap(cerr.Fields(cerr.F{
			"owner": owner,
			"url":   url,
		}).Wrap(err).Error("Failed to store upload"), failure.StorageError, "upload could not be stored")
	}

	return url, nil
}

// Discard deletes whatever of urls exists. Failures are logged, not
// returned. It runs even when ctx is already cancelled.
func (g Gateway) Discard(ctx context.Context, urls []string) {
	ctx = context.WithoutCancel(ctx)
	for _, url := range urls {
		err := g.fileStore.DeleteFile(ctx, url)
		if err == nil || markers.Is(err, FileNotFoundMark) {
			continue
		}

		log.WithField("url", url).WithError(err).Warn("Failed to discard output")
	}
}

// retry gives transient store errors a bounded number of retries. Missing
// files are permanent.
func (g Gateway) retry(ctx context.Context, op func() error) error {
	attempt := func() error {
		err := op()
		if err != nil && markers.Is(err, FileNotFoundMark) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(g.newBackOff(), maxRetries), ctx)
	return backoff.Retry(attempt, policy)
}
