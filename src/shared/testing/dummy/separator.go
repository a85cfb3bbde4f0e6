package dummy

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	"github.com/veedubyou/stemsplit/src/worker/audio"
	"github.com/veedubyou/stemsplit/src/worker/pipeline"
	"github.com/veedubyou/stemsplit/src/worker/separation"
)

var _ pipeline.Separator = &Separator{}

// Separator splits a buffer into equal shares, one per stem, and counts how
// it is used. Hold, when set, blocks every run until it is closed.
type Separator struct {
	Stems       []string
	MaxDuration time.Duration
	StemDelay   time.Duration
	Hold        chan struct{}
	Panic       bool

	mutex         sync.Mutex
	separateCalls int
	running       int
	maxRunning    int
}

func NewDummySeparator(stems ...string) *Separator {
	if len(stems) == 0 {
		stems = []string{"vocals", "drums", "bass", "other"}
	}

	return &Separator{
		Stems: stems,
	}
}

func (s *Separator) StemNames() []string {
	return s.Stems
}

func (s *Separator) Validate(buf audio.Buffer) error {
	if buf.IsEmpty() {
		return failure.New(failure.EmptyInput, "input has no samples")
	}

	if s.MaxDuration > 0 && buf.Duration() > s.MaxDuration {
		return failure.New(failure.InputTooLong, "input is too long")
	}

	return nil
}

func (s *Separator) Separate(ctx context.Context, buf audio.Buffer, onStem separation.StemHandler) error {
	s.mutex.Lock()
	s.separateCalls++
	s.running++
	s.maxRunning = max(s.maxRunning, s.running)
	s.mutex.Unlock()

	defer func() {
		s.mutex.Lock()
		s.running--
		s.mutex.Unlock()
	}()

	if s.Panic {
		panic("separator exploded")
	}

	if s.Hold != nil {
		select {
		case <-s.Hold:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}

	share := 1 / float32(len(s.Stems))
	for _, name := range s.Stems {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		if s.StemDelay > 0 {
			select {
			case <-time.After(s.StemDelay):
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		}

		stem := audio.Silence(buf.SampleRate, buf.NumChannels(), buf.Frames())
		for c, channel := range buf.Channels {
			for i, sample := range channel {
				stem.Channels[c][i] = sample * share
			}
		}

		if err := onStem(ctx, audio.Stem{Name: name, Buffer: stem}); err != nil {
			return errors.Wrap(err, "stem handler failed")
		}
	}

	return nil
}

func (s *Separator) SeparateCalls() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.separateCalls
}

func (s *Separator) MaxRunning() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.maxRunning
}
