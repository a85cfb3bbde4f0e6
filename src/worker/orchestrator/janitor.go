package orchestrator

import (
	"context"
	"time"

	"github.com/apex/log"
)

const defaultJanitorInterval = time.Minute

func (o *Orchestrator) runJanitor(ctx context.Context) {
	interval := o.config.JanitorInterval
	if interval <= 0 {
		interval = defaultJanitorInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			o.EvictExpired(now)
		}
	}
}

// EvictExpired drops finished jobs older than the retention period from
// memory. Their records stay in the store.
func (o *Orchestrator) EvictExpired(now time.Time) int {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	evicted := 0
	for id, e := range o.jobs {
		if !e.job.State.IsTerminal() || e.job.FinishedAt == nil {
			continue
		}

		if now.Sub(*e.job.FinishedAt) > o.config.Retention {
			delete(o.jobs, id)
			evicted++
		}
	}

	if evicted > 0 {
		log.WithField("evicted", evicted).Debug("Evicted expired jobs from memory")
	}

	return evicted
}
