package orchestrator

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
)

const defaultLease = 2 * time.Minute

// leases are renewed several times per lease so one slow write doesn't
// expire a live job
const heartbeatsPerLease = 3

// keepLeases renews this instance's unfinished records and periodically
// fails records whose instance stopped renewing them.
func (o *Orchestrator) keepLeases(ctx context.Context) {
	heartbeat := time.NewTicker(o.lease / heartbeatsPerLease)
	defer heartbeat.Stop()

	sweep := time.NewTicker(o.lease)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			o.renewLeases()
		case <-sweep.C:
			if err := o.recoverAbandoned(ctx); err != nil {
				cerr.Log(cerr.Wrap(err).Error("Failed to sweep for abandoned jobs"))
			}
		}
	}
}

func (o *Orchestrator) renewLeases() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	now := o.now()
	for _, e := range o.jobs {
		if e.job.State.IsTerminal() {
			continue
		}

		e.job.InstanceID = o.instanceID
		e.job.UpdatedAt = now
		o.recorder.Heartbeat(e.job.Clone())
	}
}

// recoverAbandoned fails unfinished records nobody will pick up again: those
// left by an earlier run of this instance, and those whose lease ran out.
// Records another live instance keeps renewing are left alone.
func (o *Orchestrator) recoverAbandoned(ctx context.Context) error {
	unfinished, err := o.store.ListUnfinishedJobs(ctx)
	if err != nil {
		return cerr.Wrap(err).Error("Failed to list unfinished jobs")
	}

	now := o.now()
	for _, job := range unfinished {
		if !o.abandoned(job, now) {
			continue
		}

		finishedAt := notBefore(now, latestTimestamp(job))
		job.FinishedAt = &finishedAt
		job.UpdatedAt = now
		job.Stage = jobentity.NoStage
		job.StemOutputs = nil

		if job.State == jobentity.Running {
			job.Error = &failure.Failure{
				Kind:    failure.Timeout,
				Message: "worker stopped while the job was running",
			}
		} else {
			job.Error = &failure.Failure{
				Kind:    failure.InternalError,
				Message: "worker stopped before the job started",
			}
		}
		job.State = jobentity.Failed

		log.WithFields(log.Fields{
			"job_id":      job.ID,
			"kind":        job.Error.Kind,
			"instance_id": job.InstanceID,
		}).Warn("Failing abandoned job")
		o.recorder.Record(job)
	}

	return nil
}

func (o *Orchestrator) abandoned(job jobentity.Job, now time.Time) bool {
	o.mutex.Lock()
	_, held := o.jobs[job.ID]
	o.mutex.Unlock()

	if held {
		return false
	}

	if job.InstanceID == o.instanceID {
		return true
	}

	return job.LeaseExpired(now, o.lease)
}
