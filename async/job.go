package async

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
)

// ExecutionMode is chosen once at dispatch entry: Blocking submits
// synchronously and blocks the calling goroutine inside the driver
// call; Suspendable parks the caller until the completion poller wakes
// it.
type ExecutionMode int

// Execution modes.
const (
	Blocking ExecutionMode = iota
	Suspendable
)

// ErrNotSuspendable is returned by Pause when the job was created in
// Blocking mode.
var ErrNotSuspendable = errors.New("async: job is not suspendable")

// Job bridges one in-flight asynchronous request and the computation
// waiting on it. At most one wake is ever delivered; a second Wake on a
// completed job is a no-op.
type Job struct {
	mode ExecutionMode
	// done guards the at-most-one-wake invariant; it is flipped exactly
	// once, by the first of Wake and the pause deadline.
	done      atomic.Bool
	abandoned atomic.Bool
	wake      chan struct{}

	// Slot is the owning task-slot index, -1 before acquisition.
	Slot int
}

// NewJob creates a job handle for one dispatch attempt.
func NewJob(mode ExecutionMode) *Job {
	return &Job{
		mode: mode,
		wake: make(chan struct{}, 1),
		Slot: -1,
	}
}

// Mode returns the execution mode chosen at creation.
func (j *Job) Mode() ExecutionMode {
	return j.mode
}

// Pause parks the caller until Wake is delivered. It returns only after
// a wake has been observed, except when ctx expires first: then the job
// is marked abandoned, the late completion callback becomes responsible
// for resource reclamation, and ctx's error is returned.
func (j *Job) Pause(ctx context.Context) error {
	if j.mode != Suspendable {
		return errors.WithStack(ErrNotSuspendable)
	}

	select {
	case <-j.wake:
		return nil
	case <-ctx.Done():
		// The abandoned mark must be visible before the flip of done,
		// so a losing Wake always observes it.
		j.abandoned.Store(true)
		if j.done.CompareAndSwap(false, true) {
			return errors.WithStack(ctx.Err())
		}
		// Wake raced with the deadline; the request completed.
		j.abandoned.Store(false)
		<-j.wake
		return nil
	}
}

// Wake resumes the paused computation. It is idempotent and safe to
// call from the poller goroutine. It reports whether this call
// delivered the wake; false means the job had already completed or was
// abandoned.
func (j *Job) Wake() bool {
	if !j.done.CompareAndSwap(false, true) {
		return false
	}
	j.wake <- struct{}{}
	return true
}

// Completed reports whether the job has been woken or abandoned.
func (j *Job) Completed() bool {
	return j.done.Load()
}

// Abandoned reports whether the waiter gave up before completion. The
// slot is then quarantined until the driver eventually completes the
// request and its callback reclaims it.
func (j *Job) Abandoned() bool {
	return j.abandoned.Load()
}
