package rsaeng

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jinzhu/copier"

	"github.com/effective-security/xoffload/accel"
	"github.com/effective-security/xoffload/async"
	"github.com/effective-security/xoffload/metricskey"
)

// doCrypto runs the session's prepared request to completion. When the
// device supports asynchronous submission the calling goroutine
// suspends on the job until the completion callback wakes it; otherwise
// the driver call blocks inline. On a nil return the driver has written
// the request status and output.
func (e *Engine) doCrypto(ctx context.Context, s *session) error {
	if s.req.Op != accel.OpKeyGen {
		if len(s.req.Src) != s.keySize || len(s.req.Dst) != s.keySize {
			return errors.Errorf("request buffers not sized to %d byte blocks", s.keySize)
		}
	}

	job := async.NewJob(e.res.mode())
	if job.Mode() == async.Blocking {
		return e.res.driver.SubmitSync(s.h, &s.req)
	}

	started := time.Now()
	slot, err := e.res.pool.Acquire(ctx, accel.CategoryRSA)
	if err != nil {
		return err
	}
	metricskey.PerfSlotWait.MeasureSince(started, accel.CategoryRSA.String())
	job.Slot = slot

	// The driver owns a private copy of the descriptor until its
	// completion callback has run.
	sub := &accel.Request{}
	if err := copier.Copy(sub, &s.req); err != nil {
		if rerr := e.res.pool.Release(slot, false); rerr != nil {
			logger.Errorf("slot=%d, reason=release, err=[%v]", slot, rerr)
		}
		return errors.WithMessage(err, "copy request")
	}
	sub.Status = accel.StatusPending

	orig := &s.req
	pool := e.res.pool
	sub.Done = func(req *accel.Request) {
		orig.Status = req.Status
		copy(orig.Dst, req.Dst)
		if rerr := pool.Release(slot, true); rerr != nil {
			logger.Errorf("slot=%d, reason=release, err=[%v]", slot, rerr)
		}
		if !job.Wake() && job.Abandoned() {
			logger.Warningf("slot=%d, reason=late_completion, bits=%d",
				slot, s.setup.KeyBits)
			s.reallyClose()
		}
	}

	for {
		err = e.res.driver.SubmitAsync(s.h, sub)
		if err == nil {
			break
		}
		if errors.Is(err, accel.ErrBusy) {
			// The device queue is full; the request was not accepted
			// and there is no side effect to undo.
			continue
		}
		if rerr := e.res.pool.Release(slot, false); rerr != nil {
			logger.Errorf("slot=%d, reason=release, err=[%v]", slot, rerr)
		}
		return errors.WithMessage(err, "submit async")
	}
	e.res.poller.Notify()

	if err := job.Pause(ctx); err != nil {
		// Quarantine: the slot and the session stay out of circulation
		// until the completion callback eventually reclaims them.
		s.abandoned.Store(true)
		return errors.WithMessage(err, "wait completion")
	}
	return nil
}
