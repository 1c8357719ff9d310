package rsaeng

import (
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/effective-security/xoffload/accel"
	"github.com/effective-security/xoffload/async"
	"go.uber.org/atomic"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xoffload", "rsaeng")

// getpid is overridable to simulate a fork in tests.
var getpid = os.Getpid

// resources is the process-wide hardware state for the RSA category:
// device handle, context array, slot pool and completion poller. It is
// initialized at most once per live process id; after a fork the child
// rebuilds it from scratch on first use.
type resources struct {
	mu sync.Mutex

	// pid owns the initialized state; 0 means uninitialized. Fast-path
	// reads take no lock.
	pid atomic.Int64
	// failedPid remembers an initialization failure, making every
	// operation of this process fall back to software without retrying
	// the device.
	failedPid atomic.Int64

	driver  accel.Driver
	numa    int
	ctxs    []accel.ContextHandle
	pool    *async.SlotPool
	poller  *async.Poller
	asyncOK bool
}

// ensureInit is the only mutator of the resource state; every dispatch
// entry point calls it, so no caller needs to reason about init
// ordering. open is invoked once per process to acquire the device.
func (r *resources) ensureInit(open func() (accel.Driver, error), slotCapacity int) error {
	pid := int64(getpid())
	if r.pid.Load() == pid {
		return nil
	}
	if r.failedPid.Load() == pid {
		return errors.WithStack(accel.ErrNoDevice)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pid.Load() == pid {
		return nil
	}

	if r.pid.Load() != 0 {
		// Forked child: the parent's poller goroutine and device
		// handles do not exist here, so drop them without closing.
		r.abandonLocked()
	}

	drv, err := open()
	if err != nil {
		r.failedPid.Store(pid)
		logger.Errorf("reason=open_device, err=[%+v]", err)
		return errors.WithMessage(err, "failed to open accelerator device")
	}

	if err := r.initLocked(drv, slotCapacity); err != nil {
		_ = drv.Close()
		r.failedPid.Store(pid)
		logger.Errorf("driver=%s, reason=init, err=[%+v]", drv.Name(), err)
		return err
	}

	r.pid.Store(pid)
	logger.Infof("driver=%s, numa=%d, async=%t, slots=%d",
		drv.Name(), r.numa, r.asyncOK, r.pool.Capacity())
	return nil
}

func (r *resources) initLocked(drv accel.Driver, slotCapacity int) error {
	r.driver = drv
	r.numa = drv.NUMANode()
	r.pool = async.NewSlotPool(slotCapacity)
	r.asyncOK = false
	r.ctxs = nil

	if drv.EnvManaged() {
		// The driver owns context allocation; poll across all of its
		// contexts for this category.
		r.asyncOK = true
	} else {
		sctx, err := drv.RequestContext(accel.ContextSync)
		if err != nil {
			return errors.WithMessage(err, "request sync context")
		}
		r.ctxs = append(r.ctxs, sctx)

		actx, err := drv.RequestContext(accel.ContextAsync)
		switch {
		case err == nil:
			r.ctxs = append(r.ctxs, actx)
			r.asyncOK = true
		case errors.Is(err, accel.ErrNotSupported):
			// Synchronous-only backend: every dispatch blocks inside
			// the driver call.
			logger.Warningf("driver=%s, reason=sync_only", drv.Name())
		default:
			_ = drv.ReleaseContext(sctx)
			r.ctxs = nil
			return errors.WithMessage(err, "request async context")
		}
	}

	if r.asyncOK {
		r.poller = async.NewPoller(accel.CategoryRSA, r.pool.Capacity(), r.recv)
		r.poller.Start()
	}
	return nil
}

// recv asks the driver for one completed RSA request. The poller
// retries on accel.ErrAgain.
func (r *resources) recv() error {
	n, err := r.driver.Poll(accel.CategoryRSA, 1)
	if n >= 1 {
		return nil
	}
	if err == nil {
		return errors.WithStack(accel.ErrAgain)
	}
	return err
}

// uninit releases contexts, stops the poller and closes the device. It
// is a no-op when the current process id does not match the one that
// initialized the state.
func (r *resources) uninit() {
	pid := int64(getpid())

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pid.Load() != pid {
		return
	}

	if r.poller != nil {
		r.poller.Stop()
		r.poller = nil
	}
	for _, h := range r.ctxs {
		_ = r.driver.ReleaseContext(h)
	}
	r.ctxs = nil
	if r.driver != nil {
		_ = r.driver.Close()
		r.driver = nil
	}
	r.pool = nil
	r.asyncOK = false
	r.pid.Store(0)
}

// abandonLocked drops state inherited across a fork without touching
// the underlying handles.
func (r *resources) abandonLocked() {
	if r.poller != nil {
		r.poller.Stop()
		r.poller = nil
	}
	r.ctxs = nil
	r.driver = nil
	r.pool = nil
	r.asyncOK = false
	r.pid.Store(0)
}

// mode returns the execution mode available to a dispatch attempt.
func (r *resources) mode() async.ExecutionMode {
	if r.asyncOK {
		return async.Suspendable
	}
	return async.Blocking
}
