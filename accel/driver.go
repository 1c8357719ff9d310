package accel

import (
	"github.com/cockroachdb/errors"
)

// Sentinel errors shared across driver implementations.
var (
	// ErrBusy means an asynchronous submission was not accepted because
	// the driver queue is full. The request has no side effects and may
	// be resubmitted immediately.
	ErrBusy = errors.New("accel: driver busy")

	// ErrAgain means a poll found no completed request yet; the caller
	// should retry.
	ErrAgain = errors.New("accel: try again")

	// ErrNotSupported means the driver cannot perform the requested
	// operation or mode; callers must use the software path.
	ErrNotSupported = errors.New("accel: not supported")

	// ErrNoDevice means no accelerator device is available for the
	// requested category.
	ErrNoDevice = errors.New("accel: no device")
)

// Driver is the submission surface of one accelerator backend.
//
// SubmitSync blocks until the driver call returns. SubmitAsync enqueues
// the request and returns; completion is delivered through Poll, which
// invokes the Request's Done callback from the polling goroutine.
type Driver interface {
	// Name returns the registered driver name.
	Name() string

	// NUMANode returns the device's NUMA affinity, -1 if unknown.
	NUMANode() int

	// EnvManaged reports whether the driver owns hardware context
	// allocation internally. When false, the engine allocates an
	// explicit context array through RequestContext.
	EnvManaged() bool

	// RequestContext allocates a low-level hardware context in the
	// given mode. Only used when EnvManaged is false.
	RequestContext(mode ContextMode) (ContextHandle, error)

	// ReleaseContext frees a context obtained from RequestContext.
	ReleaseContext(h ContextHandle) error

	// OpenSession allocates a session sized to the setup. Returns
	// ErrNoDevice or an allocation error on failure; the caller falls
	// back to software.
	OpenSession(setup SessionSetup) (SessionHandle, error)

	// CloseSession releases the session and any request-scoped buffers.
	// Safe to call on a partially initialized session handle.
	CloseSession(h SessionHandle) error

	// SubmitSync executes the request and blocks until the driver call
	// returns. The request status is written before return.
	SubmitSync(h SessionHandle, req *Request) error

	// SubmitAsync enqueues the request. Returns ErrBusy when the queue
	// has not accepted the request; any other error means the request
	// was rejected.
	SubmitAsync(h SessionHandle, req *Request) error

	// Poll drains up to want completed asynchronous requests of the
	// category, invoking each Done callback before returning. Returns
	// the number completed, or ErrAgain when none has completed yet.
	Poll(cat Category, want int) (int, error)

	// Close releases the device handle. The driver must not be used
	// afterwards.
	Close() error
}
