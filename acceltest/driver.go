package acceltest

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"

	"github.com/effective-security/xoffload/accel"
)

// DriverName is the registry name of the stub driver.
const DriverName = "STUB"

var registerOnce sync.Once

// Register installs the stub driver loader in the accel registry. The
// loader honors the NUMANode and SlotCapacity settings of the device
// configuration and fails with ErrNoDevice when the Path is "none".
func Register() {
	registerOnce.Do(func() {
		accel.Register(DriverName, func(cfg accel.DeviceConfig) (accel.Driver, error) {
			if cfg.Path() == "none" {
				return nil, errors.WithStack(accel.ErrNoDevice)
			}
			return New(WithNUMANode(cfg.NUMANode())), nil
		})
	})
}

// Option customizes the stub driver.
type Option func(*Driver)

// WithNUMANode sets the node the driver reports.
func WithNUMANode(n int) Option {
	return func(d *Driver) { d.numa = n }
}

// WithEnvManaged makes the driver report environment-managed context
// allocation.
func WithEnvManaged() Option {
	return func(d *Driver) { d.envManaged = true }
}

// WithSyncOnly rejects asynchronous context requests.
func WithSyncOnly() Option {
	return func(d *Driver) { d.syncOnly = true }
}

// WithBusyCount makes the next n asynchronous submissions report a full
// device queue.
func WithBusyCount(n int) Option {
	return func(d *Driver) { d.busy = n }
}

// WithFailStatus completes every request with the given nonzero status.
func WithFailStatus(status int) Option {
	return func(d *Driver) { d.failStatus = status }
}

// WithCompletionDelay delays each completion by d.
func WithCompletionDelay(delay time.Duration) Option {
	return func(d *Driver) { d.delay = delay }
}

// WithWedged parks submitted requests until Unwedge is called.
func WithWedged() Option {
	return func(d *Driver) { d.wedged.Store(true) }
}

// Driver is an in-memory accel.Driver producing real RSA results.
type Driver struct {
	numa       int
	envManaged bool
	syncOnly   bool
	failStatus int
	delay      time.Duration
	wedged     atomic.Bool

	mu       sync.Mutex
	busy     int
	nextSess uint64
	nextCtx  uint64
	sessions map[accel.SessionHandle]accel.SessionSetup
	ctxs     map[accel.ContextHandle]accel.ContextMode
	queue    []*pendingReq
	closed   bool

	// observable counters
	SessionsOpened atomic.Uint64
	SessionsClosed atomic.Uint64
	SyncSubmits    atomic.Uint64
	AsyncSubmits   atomic.Uint64
	Completions    atomic.Uint64
}

type pendingReq struct {
	req   *accel.Request
	setup accel.SessionSetup
}

var _ accel.Driver = (*Driver)(nil)

// New creates a stub driver.
func New(ops ...Option) *Driver {
	d := &Driver{
		numa:     -1,
		sessions: map[accel.SessionHandle]accel.SessionSetup{},
		ctxs:     map[accel.ContextHandle]accel.ContextMode{},
	}
	for _, op := range ops {
		op(d)
	}
	return d
}

// Name implements accel.Driver.
func (d *Driver) Name() string {
	return DriverName
}

// NUMANode implements accel.Driver.
func (d *Driver) NUMANode() int {
	return d.numa
}

// EnvManaged implements accel.Driver.
func (d *Driver) EnvManaged() bool {
	return d.envManaged
}

// RequestContext implements accel.Driver.
func (d *Driver) RequestContext(mode accel.ContextMode) (accel.ContextHandle, error) {
	if mode == accel.ContextAsync && d.syncOnly {
		return 0, errors.WithStack(accel.ErrNotSupported)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, errors.New("driver closed")
	}
	d.nextCtx++
	h := accel.ContextHandle(d.nextCtx)
	d.ctxs[h] = mode
	return h, nil
}

// ReleaseContext implements accel.Driver.
func (d *Driver) ReleaseContext(h accel.ContextHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ctxs[h]; !ok {
		return errors.Errorf("unknown context: %d", h)
	}
	delete(d.ctxs, h)
	return nil
}

// LiveContexts returns the number of unreleased contexts.
func (d *Driver) LiveContexts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ctxs)
}

// OpenSession implements accel.Driver.
func (d *Driver) OpenSession(setup accel.SessionSetup) (accel.SessionHandle, error) {
	if setup.Category != accel.CategoryRSA {
		return 0, errors.WithStack(accel.ErrNotSupported)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, errors.New("driver closed")
	}
	d.nextSess++
	h := accel.SessionHandle(d.nextSess)
	d.sessions[h] = setup
	d.SessionsOpened.Inc()
	return h, nil
}

// CloseSession implements accel.Driver.
func (d *Driver) CloseSession(h accel.SessionHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sessions[h]; !ok {
		return errors.Errorf("unknown session: %d", h)
	}
	delete(d.sessions, h)
	d.SessionsClosed.Inc()
	return nil
}

// LiveSessions returns the number of unreleased sessions.
func (d *Driver) LiveSessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

// SubmitSync implements accel.Driver.
func (d *Driver) SubmitSync(h accel.SessionHandle, req *accel.Request) error {
	d.mu.Lock()
	setup, ok := d.sessions[h]
	d.mu.Unlock()
	if !ok {
		return errors.Errorf("unknown session: %d", h)
	}
	d.SyncSubmits.Inc()
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.complete(&pendingReq{req: req, setup: setup})
	return nil
}

// SubmitAsync implements accel.Driver.
func (d *Driver) SubmitAsync(h accel.SessionHandle, req *accel.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	setup, ok := d.sessions[h]
	if !ok {
		return errors.Errorf("unknown session: %d", h)
	}
	if d.busy > 0 {
		d.busy--
		return errors.WithStack(accel.ErrBusy)
	}
	d.queue = append(d.queue, &pendingReq{req: req, setup: setup})
	d.AsyncSubmits.Inc()
	return nil
}

// Poll implements accel.Driver.
func (d *Driver) Poll(cat accel.Category, want int) (int, error) {
	if cat != accel.CategoryRSA {
		return 0, errors.WithStack(accel.ErrNotSupported)
	}
	if d.wedged.Load() {
		return 0, nil
	}

	done := 0
	for done < want {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			break
		}
		pr := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		if d.delay > 0 {
			time.Sleep(d.delay)
		}
		d.complete(pr)
		done++
	}
	return done, nil
}

// Unwedge releases completions parked by WithWedged.
func (d *Driver) Unwedge() {
	d.wedged.Store(false)
}

// Close implements accel.Driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// complete computes the result and delivers it through the callback
// when one is set.
func (d *Driver) complete(pr *pendingReq) {
	req := pr.req
	if d.failStatus != 0 {
		req.Status = d.failStatus
	} else if err := compute(pr.setup, req); err != nil {
		req.Status = -2
	} else {
		req.Status = accel.StatusOK
	}
	d.Completions.Inc()
	if req.Done != nil {
		req.Done(req)
	}
}
