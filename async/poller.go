package async

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/effective-security/xoffload/accel"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xoffload", "async")

// RecvFunc asks the driver for at least one completed request of the
// poller's category. A nil return means at least one completion was
// delivered (its callback has already run); accel.ErrAgain means
// nothing has completed yet; any other error is a hard driver error.
type RecvFunc func() error

// Poller drives completion callbacks for one task category. It runs on
// a dedicated goroutine for the lifetime of the process's hardware
// resources: each successful asynchronous submission is announced with
// Notify, and the poller calls the registered receive function once per
// announcement, retrying through transient-busy conditions.
type Poller struct {
	category accel.Category
	recv     RecvFunc

	// pending holds one token per submitted, not-yet-drained request.
	pending chan struct{}
	quit    chan struct{}
	wg      sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPoller creates a poller for the category. capacity bounds the
// number of undrained announcements and must be at least the slot-pool
// capacity.
func NewPoller(cat accel.Category, capacity int, recv RecvFunc) *Poller {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Poller{
		category: cat,
		recv:     recv,
		pending:  make(chan struct{}, capacity),
		quit:     make(chan struct{}),
	}
}

// Start launches the polling goroutine. Subsequent calls are no-ops.
func (p *Poller) Start() {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.run()
	})
}

// Notify announces one successfully submitted asynchronous request.
func (p *Poller) Notify() {
	p.pending <- struct{}{}
}

// Stop terminates the polling goroutine and waits for it to exit.
// Announced but undrained requests are left to the driver.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}

func (p *Poller) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return
		case <-p.pending:
		}

		p.drainOne()
	}
}

// drainOne polls until one completion is delivered or a hard driver
// error occurs. Hard errors are logged and non-fatal: the request's
// slot stays occupied until the driver completes it.
func (p *Poller) drainOne() {
	for {
		err := p.recv()
		if err == nil {
			return
		}
		if errors.Is(err, accel.ErrAgain) {
			select {
			case <-p.quit:
				return
			default:
			}
			continue
		}

		logger.Errorf("category=%s, reason=poll, err=[%+v]", p.category, err)
		return
	}
}
