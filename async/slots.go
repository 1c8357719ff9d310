package async

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xoffload/accel"
	"go.uber.org/atomic"
)

// DefaultCapacity is the task-slot pool size used when the device
// configuration does not specify one.
const DefaultCapacity = 1024

// ErrExhausted is returned when an acquisition's bounded wait is
// abandoned before a slot frees up.
var ErrExhausted = errors.New("async: slot pool exhausted")

type slotState struct {
	occupied bool
	category accel.Category
}

// SlotPool is a fixed-capacity arena of reusable task slots. Acquire
// blocks while the pool is at capacity; Release makes the slot visible
// to the next blocked acquirer. A slot index is owned exclusively by
// the request that acquired it until released.
type SlotPool struct {
	mu    sync.Mutex
	slots []slotState
	// free carries every currently unowned index; receiving doubles as
	// the empty-permit semaphore of the bounded buffer.
	free chan int

	releasedByDone  atomic.Uint64
	releasedByAbort atomic.Uint64
}

// NewSlotPool creates a pool of capacity slots. Zero or negative
// capacity selects DefaultCapacity.
func NewSlotPool(capacity int) *SlotPool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &SlotPool{
		slots: make([]slotState, capacity),
		free:  make(chan int, capacity),
	}
	for i := 0; i < capacity; i++ {
		p.free <- i
	}
	return p
}

// Capacity returns the fixed pool size.
func (p *SlotPool) Capacity() int {
	return len(p.slots)
}

// InFlight returns the number of currently owned slots.
func (p *SlotPool) InFlight() int {
	return len(p.slots) - len(p.free)
}

// Acquire returns the index of a free slot, blocking while the pool is
// at capacity. It returns ErrExhausted when ctx is done before a slot
// frees up.
func (p *SlotPool) Acquire(ctx context.Context, cat accel.Category) (int, error) {
	select {
	case idx := <-p.free:
		p.mu.Lock()
		p.slots[idx] = slotState{occupied: true, category: cat}
		p.mu.Unlock()
		return idx, nil
	case <-ctx.Done():
		return -1, errors.WithMessagef(ErrExhausted, "category=%s", cat)
	}
}

// Release frees the slot. done reports whether release happened on the
// normal completion-callback path, as opposed to a submission abort.
// Releasing an unowned slot is a contract violation.
func (p *SlotPool) Release(idx int, done bool) error {
	if idx < 0 || idx >= len(p.slots) {
		return errors.Errorf("async: invalid slot index: %d", idx)
	}

	p.mu.Lock()
	if !p.slots[idx].occupied {
		p.mu.Unlock()
		return errors.Errorf("async: duplicate release of slot %d", idx)
	}
	p.slots[idx] = slotState{}
	p.mu.Unlock()

	if done {
		p.releasedByDone.Inc()
	} else {
		p.releasedByAbort.Inc()
	}

	p.free <- idx
	return nil
}

// Stats reports cumulative release counts, split by path.
func (p *SlotPool) Stats() (byDone, byAbort uint64) {
	return p.releasedByDone.Load(), p.releasedByAbort.Load()
}
