package async_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/effective-security/xoffload/accel"
	"github.com/effective-security/xoffload/async"
)

func Test_PollerDeliversPerNotify(t *testing.T) {
	var calls atomic.Int64
	recv := func() error {
		calls.Inc()
		return nil
	}

	p := async.NewPoller(accel.CategoryRSA, 16, recv)
	p.Start()
	defer p.Stop()

	for i := 0; i < 5; i++ {
		p.Notify()
	}

	require.Eventually(t, func() bool {
		return calls.Load() == 5
	}, time.Second, time.Millisecond)

	// no extra receives without notifications
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(5), calls.Load())
}

func Test_PollerRetriesEmptyQueue(t *testing.T) {
	var calls atomic.Int64
	recv := func() error {
		if calls.Inc() < 3 {
			return errors.WithStack(accel.ErrAgain)
		}
		return nil
	}

	p := async.NewPoller(accel.CategoryRSA, 16, recv)
	p.Start()
	defer p.Stop()

	p.Notify()

	require.Eventually(t, func() bool {
		return calls.Load() == 3
	}, time.Second, time.Millisecond)
}

func Test_PollerHardErrorDropsToken(t *testing.T) {
	var calls atomic.Int64
	recv := func() error {
		calls.Inc()
		return errors.New("device gone")
	}

	p := async.NewPoller(accel.CategoryRSA, 16, recv)
	p.Start()
	defer p.Stop()

	p.Notify()
	p.Notify()

	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, time.Second, time.Millisecond)
}

func Test_PollerStopIdempotent(t *testing.T) {
	p := async.NewPoller(accel.CategoryRSA, 4, func() error { return nil })
	p.Start()
	p.Start()
	p.Stop()
	p.Stop()
}
