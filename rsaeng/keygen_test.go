// The fallback test generates a 768-bit key, which crypto/rsa rejects
// by default since Go 1.24.
//go:debug rsa1024min=0

package rsaeng_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/effective-security/xoffload/acceltest"
	"github.com/effective-security/xoffload/rsaeng"
)

func Test_GenerateKeyHardware(t *testing.T) {
	drv := acceltest.New()
	eng := rsaeng.NewWithDriver(drv, 16)
	defer eng.Close()

	priv, err := eng.GenerateKey(context.Background(), 1024)
	require.NoError(t, err)
	require.NoError(t, priv.Validate())

	assert.Equal(t, 1024, priv.N.BitLen())
	assert.Equal(t, 65537, priv.E)
	require.Len(t, priv.Primes, 2)
	assert.Equal(t, 1, priv.Primes[0].Cmp(priv.Primes[1]), "primes are ordered p > q")
	assert.NotNil(t, priv.Precomputed.Dp)

	assert.NotZero(t, drv.AsyncSubmits.Load())
	assert.Equal(t, 0, drv.LiveSessions())
}

func Test_GenerateKeyFallback(t *testing.T) {
	drv := acceltest.New()
	eng := rsaeng.NewWithDriver(drv, 16)
	defer eng.Close()

	// 768 is not a supported device size
	priv, err := eng.GenerateKey(context.Background(), 768)
	require.NoError(t, err)
	require.NoError(t, priv.Validate())
	assert.Equal(t, 768, priv.N.BitLen())

	assert.Equal(t, uint64(0), drv.AsyncSubmits.Load())
	assert.Equal(t, uint64(0), drv.SessionsOpened.Load())
}

func Test_GenerateKeyInvalid(t *testing.T) {
	eng := rsaeng.NewWithDriver(acceltest.New(), 16)
	defer eng.Close()

	_, err := eng.GenerateKey(context.Background(), 0)
	assert.ErrorIs(t, err, rsaeng.ErrInvalidInput)
}
