package rsaeng_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/effective-security/xoffload/accel"
	"github.com/effective-security/xoffload/acceltest"
	"github.com/effective-security/xoffload/async"
	"github.com/effective-security/xoffload/rsaeng"
)

var testKey2048 *rsa.PrivateKey

func init() {
	var err error
	testKey2048, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
}

func digestInfoSHA256(msg []byte) []byte {
	prefix := []byte{0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20}
	digest := sha256.Sum256(msg)
	return append(prefix, digest[:]...)
}

func Test_EncryptDecryptHardware(t *testing.T) {
	drv := acceltest.New()
	eng := rsaeng.NewWithDriver(drv, 16)
	defer eng.Close()

	ctx := context.Background()
	msg := []byte("attack at dawn")

	ciphertext, err := eng.PublicEncrypt(ctx, &testKey2048.PublicKey, msg, rsaeng.PaddingOAEP)
	require.NoError(t, err)
	require.Len(t, ciphertext, 256)

	// the ciphertext must be indistinguishable from a software one
	plain, err := rsa.DecryptOAEP(sha1.New(), nil, testKey2048, ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, msg, plain)

	got, err := eng.PrivateDecrypt(ctx, testKey2048, ciphertext, rsaeng.PaddingOAEP)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	assert.GreaterOrEqual(t, drv.AsyncSubmits.Load(), uint64(2))
	assert.Equal(t, uint64(0), drv.SyncSubmits.Load())
	assert.Equal(t, 0, drv.LiveSessions(), "sessions are single use")
}

func Test_SignVerifyHardware(t *testing.T) {
	drv := acceltest.New()
	eng := rsaeng.NewWithDriver(drv, 16)
	defer eng.Close()

	ctx := context.Background()
	msg := []byte("signed payload")
	em := digestInfoSHA256(msg)

	sig, err := eng.Sign(ctx, testKey2048, em, rsaeng.PaddingPKCS1)
	require.NoError(t, err)

	digest := sha256.Sum256(msg)
	require.NoError(t, rsa.VerifyPKCS1v15(&testKey2048.PublicKey, crypto.SHA256, digest[:], sig))

	payload, err := eng.Verify(ctx, &testKey2048.PublicKey, sig, rsaeng.PaddingPKCS1)
	require.NoError(t, err)
	assert.Equal(t, em, payload)
}

func Test_SignVerifyX931(t *testing.T) {
	drv := acceltest.New()
	eng := rsaeng.NewWithDriver(drv, 16)
	defer eng.Close()

	ctx := context.Background()
	digest := sha256.Sum256([]byte("x931 payload"))

	sig, err := eng.Sign(ctx, testKey2048, digest[:], rsaeng.PaddingX931)
	require.NoError(t, err)

	payload, err := eng.Verify(ctx, &testKey2048.PublicKey, sig, rsaeng.PaddingX931)
	require.NoError(t, err)
	assert.Equal(t, digest[:], payload)
}

func Test_HardwareMatchesSoftware(t *testing.T) {
	drv := acceltest.New()
	eng := rsaeng.NewWithDriver(drv, 16)
	defer eng.Close()

	ctx := context.Background()
	em := digestInfoSHA256([]byte("deterministic"))

	hw, err := eng.Sign(ctx, testKey2048, em, rsaeng.PaddingPKCS1)
	require.NoError(t, err)

	sw, err := rsaeng.SoftFallback{}.Sign(testKey2048, em, rsaeng.PaddingPKCS1)
	require.NoError(t, err)
	assert.Equal(t, sw, hw)
	assert.NotZero(t, drv.AsyncSubmits.Load())
}

func Test_FallbackIneligibleSize(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1536)
	require.NoError(t, err)

	drv := acceltest.New()
	eng := rsaeng.NewWithDriver(drv, 16)
	defer eng.Close()

	ctx := context.Background()
	msg := []byte("unsupported modulus")

	ciphertext, err := eng.PublicEncrypt(ctx, &key.PublicKey, msg, rsaeng.PaddingPKCS1)
	require.NoError(t, err)
	plain, err := eng.PrivateDecrypt(ctx, key, ciphertext, rsaeng.PaddingPKCS1)
	require.NoError(t, err)
	assert.Equal(t, msg, plain)

	// nothing may reach the device
	assert.Equal(t, uint64(0), drv.AsyncSubmits.Load())
	assert.Equal(t, uint64(0), drv.SyncSubmits.Load())
	assert.Equal(t, uint64(0), drv.SessionsOpened.Load())
}

func Test_FallbackNoDriver(t *testing.T) {
	eng := rsaeng.New(accel.NewDeviceConfig("NOSUCH"))
	defer eng.Close()

	ctx := context.Background()
	msg := []byte("no device present")

	ciphertext, err := eng.PublicEncrypt(ctx, &testKey2048.PublicKey, msg, rsaeng.PaddingOAEP)
	require.NoError(t, err)
	plain, err := eng.PrivateDecrypt(ctx, testKey2048, ciphertext, rsaeng.PaddingOAEP)
	require.NoError(t, err)
	assert.Equal(t, msg, plain)

	assert.Equal(t, async.Blocking, eng.ExecutionMode())
}

func Test_BusyRetry(t *testing.T) {
	drv := acceltest.New(acceltest.WithBusyCount(2))
	eng := rsaeng.NewWithDriver(drv, 16)
	defer eng.Close()

	msg := []byte("retried until accepted")
	ciphertext, err := eng.PublicEncrypt(context.Background(), &testKey2048.PublicKey, msg, rsaeng.PaddingOAEP)
	require.NoError(t, err)

	plain, err := rsa.DecryptOAEP(sha1.New(), nil, testKey2048, ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, msg, plain)
	assert.Equal(t, uint64(1), drv.AsyncSubmits.Load())
}

func Test_FallbackFailedStatus(t *testing.T) {
	drv := acceltest.New(acceltest.WithFailStatus(-5))
	eng := rsaeng.NewWithDriver(drv, 16)
	defer eng.Close()

	msg := []byte("device reported failure")
	ciphertext, err := eng.PublicEncrypt(context.Background(), &testKey2048.PublicKey, msg, rsaeng.PaddingOAEP)
	require.NoError(t, err)

	// the caller still gets a correct result from software
	plain, err := rsa.DecryptOAEP(sha1.New(), nil, testKey2048, ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, msg, plain)

	assert.Equal(t, 0, drv.LiveSessions())
}

func Test_SyncOnlyDevice(t *testing.T) {
	drv := acceltest.New(acceltest.WithSyncOnly())
	eng := rsaeng.NewWithDriver(drv, 16)
	defer eng.Close()

	assert.Equal(t, async.Blocking, eng.ExecutionMode())

	msg := []byte("blocking submit path")
	ciphertext, err := eng.PublicEncrypt(context.Background(), &testKey2048.PublicKey, msg, rsaeng.PaddingOAEP)
	require.NoError(t, err)

	plain, err := rsa.DecryptOAEP(sha1.New(), nil, testKey2048, ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, msg, plain)

	assert.NotZero(t, drv.SyncSubmits.Load())
	assert.Equal(t, uint64(0), drv.AsyncSubmits.Load())
}

func Test_EnvManagedDevice(t *testing.T) {
	drv := acceltest.New(acceltest.WithEnvManaged())
	eng := rsaeng.NewWithDriver(drv, 16)
	defer eng.Close()

	assert.Equal(t, async.Suspendable, eng.ExecutionMode())

	msg := []byte("env managed contexts")
	ciphertext, err := eng.PublicEncrypt(context.Background(), &testKey2048.PublicKey, msg, rsaeng.PaddingOAEP)
	require.NoError(t, err)
	assert.NotZero(t, drv.AsyncSubmits.Load())

	plain, err := rsa.DecryptOAEP(sha1.New(), nil, testKey2048, ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, msg, plain)
	assert.Equal(t, 0, drv.LiveContexts())
}

func Test_WedgedDeviceQuarantine(t *testing.T) {
	drv := acceltest.New(acceltest.WithWedged())
	eng := rsaeng.NewWithDriver(drv, 16)
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	msg := []byte("wedged completion")
	ciphertext, err := eng.PublicEncrypt(ctx, &testKey2048.PublicKey, msg, rsaeng.PaddingOAEP)
	require.NoError(t, err, "the deadline routes the call to software")

	plain, err := rsa.DecryptOAEP(sha1.New(), nil, testKey2048, ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, msg, plain)

	// the abandoned session stays quarantined until the completion
	// arrives, then both slot and session are reclaimed
	assert.Equal(t, 1, drv.LiveSessions())
	drv.Unwedge()
	require.Eventually(t, func() bool {
		return drv.LiveSessions() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), drv.Completions.Load())
}

func Test_CloseAndReuse(t *testing.T) {
	drv := acceltest.New()
	eng := rsaeng.NewWithDriver(drv, 16)

	msg := []byte("first run")
	_, err := eng.PublicEncrypt(context.Background(), &testKey2048.PublicKey, msg, rsaeng.PaddingOAEP)
	require.NoError(t, err)

	require.NoError(t, eng.Close())
	assert.Equal(t, 0, drv.LiveContexts())
	require.NoError(t, eng.Close(), "close is idempotent")

	// operations after close still succeed
	ciphertext, err := eng.PublicEncrypt(context.Background(), &testKey2048.PublicKey, msg, rsaeng.PaddingOAEP)
	require.NoError(t, err)
	plain, err := rsa.DecryptOAEP(sha1.New(), nil, testKey2048, ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, msg, plain)
}

func Test_InvalidInput(t *testing.T) {
	drv := acceltest.New()
	eng := rsaeng.NewWithDriver(drv, 16)
	defer eng.Close()

	ctx := context.Background()

	_, err := eng.PublicEncrypt(ctx, nil, []byte("x"), rsaeng.PaddingOAEP)
	assert.ErrorIs(t, err, rsaeng.ErrInvalidInput)

	_, err = eng.PublicEncrypt(ctx, &testKey2048.PublicKey, nil, rsaeng.PaddingOAEP)
	assert.ErrorIs(t, err, rsaeng.ErrInvalidInput)

	_, err = eng.PrivateDecrypt(ctx, testKey2048, make([]byte, 257), rsaeng.PaddingOAEP)
	assert.ErrorIs(t, err, rsaeng.ErrInvalidInput)

	_, err = eng.Verify(ctx, &testKey2048.PublicKey, make([]byte, 300), rsaeng.PaddingPKCS1)
	assert.ErrorIs(t, err, rsaeng.ErrInvalidInput)

	_, err = eng.Sign(ctx, nil, []byte("x"), rsaeng.PaddingPKCS1)
	assert.ErrorIs(t, err, rsaeng.ErrInvalidInput)

	// misuse is reported, not silently redirected
	assert.Equal(t, uint64(0), drv.SessionsOpened.Load())
}
