package accel_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/effective-security/xoffload/accel"
)

func Test_RSAPublicKeyBlock(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	k := 128

	b, err := accel.MarshalRSAPublicKey(k, &priv.PublicKey)
	require.NoError(t, err)
	require.Len(t, b, 2*k)

	pub, err := accel.UnmarshalRSAPublicKey(k, b)
	require.NoError(t, err)
	assert.Equal(t, priv.E, pub.E)
	assert.Zero(t, priv.N.Cmp(pub.N))

	_, err = accel.UnmarshalRSAPublicKey(k, b[:k])
	assert.Error(t, err)
}

func Test_RSAPrivateKeyBlock(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	k := 128

	b, err := accel.MarshalRSAPrivateKey(k, priv)
	require.NoError(t, err)
	require.Len(t, b, 2*k)

	d, n, err := accel.UnmarshalRSAPrivateKey(k, b)
	require.NoError(t, err)
	assert.Zero(t, priv.D.Cmp(d))
	assert.Zero(t, priv.N.Cmp(n))
}

func Test_RSACRTKeyBlock(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	k := 128

	b, err := accel.MarshalRSACRTKey(k, priv)
	require.NoError(t, err)
	require.Len(t, b, 5*(k/2))

	crt, err := accel.UnmarshalRSACRTKey(k, b)
	require.NoError(t, err)
	assert.Zero(t, priv.Primes[0].Cmp(crt.P))
	assert.Zero(t, priv.Primes[1].Cmp(crt.Q))
	assert.Zero(t, priv.Precomputed.Dp.Cmp(crt.Dp))
	assert.Zero(t, priv.Precomputed.Dq.Cmp(crt.Dq))
	assert.Zero(t, priv.Precomputed.Qinv.Cmp(crt.Qinv))

	// a key without CRT parameters cannot fill the block
	bare := &rsa.PrivateKey{
		PublicKey: priv.PublicKey,
		D:         priv.D,
	}
	_, err = accel.MarshalRSACRTKey(k, bare)
	assert.Error(t, err)
}

func Test_RSAKeyGenBlocks(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	k := 128

	e := priv.Primes[0] // any big value works as a field payload
	in, err := accel.MarshalRSAKeyGenInput(k, e, priv.Primes[0], priv.Primes[1])
	require.NoError(t, err)
	require.Len(t, in, accel.RSAKeyGenInSize(k))

	e2, p, q, err := accel.UnmarshalRSAKeyGenInput(k, in)
	require.NoError(t, err)
	assert.Zero(t, e.Cmp(e2))
	assert.Zero(t, priv.Primes[0].Cmp(p))
	assert.Zero(t, priv.Primes[1].Cmp(q))

	out := &accel.RSAKeyGenOutput{
		D:    priv.D,
		N:    priv.N,
		Qinv: priv.Precomputed.Qinv,
		Dq:   priv.Precomputed.Dq,
		Dp:   priv.Precomputed.Dp,
	}
	b, err := accel.MarshalRSAKeyGenOutput(k, out)
	require.NoError(t, err)
	require.Len(t, b, accel.RSAKeyGenOutSize(k))

	got, err := accel.UnmarshalRSAKeyGenOutput(k, b)
	require.NoError(t, err)
	assert.Zero(t, priv.D.Cmp(got.D))
	assert.Zero(t, priv.N.Cmp(got.N))

	// oversized field must be rejected
	_, err = accel.MarshalRSAKeyGenInput(k/2, priv.N, priv.Primes[0], priv.Primes[1])
	assert.Error(t, err)
}
