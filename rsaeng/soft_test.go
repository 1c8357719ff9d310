package rsaeng_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/effective-security/xoffload/rsaeng"
)

func Test_SoftRoundTrips(t *testing.T) {
	soft := rsaeng.SoftFallback{}
	msg := []byte("software path")

	for _, padding := range []rsaeng.Padding{rsaeng.PaddingPKCS1, rsaeng.PaddingOAEP} {
		ciphertext, err := soft.PublicEncrypt(rand.Reader, &testKey2048.PublicKey, msg, padding)
		require.NoError(t, err)
		plain, err := soft.PrivateDecrypt(testKey2048, ciphertext, padding)
		require.NoError(t, err)
		assert.Equal(t, msg, plain)
	}

	digest := sha256.Sum256(msg)
	for _, padding := range []rsaeng.Padding{rsaeng.PaddingPKCS1, rsaeng.PaddingX931} {
		sig, err := soft.Sign(testKey2048, digest[:], padding)
		require.NoError(t, err)
		payload, err := soft.Verify(&testKey2048.PublicKey, sig, padding)
		require.NoError(t, err)
		assert.Equal(t, digest[:], payload)
	}
}

func Test_SoftCRTMatchesPlainExponent(t *testing.T) {
	soft := rsaeng.SoftFallback{}
	digest := sha256.Sum256([]byte("crt equivalence"))

	withCRT, err := soft.Sign(testKey2048, digest[:], rsaeng.PaddingPKCS1)
	require.NoError(t, err)

	bare := &rsa.PrivateKey{
		PublicKey: testKey2048.PublicKey,
		D:         testKey2048.D,
	}
	withoutCRT, err := soft.Sign(bare, digest[:], rsaeng.PaddingPKCS1)
	require.NoError(t, err)

	assert.Equal(t, withCRT, withoutCRT)
}

func Test_SoftGenerateKey(t *testing.T) {
	soft := rsaeng.SoftFallback{}
	priv, err := soft.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	require.NoError(t, priv.Validate())
	assert.Equal(t, 1024, priv.N.BitLen())
}

func Test_Eligibility(t *testing.T) {
	assert.Equal(t, rsaeng.HardwareOK, rsaeng.CheckModulusBits(1024))
	assert.Equal(t, rsaeng.HardwareOK, rsaeng.CheckModulusBits(2048))
	assert.Equal(t, rsaeng.HardwareOK, rsaeng.CheckModulusBits(3072))
	assert.Equal(t, rsaeng.HardwareOK, rsaeng.CheckModulusBits(4096))

	assert.Equal(t, rsaeng.TooSmallUseSoftware, rsaeng.CheckModulusBits(480))
	assert.Equal(t, rsaeng.UnsupportedUseSoftware, rsaeng.CheckModulusBits(1536))
	assert.Equal(t, rsaeng.UnsupportedUseSoftware, rsaeng.CheckModulusBits(8192))
}
