package rsapad_test

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/effective-security/xoffload/rsapad"
)

func Test_OAEP(t *testing.T) {
	msg := []byte("wrapped key material")
	em, err := rsapad.AddOAEP(sha1.New, rand.Reader, 128, msg, nil)
	require.NoError(t, err)
	require.Len(t, em, 128)
	assert.Equal(t, byte(0x00), em[0])

	got, err := rsapad.CheckOAEP(sha1.New, em, nil)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	// label is bound to the encoding
	_, err = rsapad.CheckOAEP(sha1.New, em, []byte("other label"))
	assert.Error(t, err)

	// single flipped bit must fail the check
	em[40] ^= 0x01
	_, err = rsapad.CheckOAEP(sha1.New, em, nil)
	assert.Error(t, err)
}

func Test_OAEPLimits(t *testing.T) {
	// max message is k - 2*hLen - 2
	max := 128 - 2*sha256.Size - 2
	_, err := rsapad.AddOAEP(sha256.New, rand.Reader, 128, make([]byte, max), nil)
	assert.NoError(t, err)

	_, err = rsapad.AddOAEP(sha256.New, rand.Reader, 128, make([]byte, max+1), nil)
	assert.Error(t, err)

	_, err = rsapad.CheckOAEP(sha256.New, make([]byte, 2*sha256.Size+1), nil)
	assert.Error(t, err)
}
