package rsapad_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/effective-security/xoffload/rsapad"
)

func Test_PKCS1Type1(t *testing.T) {
	msg := []byte("digest info goes here")
	em, err := rsapad.AddPKCS1Type1(128, msg)
	require.NoError(t, err)
	require.Len(t, em, 128)

	assert.Equal(t, byte(0x00), em[0])
	assert.Equal(t, byte(0x01), em[1])
	for i := 2; i < 128-len(msg)-1; i++ {
		assert.Equal(t, byte(0xFF), em[i])
	}

	got, err := rsapad.CheckPKCS1Type1(em)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	// message too long for the block
	_, err = rsapad.AddPKCS1Type1(32, make([]byte, 22))
	assert.Error(t, err)

	// tampered type byte
	em[1] = 0x02
	_, err = rsapad.CheckPKCS1Type1(em)
	assert.Error(t, err)
}

func Test_PKCS1Type2(t *testing.T) {
	msg := []byte("session key")
	em, err := rsapad.AddPKCS1Type2(rand.Reader, 128, msg)
	require.NoError(t, err)
	require.Len(t, em, 128)

	assert.Equal(t, byte(0x00), em[0])
	assert.Equal(t, byte(0x02), em[1])
	for i := 2; i < 128-len(msg)-1; i++ {
		assert.NotEqual(t, byte(0x00), em[i], "padding bytes must be nonzero")
	}

	got, err := rsapad.CheckPKCS1Type2(em)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	_, err = rsapad.AddPKCS1Type2(rand.Reader, 32, make([]byte, 22))
	assert.Error(t, err)

	// truncated delimiter
	for i := 2; i < 128; i++ {
		em[i] = 0xAB
	}
	_, err = rsapad.CheckPKCS1Type2(em)
	assert.Error(t, err)
}
