package rsapad

import (
	"crypto/subtle"
	"io"

	"github.com/cockroachdb/errors"
)

// minPadLen is the minimum number of padding octets in a PKCS#1 v1.5
// block, per RFC 8017.
const minPadLen = 8

// AddPKCS1Type1 encodes from into a block-type-1 message of length k:
// 0x00 0x01 FF..FF 0x00 data. Used for private-key operations.
func AddPKCS1Type1(k int, from []byte) ([]byte, error) {
	if len(from) > k-minPadLen-3 {
		return nil, errors.Errorf("rsapad: data too large for key size: %d > %d", len(from), k-minPadLen-3)
	}

	em := make([]byte, k)
	em[1] = 0x01
	ps := em[2 : k-len(from)-1]
	for i := range ps {
		ps[i] = 0xFF
	}
	copy(em[k-len(from):], from)
	return em, nil
}

// CheckPKCS1Type1 validates a block-type-1 message and returns the
// embedded data.
func CheckPKCS1Type1(em []byte) ([]byte, error) {
	if len(em) < minPadLen+3 || em[0] != 0x00 || em[1] != 0x01 {
		return nil, errors.New("rsapad: invalid type 1 header")
	}

	i := 2
	for ; i < len(em) && em[i] == 0xFF; i++ {
	}
	if i < minPadLen+2 || i == len(em) || em[i] != 0x00 {
		return nil, errors.New("rsapad: invalid type 1 padding")
	}
	return em[i+1:], nil
}

// AddPKCS1Type2 encodes from into a block-type-2 message of length k:
// 0x00 0x02 RND..RND 0x00 data, with nonzero random padding. Used for
// public-key encryption.
func AddPKCS1Type2(rand io.Reader, k int, from []byte) ([]byte, error) {
	if len(from) > k-minPadLen-3 {
		return nil, errors.Errorf("rsapad: data too large for key size: %d > %d", len(from), k-minPadLen-3)
	}

	em := make([]byte, k)
	em[1] = 0x02
	ps := em[2 : k-len(from)-1]
	if err := fillNonZeroBytes(rand, ps); err != nil {
		return nil, err
	}
	copy(em[k-len(from):], from)
	return em, nil
}

// CheckPKCS1Type2 validates a block-type-2 message and returns the
// embedded data. The scan over the padding is constant time to avoid
// exposing a padding oracle.
func CheckPKCS1Type2(em []byte) ([]byte, error) {
	if len(em) < minPadLen+3 {
		return nil, errors.New("rsapad: block too short")
	}

	firstByteIsZero := subtle.ConstantTimeByteEq(em[0], 0)
	secondByteIsTwo := subtle.ConstantTimeByteEq(em[1], 2)

	// The zero delimiter must appear after at least 8 padding octets.
	var lookingForIndex, index int
	lookingForIndex = 1
	for i := 2; i < len(em); i++ {
		equals0 := subtle.ConstantTimeByteEq(em[i], 0)
		index = subtle.ConstantTimeSelect(lookingForIndex&equals0, i, index)
		lookingForIndex = subtle.ConstantTimeSelect(equals0, 0, lookingForIndex)
	}
	validPS := subtle.ConstantTimeLessOrEq(2+minPadLen, index)

	valid := firstByteIsZero & secondByteIsTwo & (^lookingForIndex & 1) & validPS
	if valid != 1 {
		return nil, errors.New("rsapad: invalid type 2 padding")
	}
	return em[index+1:], nil
}

func fillNonZeroBytes(rand io.Reader, s []byte) error {
	for i := range s {
		for {
			var b [1]byte
			if _, err := io.ReadFull(rand, b[:]); err != nil {
				return errors.WithMessage(err, "rsapad: read random")
			}
			if b[0] != 0 {
				s[i] = b[0]
				break
			}
		}
	}
	return nil
}
