package rsapad

import (
	"crypto/subtle"
	"hash"
	"io"

	"github.com/cockroachdb/errors"
)

// AddOAEP encodes from into an EME-OAEP message of length k with the
// given hash and optional label, per RFC 8017 section 7.1.1.
func AddOAEP(newHash func() hash.Hash, rand io.Reader, k int, from, label []byte) ([]byte, error) {
	h := newHash()
	hLen := h.Size()

	if len(from) > k-2*hLen-2 {
		return nil, errors.Errorf("rsapad: data too large for key size: %d > %d", len(from), k-2*hLen-2)
	}

	h.Write(label)
	lHash := h.Sum(nil)

	em := make([]byte, k)
	seed := em[1 : 1+hLen]
	db := em[1+hLen:]

	copy(db, lHash)
	db[len(db)-len(from)-1] = 0x01
	copy(db[len(db)-len(from):], from)

	if _, err := io.ReadFull(rand, seed); err != nil {
		return nil, errors.WithMessage(err, "rsapad: read random")
	}

	mgf1XOR(db, newHash(), seed)
	mgf1XOR(seed, newHash(), db)

	return em, nil
}

// CheckOAEP validates an EME-OAEP message and returns the embedded
// data.
func CheckOAEP(newHash func() hash.Hash, em, label []byte) ([]byte, error) {
	h := newHash()
	hLen := h.Size()
	k := len(em)
	if k < hLen*2+2 {
		return nil, errors.New("rsapad: block too short")
	}

	h.Write(label)
	lHash := h.Sum(nil)

	firstByteIsZero := subtle.ConstantTimeByteEq(em[0], 0)

	seed := make([]byte, hLen)
	copy(seed, em[1:hLen+1])
	db := make([]byte, k-hLen-1)
	copy(db, em[hLen+1:])

	mgf1XOR(seed, newHash(), db)
	mgf1XOR(db, newHash(), seed)

	lHash2 := db[:hLen]
	lHash2Good := subtle.ConstantTimeCompare(lHash, lHash2)

	// Scan the remainder for the 0x01 delimiter without leaking its
	// position on the invalid path.
	var lookingForIndex, index, invalid int
	rest := db[hLen:]
	lookingForIndex = 1
	for i := 0; i < len(rest); i++ {
		equals0 := subtle.ConstantTimeByteEq(rest[i], 0)
		equals1 := subtle.ConstantTimeByteEq(rest[i], 1)
		index = subtle.ConstantTimeSelect(lookingForIndex&equals1, i, index)
		lookingForIndex = subtle.ConstantTimeSelect(equals1, 0, lookingForIndex)
		invalid = subtle.ConstantTimeSelect(lookingForIndex&^equals0, 1, invalid)
	}

	if firstByteIsZero&lHash2Good&^invalid&^lookingForIndex != 1 {
		return nil, errors.New("rsapad: oaep decryption error")
	}

	return rest[index+1:], nil
}

// mgf1XOR XORs the MGF1 mask generated from seed into out.
func mgf1XOR(out []byte, h hash.Hash, seed []byte) {
	var counter [4]byte
	var digest []byte

	done := 0
	for done < len(out) {
		h.Reset()
		h.Write(seed)
		h.Write(counter[:])
		digest = h.Sum(digest[:0])

		for i := 0; i < len(digest) && done < len(out); i++ {
			out[done] ^= digest[i]
			done++
		}
		incCounter(&counter)
	}
}

func incCounter(c *[4]byte) {
	if c[3]++; c[3] != 0 {
		return
	}
	if c[2]++; c[2] != 0 {
		return
	}
	if c[1]++; c[1] != 0 {
		return
	}
	c[0]++
}
