package rsapad

import (
	"math/big"

	"github.com/cockroachdb/errors"
)

// X9.31 framing octets.
const (
	x931HeaderShort = 0x6A
	x931Header      = 0x6B
	x931PadOctet    = 0xBB
	x931PadEnd      = 0xBA
	x931Trailer     = 0xCC
)

// AddX931 encodes from into an X9.31 signature block of length k:
// 0x6B BB..BB 0xBA data 0xCC, degenerating to a 0x6A header when the
// data fills the block.
func AddX931(k int, from []byte) ([]byte, error) {
	j := k - len(from) - 2
	if j < 0 {
		return nil, errors.Errorf("rsapad: data too large for key size: %d > %d", len(from), k-2)
	}

	em := make([]byte, k)
	p := 0
	if j == 0 {
		em[p] = x931HeaderShort
		p++
	} else {
		em[p] = x931Header
		p++
		for i := 0; i < j-1; i++ {
			em[p] = x931PadOctet
			p++
		}
		em[p] = x931PadEnd
		p++
	}
	copy(em[p:], from)
	em[k-1] = x931Trailer
	return em, nil
}

// CheckX931 validates an X9.31 signature block and returns the embedded
// data.
func CheckX931(em []byte) ([]byte, error) {
	if len(em) < 3 {
		return nil, errors.New("rsapad: block too short")
	}
	if em[len(em)-1] != x931Trailer {
		return nil, errors.New("rsapad: invalid x931 trailer")
	}

	p := 0
	switch em[0] {
	case x931HeaderShort:
		p = 1
	case x931Header:
		p = 1
		for p < len(em)-1 && em[p] == x931PadOctet {
			p++
		}
		if p == len(em)-1 || em[p] != x931PadEnd {
			return nil, errors.New("rsapad: invalid x931 padding")
		}
		p++
	default:
		return nil, errors.New("rsapad: invalid x931 header")
	}

	return em[p : len(em)-1], nil
}

// X931SignResult maps a raw signature s to min(s, n-s), the canonical
// X9.31 form.
func X931SignResult(n, s *big.Int) *big.Int {
	alt := new(big.Int).Sub(n, s)
	if s.Cmp(alt) > 0 {
		return alt
	}
	return s
}

// X931VerifyResult undoes the sign-side folding: when the recovered
// block does not end in the required 0x0C nibble, the complement n-v is
// the encoded message.
func X931VerifyResult(n, v *big.Int) *big.Int {
	if v.Bit(0)|v.Bit(1)<<1|v.Bit(2)<<2|v.Bit(3)<<3 != 0x0C {
		return new(big.Int).Sub(n, v)
	}
	return v
}
