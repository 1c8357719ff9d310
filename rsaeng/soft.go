package rsaeng

import (
	"crypto"
	"crypto/rsa"
	"io"
	"math/big"

	"github.com/cockroachdb/errors"

	"github.com/effective-security/xoffload/rsapad"
)

// SoftFallback computes the operations on the host CPU with math/big.
// It produces byte-identical results to the device path so callers
// cannot observe which path served them.
type SoftFallback struct {
	// OAEPHash selects the OAEP hash; the zero value means SHA-1.
	OAEPHash crypto.Hash
}

var _ Fallback = SoftFallback{}

func (f SoftFallback) oaep() crypto.Hash {
	if f.OAEPHash == 0 {
		return crypto.SHA1
	}
	return f.OAEPHash
}

// PublicEncrypt implements Fallback.
func (f SoftFallback) PublicEncrypt(random io.Reader, pub *rsa.PublicKey, msg []byte, padding Padding) ([]byte, error) {
	k := keyBytes(pub.N)
	em, err := padForEncrypt(random, f.oaep(), k, msg, padding)
	if err != nil {
		return nil, err
	}
	return pubExp(pub, em)
}

// PrivateDecrypt implements Fallback.
func (f SoftFallback) PrivateDecrypt(priv *rsa.PrivateKey, ciphertext []byte, padding Padding) ([]byte, error) {
	k := keyBytes(priv.N)
	em, err := privExp(priv, leftPad(k, ciphertext))
	if err != nil {
		return nil, err
	}
	return unpadAfterDecrypt(f.oaep(), k, em, padding)
}

// Sign implements Fallback.
func (f SoftFallback) Sign(priv *rsa.PrivateKey, msg []byte, padding Padding) ([]byte, error) {
	k := keyBytes(priv.N)
	em, err := padForSign(k, msg, padding)
	if err != nil {
		return nil, err
	}
	out, err := privExp(priv, em)
	if err != nil {
		return nil, err
	}
	if padding == PaddingX931 {
		s := rsapad.X931SignResult(priv.N, new(big.Int).SetBytes(out))
		out = make([]byte, k)
		s.FillBytes(out)
	}
	return out, nil
}

// Verify implements Fallback.
func (f SoftFallback) Verify(pub *rsa.PublicKey, sig []byte, padding Padding) ([]byte, error) {
	k := keyBytes(pub.N)
	em, err := pubExp(pub, leftPad(k, sig))
	if err != nil {
		return nil, err
	}
	if padding == PaddingX931 {
		v := rsapad.X931VerifyResult(pub.N, new(big.Int).SetBytes(em))
		em = make([]byte, k)
		v.FillBytes(em)
	}
	return unpadAfterVerify(em, padding)
}

// GenerateKey implements Fallback.
func (f SoftFallback) GenerateKey(random io.Reader, bits int) (*rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(random, bits)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return priv, nil
}

func pubExp(pub *rsa.PublicKey, block []byte) ([]byte, error) {
	m := new(big.Int).SetBytes(block)
	if m.Cmp(pub.N) >= 0 {
		return nil, errors.WithStack(ErrInvalidInput)
	}
	c := new(big.Int).Exp(m, big.NewInt(int64(pub.E)), pub.N)
	out := make([]byte, keyBytes(pub.N))
	c.FillBytes(out)
	return out, nil
}

// privExp computes the private-key operation, using the CRT
// recombination when the key carries precomputed values.
func privExp(priv *rsa.PrivateKey, block []byte) ([]byte, error) {
	c := new(big.Int).SetBytes(block)
	if c.Cmp(priv.N) >= 0 {
		return nil, errors.WithStack(ErrInvalidInput)
	}

	var m *big.Int
	pre := &priv.Precomputed
	if hasCRT(priv) && pre.Dp != nil && pre.Dq != nil && pre.Qinv != nil {
		p, q := priv.Primes[0], priv.Primes[1]
		m1 := new(big.Int).Exp(c, pre.Dp, p)
		m2 := new(big.Int).Exp(c, pre.Dq, q)
		h := new(big.Int).Sub(m1, m2)
		h.Mul(h, pre.Qinv)
		h.Mod(h, p)
		m = new(big.Int).Mul(h, q)
		m.Add(m, m2)
	} else {
		m = new(big.Int).Exp(c, priv.D, priv.N)
	}

	out := make([]byte, keyBytes(priv.N))
	m.FillBytes(out)
	return out, nil
}
