package accel

import (
	"crypto/rsa"
	"math/big"

	"github.com/cockroachdb/errors"
)

// RSA key-material wire blocks. Every field is left-padded to a fixed
// width derived from the session key size, so a block's layout is fully
// determined by the SessionSetup it travels with.
//
//	public:      e ‖ n                   each keySize octets
//	private:     d ‖ n                   each keySize octets
//	private CRT: dq ‖ dp ‖ qinv ‖ q ‖ p  each keySize/2 octets
//	keygen in:   e ‖ p ‖ q               keySize, keySize/2, keySize/2
//	keygen out:  d ‖ n ‖ qinv ‖ dq ‖ dp  keySize, keySize, then keySize/2 each

// MarshalRSAPublicKey packs e and n into a public key block.
func MarshalRSAPublicKey(keySize int, pub *rsa.PublicKey) ([]byte, error) {
	b := make([]byte, 2*keySize)
	if err := fillField(b[:keySize], big.NewInt(int64(pub.E))); err != nil {
		return nil, err
	}
	if err := fillField(b[keySize:], pub.N); err != nil {
		return nil, err
	}
	return b, nil
}

// UnmarshalRSAPublicKey unpacks a public key block.
func UnmarshalRSAPublicKey(keySize int, b []byte) (*rsa.PublicKey, error) {
	if len(b) != 2*keySize {
		return nil, errors.Errorf("accel: invalid public key block: %d", len(b))
	}
	e := new(big.Int).SetBytes(b[:keySize])
	if !e.IsInt64() {
		return nil, errors.New("accel: invalid public exponent")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(b[keySize:]),
		E: int(e.Int64()),
	}, nil
}

// MarshalRSAPrivateKey packs d and n into a private key block.
func MarshalRSAPrivateKey(keySize int, priv *rsa.PrivateKey) ([]byte, error) {
	b := make([]byte, 2*keySize)
	if err := fillField(b[:keySize], priv.D); err != nil {
		return nil, err
	}
	if err := fillField(b[keySize:], priv.N); err != nil {
		return nil, err
	}
	return b, nil
}

// UnmarshalRSAPrivateKey unpacks a private key block into (d, n).
func UnmarshalRSAPrivateKey(keySize int, b []byte) (d, n *big.Int, err error) {
	if len(b) != 2*keySize {
		return nil, nil, errors.Errorf("accel: invalid private key block: %d", len(b))
	}
	return new(big.Int).SetBytes(b[:keySize]), new(big.Int).SetBytes(b[keySize:]), nil
}

// MarshalRSACRTKey packs the CRT private form. The key must carry two
// primes and precomputed CRT values.
func MarshalRSACRTKey(keySize int, priv *rsa.PrivateKey) ([]byte, error) {
	if len(priv.Primes) != 2 || priv.Precomputed.Qinv == nil {
		return nil, errors.New("accel: key has no CRT parameters")
	}
	half := keySize >> 1
	b := make([]byte, 5*half)
	fields := []*big.Int{
		priv.Precomputed.Dq,
		priv.Precomputed.Dp,
		priv.Precomputed.Qinv,
		priv.Primes[1],
		priv.Primes[0],
	}
	for i, f := range fields {
		if err := fillField(b[i*half:(i+1)*half], f); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// RSACRTParams holds the unpacked CRT private form.
type RSACRTParams struct {
	Dq, Dp, Qinv, Q, P *big.Int
}

// UnmarshalRSACRTKey unpacks a CRT private key block.
func UnmarshalRSACRTKey(keySize int, b []byte) (*RSACRTParams, error) {
	half := keySize >> 1
	if len(b) != 5*half {
		return nil, errors.Errorf("accel: invalid CRT key block: %d", len(b))
	}
	field := func(i int) *big.Int {
		return new(big.Int).SetBytes(b[i*half : (i+1)*half])
	}
	return &RSACRTParams{
		Dq:   field(0),
		Dp:   field(1),
		Qinv: field(2),
		Q:    field(3),
		P:    field(4),
	}, nil
}

// RSAKeyGenInSize returns the keygen input block length.
func RSAKeyGenInSize(keySize int) int {
	return 2 * keySize
}

// RSAKeyGenOutSize returns the keygen output block length.
func RSAKeyGenOutSize(keySize int) int {
	return 2*keySize + 3*(keySize>>1)
}

// MarshalRSAKeyGenInput packs (e, p, q) for a GENKEY request.
func MarshalRSAKeyGenInput(keySize int, e, p, q *big.Int) ([]byte, error) {
	half := keySize >> 1
	b := make([]byte, RSAKeyGenInSize(keySize))
	if err := fillField(b[:keySize], e); err != nil {
		return nil, err
	}
	if err := fillField(b[keySize:keySize+half], p); err != nil {
		return nil, err
	}
	if err := fillField(b[keySize+half:], q); err != nil {
		return nil, err
	}
	return b, nil
}

// UnmarshalRSAKeyGenInput unpacks a GENKEY input block.
func UnmarshalRSAKeyGenInput(keySize int, b []byte) (e, p, q *big.Int, err error) {
	half := keySize >> 1
	if len(b) != RSAKeyGenInSize(keySize) {
		return nil, nil, nil, errors.Errorf("accel: invalid keygen input block: %d", len(b))
	}
	e = new(big.Int).SetBytes(b[:keySize])
	p = new(big.Int).SetBytes(b[keySize : keySize+half])
	q = new(big.Int).SetBytes(b[keySize+half:])
	return e, p, q, nil
}

// RSAKeyGenOutput holds the unpacked GENKEY result.
type RSAKeyGenOutput struct {
	D, N, Qinv, Dq, Dp *big.Int
}

// MarshalRSAKeyGenOutput packs a GENKEY result block.
func MarshalRSAKeyGenOutput(keySize int, out *RSAKeyGenOutput) ([]byte, error) {
	half := keySize >> 1
	b := make([]byte, RSAKeyGenOutSize(keySize))
	if err := fillField(b[:keySize], out.D); err != nil {
		return nil, err
	}
	if err := fillField(b[keySize:2*keySize], out.N); err != nil {
		return nil, err
	}
	rest := b[2*keySize:]
	for i, f := range []*big.Int{out.Qinv, out.Dq, out.Dp} {
		if err := fillField(rest[i*half:(i+1)*half], f); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// UnmarshalRSAKeyGenOutput unpacks a GENKEY result block.
func UnmarshalRSAKeyGenOutput(keySize int, b []byte) (*RSAKeyGenOutput, error) {
	half := keySize >> 1
	if len(b) != RSAKeyGenOutSize(keySize) {
		return nil, errors.Errorf("accel: invalid keygen output block: %d", len(b))
	}
	rest := b[2*keySize:]
	return &RSAKeyGenOutput{
		D:    new(big.Int).SetBytes(b[:keySize]),
		N:    new(big.Int).SetBytes(b[keySize : 2*keySize]),
		Qinv: new(big.Int).SetBytes(rest[:half]),
		Dq:   new(big.Int).SetBytes(rest[half : 2*half]),
		Dp:   new(big.Int).SetBytes(rest[2*half : 3*half]),
	}, nil
}

func fillField(dst []byte, v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return errors.New("accel: invalid key field")
	}
	if (v.BitLen()+7)>>3 > len(dst) {
		return errors.Errorf("accel: key field overflows %d octets", len(dst))
	}
	v.FillBytes(dst)
	return nil
}
