package rsaeng

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/effective-security/xoffload/accel"
	"github.com/effective-security/xoffload/metricskey"
)

// DefaultPublicExponent is the public exponent used for generated keys.
const DefaultPublicExponent = 65537

var bigOne = big.NewInt(1)

// GenerateKey produces an RSA key of the given modulus length. Prime
// candidates come from the host RNG; the modular arithmetic that
// derives the private exponent and CRT values is offloaded.
func (e *Engine) GenerateKey(ctx context.Context, bits int) (*rsa.PrivateKey, error) {
	if bits <= 0 {
		return nil, errors.WithStack(ErrInvalidInput)
	}
	defer metricskey.PerfOffloadOperation.MeasureSince(time.Now(),
		accel.CategoryRSA.String(), accel.OpKeyGen.String())

	soft := func(reason string) (*rsa.PrivateKey, error) {
		e.noteFallback(reason)
		return e.soft.GenerateKey(e.rand, bits)
	}

	if CheckModulusBits(bits) != HardwareOK {
		return soft("size")
	}
	if err := e.ensureInit(); err != nil {
		return soft("init")
	}

	exp := big.NewInt(DefaultPublicExponent)
	p, q, err := generatePrimes(e.rand, bits, exp)
	if err != nil {
		return nil, err
	}

	k := (bits + 7) / 8
	in, err := accel.MarshalRSAKeyGenInput(k, exp, p, q)
	if err != nil {
		return soft("key")
	}
	s, err := newSession(e.res.driver, e.res.numa, bits, true)
	if err != nil {
		return soft("session")
	}
	defer s.close()
	if err := s.fillKeyGen(in); err != nil {
		return soft("key")
	}
	if err := e.doCrypto(ctx, s); err != nil {
		logger.Warningf("op=keygen, reason=submit, err=[%v]", err)
		return soft("submit")
	}
	if s.req.Status != accel.StatusOK {
		return soft("status")
	}

	out, err := accel.UnmarshalRSAKeyGenOutput(k, s.req.Dst)
	if err != nil {
		return soft("output")
	}
	priv := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{
			N: out.N,
			E: DefaultPublicExponent,
		},
		D:      out.D,
		Primes: []*big.Int{p, q},
		Precomputed: rsa.PrecomputedValues{
			Dp:        out.Dp,
			Dq:        out.Dq,
			Qinv:      out.Qinv,
			CRTValues: []rsa.CRTValue{},
		},
	}
	if err := priv.Validate(); err != nil {
		logger.Errorf("op=keygen, reason=validate, err=[%v]", err)
		return soft("validate")
	}
	return priv, nil
}

// generatePrimes searches for two distinct primes of half the modulus
// length whose product fills the requested length and which are usable
// with the public exponent. The second prime is retried a few times
// before the search restarts from scratch. Primes are ordered p > q.
func generatePrimes(random io.Reader, bits int, exp *big.Int) (p, q *big.Int, err error) {
	half := bits / 2

search:
	for {
		p, err = randUsablePrime(random, half, exp)
		if err != nil {
			return nil, nil, err
		}
		for retry := 0; retry < 4; retry++ {
			q, err = randUsablePrime(random, half, exp)
			if err != nil {
				return nil, nil, err
			}
			if p.Cmp(q) == 0 {
				continue
			}
			n := new(big.Int).Mul(p, q)
			if n.BitLen() == bits && topNibble(n) >= 0x9 {
				break search
			}
		}
	}
	if p.Cmp(q) < 0 {
		p, q = q, p
	}
	return p, q, nil
}

// randUsablePrime draws primes until one is coprime with exp-relative
// order, so the private exponent exists.
func randUsablePrime(random io.Reader, bits int, exp *big.Int) (*big.Int, error) {
	for {
		p, err := rand.Prime(random, bits)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		pm1 := new(big.Int).Sub(p, bigOne)
		if new(big.Int).GCD(nil, nil, exp, pm1).Cmp(bigOne) == 0 {
			return p, nil
		}
	}
}

func topNibble(n *big.Int) uint {
	bl := n.BitLen()
	var v uint
	for i := 0; i < 4; i++ {
		v = v<<1 | n.Bit(bl-1-i)
	}
	return v
}
