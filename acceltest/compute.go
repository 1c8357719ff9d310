package acceltest

import (
	"math/big"

	"github.com/cockroachdb/errors"

	"github.com/effective-security/xoffload/accel"
)

var one = big.NewInt(1)

// compute performs the request on the host with math/big, writing the
// device-format result into req.Dst and leaving status untouched.
func compute(setup accel.SessionSetup, req *accel.Request) error {
	k := setup.BlockSize()

	switch req.Op {
	case accel.OpEncrypt, accel.OpVerify:
		pub, err := accel.UnmarshalRSAPublicKey(k, req.Key)
		if err != nil {
			return err
		}
		m := new(big.Int).SetBytes(req.Src)
		if m.Cmp(pub.N) >= 0 {
			return errors.New("input out of range")
		}
		c := new(big.Int).Exp(m, big.NewInt(int64(pub.E)), pub.N)
		c.FillBytes(req.Dst[:k])
		return nil

	case accel.OpDecrypt, accel.OpSign:
		c := new(big.Int).SetBytes(req.Src)
		var m *big.Int
		if setup.CRT {
			crt, err := accel.UnmarshalRSACRTKey(k, req.Key)
			if err != nil {
				return err
			}
			m1 := new(big.Int).Exp(c, crt.Dp, crt.P)
			m2 := new(big.Int).Exp(c, crt.Dq, crt.Q)
			h := new(big.Int).Sub(m1, m2)
			h.Mul(h, crt.Qinv)
			h.Mod(h, crt.P)
			m = new(big.Int).Mul(h, crt.Q)
			m.Add(m, m2)
		} else {
			d, n, err := accel.UnmarshalRSAPrivateKey(k, req.Key)
			if err != nil {
				return err
			}
			if c.Cmp(n) >= 0 {
				return errors.New("input out of range")
			}
			m = new(big.Int).Exp(c, d, n)
		}
		m.FillBytes(req.Dst[:k])
		return nil

	case accel.OpKeyGen:
		e, p, q, err := accel.UnmarshalRSAKeyGenInput(k, req.Src)
		if err != nil {
			return err
		}
		n := new(big.Int).Mul(p, q)
		pm1 := new(big.Int).Sub(p, one)
		qm1 := new(big.Int).Sub(q, one)
		phi := new(big.Int).Mul(pm1, qm1)
		d := new(big.Int).ModInverse(e, phi)
		if d == nil {
			return errors.New("public exponent not invertible")
		}
		out := &accel.RSAKeyGenOutput{
			D:    d,
			N:    n,
			Qinv: new(big.Int).ModInverse(q, p),
			Dq:   new(big.Int).Mod(d, qm1),
			Dp:   new(big.Int).Mod(d, pm1),
		}
		b, err := accel.MarshalRSAKeyGenOutput(k, out)
		if err != nil {
			return err
		}
		copy(req.Dst, b)
		return nil

	default:
		return errors.WithStack(accel.ErrNotSupported)
	}
}
