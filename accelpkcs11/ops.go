package accelpkcs11

import (
	"math/big"

	"github.com/miekg/pkcs11"
	"github.com/pkg/errors"

	"github.com/effective-security/xoffload/accel"
)

var rawRSA = []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_X_509, nil)}

// execute runs one request against the token. The key material is
// imported as a session object for the duration of the call; padding
// was already applied by the caller, so the raw mechanism is used.
func (p11lib *P11Lib) execute(ts *tokenSession, req *accel.Request) error {
	k := ts.setup.BlockSize()

	switch req.Op {
	case accel.OpEncrypt, accel.OpVerify:
		obj, err := p11lib.importPublic(ts, k, req.Key)
		if err != nil {
			return err
		}
		defer p11lib.destroy(ts, obj)
		if err := p11lib.Ctx.EncryptInit(ts.sh, rawRSA, obj); err != nil {
			return errors.WithMessage(err, "EncryptInit")
		}
		out, err := p11lib.Ctx.Encrypt(ts.sh, req.Src)
		if err != nil {
			return errors.WithMessage(err, "Encrypt")
		}
		copyBlock(req.Dst[:k], out)
		req.Status = accel.StatusOK
		return nil

	case accel.OpDecrypt, accel.OpSign:
		obj, err := p11lib.importPrivate(ts, k, req.Key)
		if err != nil {
			return err
		}
		defer p11lib.destroy(ts, obj)
		if err := p11lib.Ctx.DecryptInit(ts.sh, rawRSA, obj); err != nil {
			return errors.WithMessage(err, "DecryptInit")
		}
		out, err := p11lib.Ctx.Decrypt(ts.sh, req.Src)
		if err != nil {
			return errors.WithMessage(err, "Decrypt")
		}
		copyBlock(req.Dst[:k], out)
		req.Status = accel.StatusOK
		return nil

	default:
		// Tokens generate their own primes, which does not compose
		// with host-side prime selection.
		return errors.WithStack(accel.ErrNotSupported)
	}
}

func (p11lib *P11Lib) importPublic(ts *tokenSession, k int, key []byte) (pkcs11.ObjectHandle, error) {
	pub, err := accel.UnmarshalRSAPublicKey(k, key)
	if err != nil {
		return 0, err
	}
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
		pkcs11.NewAttribute(pkcs11.CKA_ENCRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_VERIFY, true),
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, pub.N.Bytes()),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, big.NewInt(int64(pub.E)).Bytes()),
	}
	obj, err := p11lib.Ctx.CreateObject(ts.sh, template)
	if err != nil {
		return 0, errors.WithMessage(err, "CreateObject public key")
	}
	return obj, nil
}

func (p11lib *P11Lib) importPrivate(ts *tokenSession, k int, key []byte) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, false),
		pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, true),
		pkcs11.NewAttribute(pkcs11.CKA_DECRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
	}
	if ts.setup.CRT {
		crt, err := accel.UnmarshalRSACRTKey(k, key)
		if err != nil {
			return 0, err
		}
		n := new(big.Int).Mul(crt.P, crt.Q)
		template = append(template,
			pkcs11.NewAttribute(pkcs11.CKA_MODULUS, n.Bytes()),
			pkcs11.NewAttribute(pkcs11.CKA_PRIME_1, crt.P.Bytes()),
			pkcs11.NewAttribute(pkcs11.CKA_PRIME_2, crt.Q.Bytes()),
			pkcs11.NewAttribute(pkcs11.CKA_EXPONENT_1, crt.Dp.Bytes()),
			pkcs11.NewAttribute(pkcs11.CKA_EXPONENT_2, crt.Dq.Bytes()),
			pkcs11.NewAttribute(pkcs11.CKA_COEFFICIENT, crt.Qinv.Bytes()),
		)
	} else {
		d, n, err := accel.UnmarshalRSAPrivateKey(k, key)
		if err != nil {
			return 0, err
		}
		template = append(template,
			pkcs11.NewAttribute(pkcs11.CKA_MODULUS, n.Bytes()),
			pkcs11.NewAttribute(pkcs11.CKA_PRIVATE_EXPONENT, d.Bytes()),
		)
	}
	obj, err := p11lib.Ctx.CreateObject(ts.sh, template)
	if err != nil {
		return 0, errors.WithMessage(err, "CreateObject private key")
	}
	return obj, nil
}

func (p11lib *P11Lib) destroy(ts *tokenSession, obj pkcs11.ObjectHandle) {
	if err := p11lib.Ctx.DestroyObject(ts.sh, obj); err != nil {
		logger.Warningf("reason=DestroyObject, err=[%v]", err)
	}
}

// copyBlock writes src into dst right-aligned, so short token output
// keeps the fixed-width block form.
func copyBlock(dst, src []byte) {
	for i := range dst {
		dst[i] = 0
	}
	if len(src) > len(dst) {
		src = src[len(src)-len(dst):]
	}
	copy(dst[len(dst)-len(src):], src)
}
