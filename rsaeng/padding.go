package rsaeng

import (
	"crypto"
	"hash"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/effective-security/xoffload/rsapad"
)

func hashNew(h crypto.Hash) func() hash.Hash {
	return func() hash.Hash {
		return h.New()
	}
}

func padForEncrypt(random io.Reader, oaep crypto.Hash, k int, msg []byte, padding Padding) ([]byte, error) {
	switch padding {
	case PaddingNone:
		if len(msg) != k {
			return nil, errors.Errorf("raw input must be %d bytes", k)
		}
		return msg, nil
	case PaddingPKCS1:
		return rsapad.AddPKCS1Type2(random, k, msg)
	case PaddingOAEP:
		return rsapad.AddOAEP(hashNew(oaep), random, k, msg, nil)
	default:
		return nil, errors.Errorf("unsupported encryption padding: %d", padding)
	}
}

func unpadAfterDecrypt(oaep crypto.Hash, k int, em []byte, padding Padding) ([]byte, error) {
	switch padding {
	case PaddingNone:
		return em, nil
	case PaddingPKCS1:
		return rsapad.CheckPKCS1Type2(em)
	case PaddingOAEP:
		return rsapad.CheckOAEP(hashNew(oaep), em, nil)
	default:
		return nil, errors.Errorf("unsupported encryption padding: %d", padding)
	}
}

func padForSign(k int, msg []byte, padding Padding) ([]byte, error) {
	switch padding {
	case PaddingNone:
		if len(msg) != k {
			return nil, errors.Errorf("raw input must be %d bytes", k)
		}
		return msg, nil
	case PaddingPKCS1:
		return rsapad.AddPKCS1Type1(k, msg)
	case PaddingX931:
		return rsapad.AddX931(k, msg)
	default:
		return nil, errors.Errorf("unsupported signature padding: %d", padding)
	}
}

func unpadAfterVerify(em []byte, padding Padding) ([]byte, error) {
	switch padding {
	case PaddingNone:
		return em, nil
	case PaddingPKCS1:
		return rsapad.CheckPKCS1Type1(em)
	case PaddingX931:
		return rsapad.CheckX931(em)
	default:
		return nil, errors.Errorf("unsupported signature padding: %d", padding)
	}
}
