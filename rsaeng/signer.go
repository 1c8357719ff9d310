package rsaeng

import (
	"context"
	"crypto"
	"crypto/rsa"
	"io"

	"github.com/cockroachdb/errors"
)

// hashPrefixes are the DER DigestInfo prefixes of RFC 8017 section 9.2.
var hashPrefixes = map[crypto.Hash][]byte{
	crypto.SHA1:   {0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14},
	crypto.SHA224: {0x30, 0x2d, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x04, 0x05, 0x00, 0x04, 0x1c},
	crypto.SHA256: {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	crypto.SHA384: {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	crypto.SHA512: {0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
}

// Signer returns a crypto.Signer that computes PKCS#1 v1.5 signatures
// through the engine dispatch path.
func (e *Engine) Signer(priv *rsa.PrivateKey) crypto.Signer {
	return &engineSigner{eng: e, priv: priv}
}

// Decrypter returns a crypto.Decrypter over the engine dispatch path.
func (e *Engine) Decrypter(priv *rsa.PrivateKey) crypto.Decrypter {
	return &engineSigner{eng: e, priv: priv}
}

type engineSigner struct {
	eng  *Engine
	priv *rsa.PrivateKey
}

var _ crypto.Signer = (*engineSigner)(nil)
var _ crypto.Decrypter = (*engineSigner)(nil)

// Public implements crypto.Signer.
func (s *engineSigner) Public() crypto.PublicKey {
	return &s.priv.PublicKey
}

// Sign implements crypto.Signer. PSS options are not supported.
func (s *engineSigner) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if _, ok := opts.(*rsa.PSSOptions); ok {
		return nil, errors.New("rsaeng: PSS signatures are not supported")
	}
	hash := opts.HashFunc()
	prefix, ok := hashPrefixes[hash]
	if !ok {
		return nil, errors.Errorf("unsupported hash: %v", hash)
	}
	if len(digest) != hash.Size() {
		return nil, errors.Errorf("digest length %d does not match %v", len(digest), hash)
	}
	msg := make([]byte, 0, len(prefix)+len(digest))
	msg = append(msg, prefix...)
	msg = append(msg, digest...)
	return s.eng.Sign(context.Background(), s.priv, msg, PaddingPKCS1)
}

// Decrypt implements crypto.Decrypter. A nil opts or
// *rsa.PKCS1v15DecryptOptions selects PKCS#1 v1.5; *rsa.OAEPOptions
// selects OAEP with the engine's configured hash.
func (s *engineSigner) Decrypt(_ io.Reader, ciphertext []byte, opts crypto.DecrypterOpts) ([]byte, error) {
	switch o := opts.(type) {
	case nil, *rsa.PKCS1v15DecryptOptions:
		return s.eng.PrivateDecrypt(context.Background(), s.priv, ciphertext, PaddingPKCS1)
	case *rsa.OAEPOptions:
		if o.Hash != s.eng.oaepHash {
			return nil, errors.Errorf("unsupported OAEP hash: %v", o.Hash)
		}
		return s.eng.PrivateDecrypt(context.Background(), s.priv, ciphertext, PaddingOAEP)
	default:
		return nil, errors.Errorf("unsupported decrypter options: %T", opts)
	}
}
