// Package keyutil loads and saves RSA key material in PEM and DER
// encodings.
package keyutil

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ParseRSAPrivateKeyPEM parses and returns a PEM-encoded RSA private
// key. The private key may be either an unencrypted PKCS#8 or PKCS#1
// key.
func ParseRSAPrivateKeyPEM(keyPEM []byte) (*rsa.PrivateKey, error) {
	keyDER, err := GetPrivateKeyDERFromPEM(keyPEM)
	if err != nil {
		return nil, err
	}
	return ParseRSAPrivateKeyDER(keyDER)
}

// GetPrivateKeyDERFromPEM parses a PEM-encoded private key and
// returns DER-format key bytes.
func GetPrivateKeyDERFromPEM(in []byte) ([]byte, error) {
	keyDER, _ := pem.Decode(in)
	if keyDER != nil {
		if procType, ok := keyDER.Headers["Proc-Type"]; ok {
			if strings.Contains(procType, "ENCRYPTED") {
				return nil, errors.Errorf("private key is encrypted")
			}
		}
		return keyDER.Bytes, nil
	}

	return nil, errors.Errorf("unable to decode private key")
}

// ParseRSAPrivateKeyDER parses a PKCS#1 or PKCS#8 DER-encoded RSA
// private key. The key must not be in PEM format.
func ParseRSAPrivateKeyDER(keyDER []byte) (*rsa.PrivateKey, error) {
	generalKey, err := x509.ParsePKCS8PrivateKey(keyDER)
	if err != nil {
		generalKey, err = x509.ParsePKCS1PrivateKey(keyDER)
		if err != nil {
			return nil, errors.New("failed to parse key")
		}
	}

	if typ, ok := generalKey.(*rsa.PrivateKey); ok {
		return typ, nil
	}
	return nil, errors.New("not an RSA key")
}

// ParseRSAPublicKeyPEM parses a PEM-encoded PKIX or PKCS#1 RSA public
// key.
func ParseRSAPublicKeyPEM(keyPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.Errorf("unable to decode public key")
	}
	general, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		if pub, err1 := x509.ParsePKCS1PublicKey(block.Bytes); err1 == nil {
			return pub, nil
		}
		return nil, errors.WithMessage(err, "failed to parse public key")
	}
	if pub, ok := general.(*rsa.PublicKey); ok {
		return pub, nil
	}
	return nil, errors.New("not an RSA key")
}

// EncodePrivateKeyToPEM returns the PKCS#8 PEM encoding of the key.
func EncodePrivateKeyToPEM(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKeyToPEM returns the PKIX PEM encoding of the key.
func EncodePublicKeyToPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// LoadRSAPrivateKey reads and parses a PEM-encoded RSA private key
// file.
func LoadRSAPrivateKey(file string) (*rsa.PrivateKey, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ParseRSAPrivateKeyPEM(b)
}

// LoadRSAPublicKey reads and parses a PEM-encoded RSA public key file.
func LoadRSAPublicKey(file string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ParseRSAPublicKeyPEM(b)
}
