package cli

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/effective-security/xoffload/keyutil"
)

func TestCliSuite(t *testing.T) {
	suite.Run(t, new(testSuite))
}

func (s *testSuite) writeTestKey(dir string) (privFile, pubFile string) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)

	privFile = filepath.Join(dir, "key.pem")
	pubFile = filepath.Join(dir, "key.pub")

	pemKey, err := keyutil.EncodePrivateKeyToPEM(priv)
	s.Require().NoError(err)
	s.Require().NoError(os.WriteFile(privFile, pemKey, 0600))

	pubPEM, err := keyutil.EncodePublicKeyToPEM(&priv.PublicKey)
	s.Require().NoError(err)
	s.Require().NoError(os.WriteFile(pubFile, pubPEM, 0644))
	return
}

func (s *testSuite) TestKeyGenerate() {
	dir := s.T().TempDir()
	out := filepath.Join(dir, "gen.pem")
	pub := filepath.Join(dir, "gen.pub")

	cmd := KeyGenCmd{Bits: 1024, Out: out, Pub: pub}
	s.Require().NoError(cmd.Run(s.ctl))

	priv, err := keyutil.LoadRSAPrivateKey(out)
	s.Require().NoError(err)
	s.Require().NoError(priv.Validate())
	s.Equal(1024, priv.N.BitLen())

	info := KeyInfoCmd{Key: out}
	s.Require().NoError(info.Run(s.ctl))
	s.HasText("RSA private key", "Bits: 1024")
}

func (s *testSuite) TestSignVerify() {
	dir := s.T().TempDir()
	privFile, pubFile := s.writeTestKey(dir)

	in := filepath.Join(dir, "payload.txt")
	sig := filepath.Join(dir, "payload.sig")
	s.Require().NoError(os.WriteFile(in, []byte("cli signed payload"), 0644))

	sign := RsaSignCmd{Key: privFile, In: in, Hash: "sha256", Out: sig}
	s.Require().NoError(sign.Run(s.ctl))

	// cross-check against the standard library
	priv, err := keyutil.LoadRSAPrivateKey(privFile)
	s.Require().NoError(err)
	sigBytes, err := os.ReadFile(sig)
	s.Require().NoError(err)
	digest := sha256.Sum256([]byte("cli signed payload"))
	s.Require().NoError(rsa.VerifyPKCS1v15(&priv.PublicKey, crypto.SHA256, digest[:], sigBytes))

	verify := RsaVerifyCmd{Pub: pubFile, In: in, Sig: sig, Hash: "sha256"}
	s.Require().NoError(verify.Run(s.ctl))
	s.HasText("signature: valid")

	// a different payload must not verify
	s.Require().NoError(os.WriteFile(in, []byte("tampered"), 0644))
	s.Error(verify.Run(s.ctl))
}

func (s *testSuite) TestEncryptDecrypt() {
	dir := s.T().TempDir()
	privFile, pubFile := s.writeTestKey(dir)

	in := filepath.Join(dir, "secret.txt")
	enc := filepath.Join(dir, "secret.enc")
	dec := filepath.Join(dir, "secret.dec")
	s.Require().NoError(os.WriteFile(in, []byte("cli secret"), 0644))

	encrypt := RsaEncryptCmd{Pub: pubFile, In: in, Out: enc, Padding: "oaep"}
	s.Require().NoError(encrypt.Run(s.ctl))

	decrypt := RsaDecryptCmd{Key: privFile, In: enc, Out: dec, Padding: "oaep"}
	s.Require().NoError(decrypt.Run(s.ctl))

	got, err := os.ReadFile(dec)
	s.Require().NoError(err)
	s.Equal([]byte("cli secret"), got)

	// offload served the eligible operations
	s.NotZero(s.drv.AsyncSubmits.Load())
}

func (s *testSuite) TestBadArguments() {
	dir := s.T().TempDir()
	privFile, _ := s.writeTestKey(dir)
	in := filepath.Join(dir, "in.txt")
	s.Require().NoError(os.WriteFile(in, []byte("x"), 0644))

	sign := RsaSignCmd{Key: privFile, In: in, Hash: "md4"}
	s.Error(sign.Run(s.ctl))

	enc := RsaEncryptCmd{Pub: privFile, In: in, Padding: "oaep"}
	s.Error(enc.Run(s.ctl))

	enc = RsaEncryptCmd{Pub: privFile, In: in, Padding: "bad"}
	s.Error(enc.Run(s.ctl))
}
