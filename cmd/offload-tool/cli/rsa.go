package cli

import (
	"crypto"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/effective-security/xoffload/keyutil"
	"github.com/effective-security/xoffload/rsaeng"
)

// RsaCmd is the parent for RSA commands
type RsaCmd struct {
	Sign    RsaSignCmd    `cmd:"" help:"sign a file"`
	Verify  RsaVerifyCmd  `cmd:"" help:"verify a signature"`
	Encrypt RsaEncryptCmd `cmd:"" help:"encrypt a file"`
	Decrypt RsaDecryptCmd `cmd:"" help:"decrypt a file"`
}

func parsePadding(name string) (rsaeng.Padding, error) {
	switch strings.ToLower(name) {
	case "pkcs1":
		return rsaeng.PaddingPKCS1, nil
	case "oaep":
		return rsaeng.PaddingOAEP, nil
	case "x931":
		return rsaeng.PaddingX931, nil
	case "none":
		return rsaeng.PaddingNone, nil
	default:
		return 0, errors.Errorf("unsupported padding: %q", name)
	}
}

func parseHash(name string) (crypto.Hash, error) {
	switch strings.ToLower(name) {
	case "sha1":
		return crypto.SHA1, nil
	case "sha256":
		return crypto.SHA256, nil
	case "sha384":
		return crypto.SHA384, nil
	case "sha512":
		return crypto.SHA512, nil
	default:
		return 0, errors.Errorf("unsupported hash: %q", name)
	}
}

func digestFile(file string, hash crypto.Hash) ([]byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	h := hash.New()
	h.Write(data)
	return h.Sum(nil), nil
}

func writeOutput(a *Cli, out string, data []byte) error {
	if out != "" {
		return errors.WithStack(os.WriteFile(out, data, 0644))
	}
	fmt.Fprintln(a.Writer(), base64.StdEncoding.EncodeToString(data))
	return nil
}

// RsaSignCmd signs a file
type RsaSignCmd struct {
	Key  string `kong:"arg" required:"" help:"private key file"`
	In   string `required:"" help:"file to sign"`
	Hash string `help:"digest algorithm" default:"sha256"`
	Out  string `help:"signature output file (optional)"`
}

// Run the command
func (a *RsaSignCmd) Run(ctx *Cli) error {
	priv, err := keyutil.LoadRSAPrivateKey(a.Key)
	if err != nil {
		return err
	}
	hash, err := parseHash(a.Hash)
	if err != nil {
		return err
	}
	digest, err := digestFile(a.In, hash)
	if err != nil {
		return err
	}
	sig, err := ctx.Engine().Signer(priv).Sign(nil, digest, hash)
	if err != nil {
		return errors.WithMessagef(err, "failed to sign: %s", a.In)
	}
	return writeOutput(ctx, a.Out, sig)
}

// RsaVerifyCmd verifies a signature
type RsaVerifyCmd struct {
	Pub  string `kong:"arg" required:"" help:"public key file"`
	In   string `required:"" help:"signed file"`
	Sig  string `required:"" help:"signature file"`
	Hash string `help:"digest algorithm" default:"sha256"`
}

// Run the command
func (a *RsaVerifyCmd) Run(ctx *Cli) error {
	pub, err := keyutil.LoadRSAPublicKey(a.Pub)
	if err != nil {
		return err
	}
	hash, err := parseHash(a.Hash)
	if err != nil {
		return err
	}
	digest, err := digestFile(a.In, hash)
	if err != nil {
		return err
	}
	sig, err := os.ReadFile(a.Sig)
	if err != nil {
		return errors.WithStack(err)
	}
	payload, err := ctx.Engine().Verify(ctx.Context(), pub, sig, rsaeng.PaddingPKCS1)
	if err != nil {
		return errors.WithMessagef(err, "failed to verify: %s", a.In)
	}
	// the recovered payload is the DigestInfo encoding
	if len(payload) < len(digest) ||
		subtle.ConstantTimeCompare(payload[len(payload)-len(digest):], digest) != 1 {
		return errors.New("signature mismatch")
	}
	fmt.Fprintln(ctx.Writer(), "signature: valid")
	return nil
}

// RsaEncryptCmd encrypts a file
type RsaEncryptCmd struct {
	Pub     string `kong:"arg" required:"" help:"public key file"`
	In      string `required:"" help:"file to encrypt"`
	Out     string `help:"output file (optional)"`
	Padding string `help:"padding scheme (pkcs1|oaep)" default:"oaep"`
}

// Run the command
func (a *RsaEncryptCmd) Run(ctx *Cli) error {
	pub, err := keyutil.LoadRSAPublicKey(a.Pub)
	if err != nil {
		return err
	}
	padding, err := parsePadding(a.Padding)
	if err != nil {
		return err
	}
	msg, err := os.ReadFile(a.In)
	if err != nil {
		return errors.WithStack(err)
	}
	out, err := ctx.Engine().PublicEncrypt(ctx.Context(), pub, msg, padding)
	if err != nil {
		return errors.WithMessagef(err, "failed to encrypt: %s", a.In)
	}
	return writeOutput(ctx, a.Out, out)
}

// RsaDecryptCmd decrypts a file
type RsaDecryptCmd struct {
	Key     string `kong:"arg" required:"" help:"private key file"`
	In      string `required:"" help:"file to decrypt"`
	Out     string `help:"output file (optional)"`
	Padding string `help:"padding scheme (pkcs1|oaep)" default:"oaep"`
}

// Run the command
func (a *RsaDecryptCmd) Run(ctx *Cli) error {
	priv, err := keyutil.LoadRSAPrivateKey(a.Key)
	if err != nil {
		return err
	}
	padding, err := parsePadding(a.Padding)
	if err != nil {
		return err
	}
	ciphertext, err := os.ReadFile(a.In)
	if err != nil {
		return errors.WithStack(err)
	}
	out, err := ctx.Engine().PrivateDecrypt(ctx.Context(), priv, ciphertext, padding)
	if err != nil {
		return errors.WithMessagef(err, "failed to decrypt: %s", a.In)
	}
	return writeOutput(ctx, a.Out, out)
}
