package cli

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/effective-security/xoffload/keyutil"
)

// KeyCmd is the parent for key commands
type KeyCmd struct {
	Generate KeyGenCmd  `cmd:"" help:"generate key"`
	Info     KeyInfoCmd `cmd:"" help:"print key information"`
}

// KeyGenCmd generates an RSA key
type KeyGenCmd struct {
	Bits int    `help:"modulus length" default:"2048"`
	Out  string `help:"private key output file (optional)"`
	Pub  string `help:"public key output file (optional)"`
}

// Run the command
func (a *KeyGenCmd) Run(ctx *Cli) error {
	priv, err := ctx.Engine().GenerateKey(ctx.Context(), a.Bits)
	if err != nil {
		return errors.WithMessagef(err, "failed to generate key: %d bits", a.Bits)
	}

	pem, err := keyutil.EncodePrivateKeyToPEM(priv)
	if err != nil {
		return err
	}
	if a.Out != "" {
		if err := os.WriteFile(a.Out, pem, 0600); err != nil {
			return errors.WithStack(err)
		}
	} else {
		fmt.Fprint(ctx.Writer(), string(pem))
	}

	if a.Pub != "" {
		pubPEM, err := keyutil.EncodePublicKeyToPEM(&priv.PublicKey)
		if err != nil {
			return err
		}
		if err := os.WriteFile(a.Pub, pubPEM, 0644); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// KeyInfoCmd prints key information
type KeyInfoCmd struct {
	Key string `kong:"arg" required:"" help:"private or public key file"`
}

// Run the command
func (a *KeyInfoCmd) Run(ctx *Cli) error {
	b, err := os.ReadFile(a.Key)
	if err != nil {
		return errors.WithStack(err)
	}

	out := ctx.Writer()
	if priv, err := keyutil.ParseRSAPrivateKeyPEM(b); err == nil {
		fmt.Fprintf(out, "Type: RSA private key\n")
		fmt.Fprintf(out, "Bits: %d\n", priv.N.BitLen())
		fmt.Fprintf(out, "Primes: %d\n", len(priv.Primes))
		fmt.Fprintf(out, "Exponent: %d\n", priv.E)
		return nil
	}
	pub, err := keyutil.ParseRSAPublicKeyPEM(b)
	if err != nil {
		return errors.WithMessagef(err, "unsupported key: %s", a.Key)
	}
	fmt.Fprintf(out, "Type: RSA public key\n")
	fmt.Fprintf(out, "Bits: %d\n", pub.N.BitLen())
	fmt.Fprintf(out, "Exponent: %d\n", pub.E)
	return nil
}
