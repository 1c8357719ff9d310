package cli

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/effective-security/xoffload/awskmsfallback"
)

// KmsCmd is the parent for AWS KMS commands
type KmsCmd struct {
	Generate KmsGenKeyCmd `cmd:"" help:"generate signing key in KMS"`
	Sign     KmsSignCmd   `cmd:"" help:"sign a file with a KMS key"`
	Remove   KmsRmKeyCmd  `cmd:"" help:"delete KMS key"`
}

// KmsGenKeyCmd creates a signing key in KMS
type KmsGenKeyCmd struct {
	Label      string `kong:"arg" required:"" help:"key label"`
	Bits       int    `help:"modulus length" default:"2048"`
	Attributes string `help:"KMS client attributes, e.g. Region=us-west-2,Endpoint=http://localhost:4599"`
}

// Run the command
func (a *KmsGenKeyCmd) Run(ctx *Cli) error {
	prov, err := awskmsfallback.Init(a.Attributes)
	if err != nil {
		return err
	}
	signer, err := prov.GenerateRSAKey(a.Label, a.Bits)
	if err != nil {
		return errors.WithMessagef(err, "failed to generate key: %q", a.Label)
	}
	fmt.Fprintf(ctx.Writer(), "Id: %s\nLabel: %s\n", signer.KeyID(), signer.Label())
	return nil
}

// KmsSignCmd signs a file with a KMS key
type KmsSignCmd struct {
	ID         string `kong:"arg" required:"" help:"key ID"`
	In         string `required:"" help:"file to sign"`
	Hash       string `help:"digest algorithm" default:"sha256"`
	Out        string `help:"signature output file (optional)"`
	Attributes string `help:"KMS client attributes, e.g. Region=us-west-2,Endpoint=http://localhost:4599"`
}

// Run the command
func (a *KmsSignCmd) Run(ctx *Cli) error {
	prov, err := awskmsfallback.Init(a.Attributes)
	if err != nil {
		return err
	}
	signer, err := prov.GetKey(a.ID)
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
	sig, err := signer.Sign(nil, digest, hash)
	if err != nil {
		return errors.WithMessagef(err, "failed to sign: %s", a.In)
	}
	return writeOutput(ctx, a.Out, sig)
}

// KmsRmKeyCmd schedules KMS key deletion
type KmsRmKeyCmd struct {
	ID         string `kong:"arg" required:"" help:"key ID"`
	Attributes string `help:"KMS client attributes, e.g. Region=us-west-2,Endpoint=http://localhost:4599"`
}

// Run the command
func (a *KmsRmKeyCmd) Run(ctx *Cli) error {
	prov, err := awskmsfallback.Init(a.Attributes)
	if err != nil {
		return err
	}
	if err := prov.DestroyKey(a.ID); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Writer(), "deleted: %s\n", a.ID)
	return nil
}
