package awskmsfallback

import (
	"context"
	"crypto"
	"crypto/rsa"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/effective-security/xoffload/metricskey"
)

// Signer implements crypto.Signer interface
type Signer struct {
	keyID     string
	label     string
	pubKey    crypto.PublicKey
	kmsClient KmsClient
}

var _ crypto.Signer = (*Signer)(nil)

// NewSigner creates new signer
func NewSigner(keyID string, label string, publicKey crypto.PublicKey, kmsClient KmsClient) *Signer {
	logger.KV(xlog.DEBUG, "id", keyID, "label", label)
	return &Signer{
		keyID:     keyID,
		label:     label,
		pubKey:    publicKey,
		kmsClient: kmsClient,
	}
}

// KeyID returns key id of the signer
func (s *Signer) KeyID() string {
	return s.keyID
}

// Label returns key label of the signer
func (s *Signer) Label() string {
	return s.label
}

// Public returns public key for the signer
func (s *Signer) Public() crypto.PublicKey {
	return s.pubKey
}

func (s *Signer) String() string {
	return fmt.Sprintf("id=%s, label=%s",
		s.KeyID(),
		s.Label(),
	)
}

// Sign implements signing operation
func (s *Signer) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) (signature []byte, err error) {
	defer metricskey.PerfOffloadOperation.MeasureSince(time.Now(), ProviderName, "sign")

	sigAlgo, err := sigAlgo(s.pubKey, opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to determine signature algorithm")
	}

	req := &kms.SignInput{
		KeyId:            &s.keyID,
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpec(sigAlgo),
	}
	resp, err := s.kmsClient.Sign(context.Background(), req)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to sign")
	}
	return resp.Signature, nil
}

func sigAlgo(publicKey crypto.PublicKey, opts crypto.SignerOpts) (string, error) {
	if _, ok := publicKey.(*rsa.PublicKey); !ok {
		return "", errors.Errorf("unknown type of public key: %s", reflect.TypeOf(publicKey))
	}

	pad := "PKCS1_V1_5_"
	if t, ok := opts.(*rsa.PSSOptions); ok {
		pad = "PSS_"
		opts = t.Hash
	}

	var algo string
	switch opts.HashFunc() {
	case crypto.SHA256:
		algo = "RSASSA_" + pad + "SHA_256"
	case crypto.SHA384:
		algo = "RSASSA_" + pad + "SHA_384"
	case crypto.SHA512:
		algo = "RSASSA_" + pad + "SHA_512"
	default:
		return "", errors.Errorf("unsupported hash: %s", reflect.TypeOf(opts))
	}
	return algo, nil
}
