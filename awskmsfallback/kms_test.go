package awskmsfallback_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/effective-security/xoffload/awskmsfallback"
)

func Test_KmsProvider(t *testing.T) {
	fake := newFakeKms()
	restore := awskmsfallback.KmsClientFactory
	awskmsfallback.KmsClientFactory = func(cfg aws.Config, optFns ...func(*kms.Options)) awskmsfallback.KmsClient {
		return fake
	}
	defer func() { awskmsfallback.KmsClientFactory = restore }()

	prov, err := awskmsfallback.Init("Endpoint=http://localhost:14556,Region=eu-west-2")
	require.NoError(t, err)
	require.NotNil(t, prov)

	signer, err := prov.GenerateRSAKey("test_RSA_2048", 2048)
	require.NoError(t, err)
	assert.Equal(t, "test_RSA_2048", signer.Label())
	assert.NotEmpty(t, signer.KeyID())

	pub, ok := signer.Public().(*rsa.PublicKey)
	require.True(t, ok)

	digest := sha256.Sum256([]byte("kms signed"))
	sig, err := signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	require.NoError(t, err)
	require.NoError(t, rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig))

	// PSS options map to the PSS signing algorithm
	_, err = signer.Sign(rand.Reader, digest[:], &rsa.PSSOptions{Hash: crypto.SHA256})
	require.NoError(t, err)

	// unsupported hash
	_, err = signer.Sign(rand.Reader, digest[:], crypto.SHA1)
	assert.Error(t, err)

	got, err := prov.GetKey(signer.KeyID())
	require.NoError(t, err)
	assert.Equal(t, signer.KeyID(), got.KeyID())

	require.NoError(t, prov.DestroyKey(signer.KeyID()))
	_, err = prov.GetKey(signer.KeyID())
	assert.Error(t, err)
}

//
// fakeKms
//

type fakeKms struct {
	keys map[string]*rsa.PrivateKey
	tags map[string]string
	next int
}

func newFakeKms() *fakeKms {
	return &fakeKms{
		keys: map[string]*rsa.PrivateKey{},
		tags: map[string]string{},
	}
}

func (f *fakeKms) CreateKey(_ context.Context, input *kms.CreateKeyInput, _ ...func(*kms.Options)) (*kms.CreateKeyOutput, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	f.next++
	id := fmt.Sprintf("key-%04d", f.next)
	f.keys[id] = priv
	f.tags[id] = aws.ToString(input.Description)
	return &kms.CreateKeyOutput{
		KeyMetadata: &types.KeyMetadata{
			KeyId:       &id,
			Arn:         aws.String("arn:aws:kms:test:" + id),
			Description: input.Description,
		},
	}, nil
}

func (f *fakeKms) ScheduleKeyDeletion(_ context.Context, input *kms.ScheduleKeyDeletionInput, _ ...func(*kms.Options)) (*kms.ScheduleKeyDeletionOutput, error) {
	id := aws.ToString(input.KeyId)
	if _, ok := f.keys[id]; !ok {
		return nil, errors.Errorf("key not found: %s", id)
	}
	delete(f.keys, id)
	return &kms.ScheduleKeyDeletionOutput{}, nil
}

func (f *fakeKms) DescribeKey(_ context.Context, input *kms.DescribeKeyInput, _ ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
	id := aws.ToString(input.KeyId)
	if _, ok := f.keys[id]; !ok {
		return nil, errors.Errorf("key not found: %s", id)
	}
	desc := f.tags[id]
	return &kms.DescribeKeyOutput{
		KeyMetadata: &types.KeyMetadata{
			KeyId:       input.KeyId,
			Description: &desc,
		},
	}, nil
}

func (f *fakeKms) GetPublicKey(_ context.Context, input *kms.GetPublicKeyInput, _ ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	id := aws.ToString(input.KeyId)
	priv, ok := f.keys[id]
	if !ok {
		return nil, errors.Errorf("key not found: %s", id)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &kms.GetPublicKeyOutput{
		KeyId:     input.KeyId,
		PublicKey: der,
	}, nil
}

func (f *fakeKms) Sign(_ context.Context, input *kms.SignInput, _ ...func(*kms.Options)) (*kms.SignOutput, error) {
	id := aws.ToString(input.KeyId)
	priv, ok := f.keys[id]
	if !ok {
		return nil, errors.Errorf("key not found: %s", id)
	}

	var sig []byte
	var err error
	switch input.SigningAlgorithm {
	case types.SigningAlgorithmSpecRsassaPkcs1V15Sha256:
		sig, err = rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, input.Message)
	case types.SigningAlgorithmSpecRsassaPssSha256:
		sig, err = rsa.SignPSS(rand.Reader, priv, crypto.SHA256, input.Message, nil)
	default:
		return nil, errors.Errorf("unsupported algorithm: %s", input.SigningAlgorithm)
	}
	if err != nil {
		return nil, err
	}
	return &kms.SignOutput{Signature: sig}, nil
}
