package awskmsfallback

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/effective-security/xoffload/accel"
	"github.com/effective-security/xoffload/metricskey"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xoffload", "awskmsfallback")

// ProviderName specifies a provider name
const ProviderName = "AWSKMS"

// KmsClient interface
type KmsClient interface {
	CreateKey(context.Context, *kms.CreateKeyInput, ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	ScheduleKeyDeletion(context.Context, *kms.ScheduleKeyDeletionInput, ...func(*kms.Options)) (*kms.ScheduleKeyDeletionOutput, error)
	DescribeKey(context.Context, *kms.DescribeKeyInput, ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	GetPublicKey(context.Context, *kms.GetPublicKeyInput, ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(context.Context, *kms.SignInput, ...func(*kms.Options)) (*kms.SignOutput, error)
}

// KmsClientFactory override for unittest
var KmsClientFactory = func(cfg aws.Config, optFns ...func(*kms.Options)) KmsClient {
	return kms.NewFromConfig(cfg, optFns...)
}

// Provider signs through AWS KMS
type Provider struct {
	kmsClient KmsClient
	endpoint  string
	region    string
}

// Init configures the KMS client from a comma separated attribute
// string with Endpoint and Region keys.
func Init(attributes string) (*Provider, error) {
	ctx := context.Background()
	kmsAttributes := accel.ParseAttributes(attributes)
	endpoint := kmsAttributes["Endpoint"]
	region := kmsAttributes["Region"]

	p := &Provider{
		endpoint: endpoint,
		region:   region,
	}

	var awsops []func(*awsconfig.LoadOptions) error

	if region != "" {
		awsops = append(awsops, awsconfig.WithRegion(region))
	}
	if endpoint != "" {
		// https://aws.github.io/aws-sdk-go-v2/docs/configuring-sdk/endpoints/
		customResolver := aws.EndpointResolverWithOptionsFunc(func(svc, reg string, options ...any) (aws.Endpoint, error) {
			if svc == kms.ServiceID && reg == region {
				ep := aws.Endpoint{
					PartitionID:   "aws",
					URL:           endpoint,
					SigningRegion: region,
				}
				return ep, nil
			}
			// returning EndpointNotFoundError will allow the service to fallback to it's default resolution
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		awsops = append(awsops, awsconfig.WithEndpointResolverWithOptions(customResolver))
	}

	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	token := os.Getenv("AWS_SESSION_TOKEN")
	if id != "" && secret != "" {
		awsops = append(awsops, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(id, secret, token)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsops...)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	p.kmsClient = KmsClientFactory(cfg)

	return p, nil
}

// GenerateRSAKey creates a signing key in KMS and returns its signer
func (p *Provider) GenerateRSAKey(label string, bits int) (*Signer, error) {
	defer metricskey.PerfOffloadOperation.MeasureSince(time.Now(), ProviderName, "genkey_rsa")

	ctx := context.Background()

	spec := fmt.Sprintf("RSA_%d", bits)
	input := &kms.CreateKeyInput{
		CustomerMasterKeySpec: types.CustomerMasterKeySpec(spec),
		KeyUsage:              types.KeyUsageTypeSignVerify,
		Description:           &label,
	}
	resp, err := p.kmsClient.CreateKey(ctx, input)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create key with label: %q", label)
	}

	keyID := aws.ToString(resp.KeyMetadata.KeyId)
	arn := aws.ToString(resp.KeyMetadata.Arn)

	logger.KV(xlog.INFO, "arn", arn, "id", keyID, "label", label)

	return p.signerForKey(ctx, keyID, label)
}

// GetKey returns the signer for an existing KMS key
func (p *Provider) GetKey(keyID string) (*Signer, error) {
	defer metricskey.PerfOffloadOperation.MeasureSince(time.Now(), ProviderName, "getkey")

	ctx := context.Background()
	ki, err := p.kmsClient.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: &keyID})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to describe key, id=%s", keyID)
	}
	return p.signerForKey(ctx, keyID, aws.ToString(ki.KeyMetadata.Description))
}

// DestroyKey schedules key deletion through the KMS retire API
func (p *Provider) DestroyKey(keyID string) error {
	ctx := context.Background()
	resp, err := p.kmsClient.ScheduleKeyDeletion(ctx, &kms.ScheduleKeyDeletionInput{
		KeyId: &keyID,
	})
	if err != nil {
		return errors.WithMessagef(err, "failed to schedule key deletion: %s", keyID)
	}
	logger.KV(xlog.NOTICE, "id", keyID, "deletion_time", aws.ToTime(resp.DeletionDate).Format(time.RFC3339))

	return nil
}

func (p *Provider) signerForKey(ctx context.Context, keyID, label string) (*Signer, error) {
	pubKeyResp, err := p.kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: &keyID})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to get public key, id=%s", keyID)
	}

	pub, err := x509.ParsePKIXPublicKey(pubKeyResp.PublicKey)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to parse public key, id=%s", keyID)
	}
	return NewSigner(keyID, label, pub.(crypto.PublicKey), p.kmsClient), nil
}
