// Package awskmsfallback signs with RSA keys held in AWS KMS. It
// serves deployments where the private key cannot leave the HSM and
// local offload is therefore not an option.
package awskmsfallback
