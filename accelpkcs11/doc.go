// Package accelpkcs11 exposes a PKCS#11 token as a synchronous
// accelerator driver. Tokens have no completion queue, so the driver
// rejects asynchronous contexts and callers run in blocking mode.
package accelpkcs11
