// Package rsapad implements the RSA encoding schemes applied around a
// raw modular exponentiation: PKCS#1 v1.5 block types 1 and 2, OAEP,
// and ANSI X9.31. The offload engine applies these to the hardware
// output buffer exactly as it would to a software-computed result.
package rsapad
