// Package rsaeng dispatches RSA operations to a hardware accelerator
// and transparently falls back to a software implementation when the
// accelerator is absent, busy, ineligible for the operand size, or
// reports an error.
//
// Each public operation walks the same path: a cheap eligibility check
// on the modulus size, lazy per-process hardware initialization, a
// single-use session sized to the key, synchronous or suspendable
// submission through the async core, and a result check that either
// returns the hardware output or re-executes the operation in software.
// A caller cannot distinguish a hardware result from a software one;
// only genuine cryptographic failures and contract violations surface
// as errors.
package rsaeng
