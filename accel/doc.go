// Package accel defines the boundary between the offload engine and
// hardware accelerator drivers.
//
// A driver exposes opaque submit and poll entry points for a small set
// of task categories (cipher, digest, RSA, DH, ECC). The engine consumes:
//   - a request descriptor with a completion callback and a status code,
//   - session handles sized to a fixed key length,
//   - a poll call that drains completed asynchronous requests.
//
// Drivers register themselves by name through Register, and are
// instantiated from a device configuration file, allowing applications
// to switch accelerator backends without code changes.
package accel
