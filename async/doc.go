// Package async implements the asynchronous offload execution core:
// a fixed-capacity pool of task slots identifying in-flight hardware
// requests, a cooperative job bridge that parks a calling computation
// while hardware completes a request, and a background completion
// poller per task category.
//
// The package knows nothing about any cryptographic operation; dispatch
// families build on it to submit requests and suspend until the poller
// delivers completion.
package async
