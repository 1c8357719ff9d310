// Package acceltest provides a scriptable in-memory accelerator driver.
// It computes real RSA results on the host so dispatch paths can be
// exercised end to end, and exposes knobs for queue pressure, failure
// status, missing devices and wedged completions.
package acceltest
