// Package probe performs HTTPS smoke checks.
//
// A Prober issues one GET per target, bounded by the target's timeout, and
// reports either the response status or the error that prevented a response.
// Targets are probed sequentially and independently: every attempt dials a
// fresh connection and nothing is cached between runs. Failures never escape
// as errors; they are captured in the Result and rendered by a Reporter.
package probe
