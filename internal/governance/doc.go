// Package governance holds the retry policy applied to probe requests.
//
// The default configuration makes exactly one attempt. Operators can opt in
// to retries with exponential backoff for transport failures and transient
// status codes; a response with any status is reported as-is once retries
// are exhausted.
package governance
