package client

import "errors"

// ErrBadNonce is returned by the request engine when the server rejected
// the request's anti-replay nonce and supplied a fresh one to retry with.
// It is the only retryable error in this package; workflow operations
// retry on it a bounded number of times.
var ErrBadNonce = errors.New("badNonce: the server rejected the request nonce")

// ErrNoAccount is returned by operations that require a registered
// account when the client has none attached. This is a caller error, not
// a server error.
var ErrNoAccount = errors.New("cannot use client without an account")

// Well-formed ACME problem documents other than badNonce are returned as
// *resources.Problem values; use errors.As to inspect them.
