package service

import "errors"

// Sentinel errors for the request path. Handlers map these onto HTTP
// statuses; none of them is retried inline.
var (
	// ErrNoRoute means the tenant has no matching rule and no active PSP
	// credential. A configuration problem, not a transient one.
	ErrNoRoute = errors.New("no payment route available")

	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	// ErrRiskBlocked carries no automatic retry; the transfer stays put.
	ErrRiskBlocked = errors.New("transfer blocked by risk assessment")

	// ErrSignatureInvalid deliberately does not say which check failed.
	ErrSignatureInvalid = errors.New("invalid signature")

	// ErrTransferUnreconciled guards transfers whose last provider call
	// timed out; they need manual reconciliation before new attempts.
	ErrTransferUnreconciled = errors.New("transfer requires reconciliation")

	// ErrTerminalState rejects transitions out of terminal statuses.
	ErrTerminalState = errors.New("object is in a terminal state")
)
