package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	// ErrStorage marks a persistence failure. The wrapped cause is for server logs only.
	ErrStorage = errors.New("storage failure")
	// ErrUnavailable marks an optional collaborator that is not configured.
	ErrUnavailable = errors.New("unavailable")
)

// ErrSMSRejected marks an SMS the provider refused (bad destination, opted-out
// number, invalid parameters), as opposed to a transport failure.
var ErrSMSRejected = errors.New("sms rejected by provider")
