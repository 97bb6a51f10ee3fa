package http

import (
	"github.com/phone-otp-api/internal/application/dashboard"
	"github.com/phone-otp-api/internal/application/verification"
)

// VerificationStore is what the router needs from a storage backend: the
// OTP lifecycle operations plus the dashboard reads. The dynamo, postgres
// and bolt stores all satisfy it.
type VerificationStore interface {
	verification.Store
	dashboard.Reader
}
