// Package verification implements the OTP lifecycle: issuing a code for a
// phone number and confirming it exactly once before it expires.
package verification

import (
	"context"
	"time"

	"github.com/phone-otp-api/internal/domain"
)

// Response messages returned to callers.
const (
	MsgSent          = "OTP sent successfully via SMS"
	MsgNotConfigured = "OTP generated (SMS not configured)"
	MsgRejected      = "OTP generated (SMS rejected)"
	MsgSendFailed    = "OTP generated (SMS sending failed)"
	MsgVerified      = "Phone number verified successfully"
	MsgInvalid       = "Invalid or expired OTP code"
)

// Store is the persistence contract for verification records.
// FindCandidate and MarkVerified return an error wrapping domain.ErrNotFound
// when nothing matches; any other error is a storage failure.
type Store interface {
	Insert(ctx context.Context, v *domain.VerificationRecord) error
	// DeletePending removes every unverified record for phoneNumber and
	// returns how many were removed.
	DeletePending(ctx context.Context, phoneNumber string) (int, error)
	// FindCandidate returns the most recently created record matching
	// phoneNumber and otpCode that is unverified and expires after now.
	FindCandidate(ctx context.Context, phoneNumber, otpCode string, now time.Time) (*domain.VerificationRecord, error)
	// MarkVerified flips verified to true only if the record is still
	// unverified and unexpired at now.
	MarkVerified(ctx context.Context, id string, now time.Time) error
	HasVerified(ctx context.Context, phoneNumber string) (bool, error)
}

// PendingReplacer is implemented by stores that can drop the stale unverified
// records of v.PhoneNumber and insert v as one atomic unit. The delete part
// stays best-effort: only a failed insert is reported.
type PendingReplacer interface {
	ReplacePending(ctx context.Context, v *domain.VerificationRecord) error
}

// SMSSender delivers a text message. A nil SMSSender means SMS is not configured.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// Options carries the OTP lifecycle settings taken from config.
type Options struct {
	OTPWindow                time.Duration
	OTPLength                int
	PreventReissueIfVerified bool
	ExposeDevOTP             bool
}

type Service interface {
	Issue(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error)
	Confirm(ctx context.Context, req domain.ConfirmRequest) (*domain.ConfirmResult, error)
}

type service struct {
	store Store
	sms   SMSSender
	opts  Options
	now   func() time.Time
}

func NewService(store Store, sms SMSSender, opts Options) Service {
	return &service{
		store: store,
		sms:   sms,
		opts:  opts,
		now:   func() time.Time { return time.Now().UTC() },
	}
}
