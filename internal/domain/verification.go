package domain

import "time"

// VerificationRecord is one OTP issuance attempt for a phone number.
// A record is consumable only while Verified is false and now is before ExpiresAt.
type VerificationRecord struct {
	ID          string     `json:"id"`
	PhoneNumber string     `json:"phoneNumber"`
	Name        string     `json:"name"`
	OTPCode     string     `json:"-"`
	Verified    bool       `json:"verified"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty"`
}

// Consumable reports whether the record can still be confirmed at now.
func (v *VerificationRecord) Consumable(now time.Time) bool {
	return !v.Verified && now.Before(v.ExpiresAt)
}

type IssueRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"notblank"`
	Name        string `json:"name" validate:"notblank"`
}

// IssueResult is returned by a successful issuance. DevOTP is only set when
// SMS delivery did not happen and dev-code exposure is enabled.
type IssueResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	DevOTP  string `json:"devOTP,omitempty"`
}

type ConfirmRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"notblank"`
	OTPCode     string `json:"otpCode" validate:"notblank"`
}

type ConfirmResult struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

// VerificationStatus filters dashboard listings.
type VerificationStatus string

const (
	StatusAll        VerificationStatus = "all"
	StatusVerified   VerificationStatus = "verified"
	StatusUnverified VerificationStatus = "unverified"
)

// ParseVerificationStatus maps a query value to a status; empty means all.
func ParseVerificationStatus(s string) (VerificationStatus, bool) {
	switch VerificationStatus(s) {
	case "", StatusAll:
		return StatusAll, true
	case StatusVerified, StatusUnverified:
		return VerificationStatus(s), true
	}
	return "", false
}

// Matches reports whether a record with the given verified flag passes the filter.
func (s VerificationStatus) Matches(verified bool) bool {
	switch s {
	case StatusVerified:
		return verified
	case StatusUnverified:
		return !verified
	}
	return true
}

// ListFilter selects a page of verification records, newest first.
// Cursor is an opaque value returned by the previous page.
type ListFilter struct {
	Status VerificationStatus
	Limit  int
	Cursor string
}

type VerificationStats struct {
	Total      int `json:"total"`
	Verified   int `json:"verified"`
	Unverified int `json:"unverified"`
}
