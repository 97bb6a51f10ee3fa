package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phone-otp-api/internal/domain"
	"github.com/phone-otp-api/internal/pkg/id"
	"github.com/phone-otp-api/internal/pkg/otp"
	"github.com/phone-otp-api/internal/pkg/phone"
	"github.com/phone-otp-api/internal/pkg/validate"
)

func (s *service) Issue(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	number := phone.Normalize(req.PhoneNumber)
	slog.Info("issuing otp", "raw_phone", req.PhoneNumber, "phone", number)

	if s.opts.PreventReissueIfVerified {
		verified, err := s.store.HasVerified(ctx, number)
		if err != nil {
			slog.Error("check verified phone", "phone", number, "err", err)
			return nil, fmt.Errorf("check verified phone: %w", domain.ErrStorage)
		}
		if verified {
			return nil, fmt.Errorf("phone number already verified: %w", domain.ErrConflict)
		}
	}

	code, err := otp.Generate(s.opts.OTPLength)
	if err != nil {
		return nil, err
	}
	now := s.now()
	rec := &domain.VerificationRecord{
		ID:          id.NewAt(now),
		PhoneNumber: number,
		Name:        req.Name,
		OTPCode:     code,
		Verified:    false,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.opts.OTPWindow),
	}
	if err := s.storePending(ctx, rec); err != nil {
		slog.Error("store otp", "phone", number, "err", err)
		return nil, fmt.Errorf("failed to store OTP: %w", domain.ErrStorage)
	}
	slog.Info("otp stored", "phone", number, "id", rec.ID)
	slog.Debug("otp code", "id", rec.ID, "code", code)

	msg := s.dispatch(ctx, rec)
	res := &domain.IssueResult{Success: true, Message: msg}
	if msg != MsgSent && s.opts.ExposeDevOTP {
		res.DevOTP = code
	}
	return res, nil
}

// storePending supersedes any unverified record for the number and inserts rec.
func (s *service) storePending(ctx context.Context, rec *domain.VerificationRecord) error {
	if r, ok := s.store.(PendingReplacer); ok {
		return r.ReplacePending(ctx, rec)
	}
	if n, err := s.store.DeletePending(ctx, rec.PhoneNumber); err != nil {
		slog.Warn("delete stale unverified records", "phone", rec.PhoneNumber, "err", err)
	} else if n > 0 {
		slog.Info("superseded unverified records", "phone", rec.PhoneNumber, "count", n)
	}
	return s.store.Insert(ctx, rec)
}

// dispatch sends the code and returns the message describing the outcome.
// Delivery problems never fail the issuance.
func (s *service) dispatch(ctx context.Context, rec *domain.VerificationRecord) string {
	if s.sms == nil {
		slog.Warn("sms sender not configured", "phone", rec.PhoneNumber, "id", rec.ID)
		return MsgNotConfigured
	}
	body := fmt.Sprintf("Hello %s! Your verification code is: %s. Valid for %d minutes.",
		rec.Name, rec.OTPCode, windowMinutes(s.opts))
	if err := s.sms.SendSMS(ctx, rec.PhoneNumber, body); err != nil {
		if errors.Is(err, domain.ErrSMSRejected) {
			slog.Warn("sms rejected", "phone", rec.PhoneNumber, "id", rec.ID, "err", err)
			return MsgRejected
		}
		slog.Warn("sms send failed", "phone", rec.PhoneNumber, "id", rec.ID, "err", err)
		return MsgSendFailed
	}
	slog.Info("sms sent", "phone", rec.PhoneNumber, "id", rec.ID)
	return MsgSent
}

func windowMinutes(o Options) int {
	m := int(o.OTPWindow.Minutes())
	if m < 1 {
		return 1
	}
	return m
}
