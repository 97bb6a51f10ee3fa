package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phone-otp-api/internal/domain"
	"github.com/phone-otp-api/internal/pkg/phone"
	"github.com/phone-otp-api/internal/pkg/validate"
)

func (s *service) Confirm(ctx context.Context, req domain.ConfirmRequest) (*domain.ConfirmResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	number := phone.Normalize(req.PhoneNumber)
	now := s.now()

	rec, err := s.store.FindCandidate(ctx, number, req.OTPCode, now)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Info("otp not found or expired", "phone", number)
		return &domain.ConfirmResult{Verified: false, Message: MsgInvalid}, nil
	}
	if err != nil {
		slog.Error("find otp candidate", "phone", number, "err", err)
		return nil, fmt.Errorf("failed to look up OTP: %w", domain.ErrStorage)
	}

	// The conditional update is the consistency boundary: a concurrent
	// confirmation that got here first leaves nothing to update.
	err = s.store.MarkVerified(ctx, rec.ID, now)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Info("otp consumed concurrently or expired", "phone", number, "id", rec.ID)
		return &domain.ConfirmResult{Verified: false, Message: MsgInvalid}, nil
	}
	if err != nil {
		slog.Error("mark verified", "phone", number, "id", rec.ID, "err", err)
		return nil, fmt.Errorf("failed to update verification status: %w", domain.ErrStorage)
	}
	slog.Info("phone number verified", "phone", number, "id", rec.ID)
	return &domain.ConfirmResult{Verified: true, Message: MsgVerified}, nil
}
