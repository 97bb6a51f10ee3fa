// Package session authenticates the dashboard operator and issues bearer tokens.
package session

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/phone-otp-api/internal/domain"
	"github.com/phone-otp-api/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// TokenSigner issues a bearer token for username with role.
type TokenSigner interface {
	Sign(username, role string) (string, time.Time, error)
}

// Operator is the single configured dashboard account.
type Operator struct {
	Username     string
	PasswordHash string
}

type Service interface {
	Login(ctx context.Context, req domain.LoginRequest) (*domain.OperatorSession, error)
}

type service struct {
	operator Operator
	signer   TokenSigner
}

func NewService(operator Operator, signer TokenSigner) Service {
	return &service{operator: operator, signer: signer}
}

func (s *service) Login(_ context.Context, req domain.LoginRequest) (*domain.OperatorSession, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.operator.Username)) == 1
	// The hash is always compared so a wrong username costs the same as a wrong password.
	passErr := bcrypt.CompareHashAndPassword([]byte(s.operator.PasswordHash), []byte(req.Password))
	if !userOK || passErr != nil {
		slog.Warn("operator login rejected", "username", req.Username)
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}

	bearer, exp, err := s.signer.Sign(s.operator.Username, domain.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	slog.Info("operator logged in", "username", s.operator.Username)
	return &domain.OperatorSession{
		Bearer:    bearer,
		Username:  s.operator.Username,
		Role:      domain.RoleAdmin,
		ExpiresAt: exp,
	}, nil
}
