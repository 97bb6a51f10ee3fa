package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phone-otp-api/internal/application/verification"
	"github.com/phone-otp-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockVerificationSvc struct{ mock.Mock }

func (m *mockVerificationSvc) Issue(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*domain.IssueResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVerificationSvc) Confirm(ctx context.Context, req domain.ConfirmRequest) (*domain.ConfirmResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*domain.ConfirmResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func postJSON(target string, v interface{}) *http.Request {
	body, _ := json.Marshal(v)
	return httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
}

// --- Issue ---

func TestIssue_InvalidBody(t *testing.T) {
	h := NewVerificationHandler(&mockVerificationSvc{})
	rr := httptest.NewRecorder()
	h.Issue(rr, httptest.NewRequest(http.MethodPost, "/v1/verifications", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"invalid request body"}`, rr.Body.String())
}

func TestIssue_HappyPath_WithDevOTP(t *testing.T) {
	svc := &mockVerificationSvc{}
	req := domain.IssueRequest{PhoneNumber: "555-000-1111", Name: "Jane Doe"}
	svc.On("Issue", mock.Anything, req).Return(&domain.IssueResult{
		Success: true, Message: verification.MsgNotConfigured, DevOTP: "482913",
	}, nil)

	rr := httptest.NewRecorder()
	NewVerificationHandler(svc).Issue(rr, postJSON("/v1/verifications", req))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"message":"OTP generated (SMS not configured)","devOTP":"482913"}`, rr.Body.String())
	svc.AssertExpectations(t)
}

func TestIssue_Delivered_OmitsDevOTP(t *testing.T) {
	svc := &mockVerificationSvc{}
	svc.On("Issue", mock.Anything, mock.Anything).Return(&domain.IssueResult{Success: true, Message: verification.MsgSent}, nil)

	rr := httptest.NewRecorder()
	NewVerificationHandler(svc).Issue(rr, postJSON("/v1/verifications", domain.IssueRequest{PhoneNumber: "1", Name: "a"}))
	assert.JSONEq(t, `{"success":true,"message":"OTP sent successfully via SMS"}`, rr.Body.String())
}

func TestIssue_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"validation", fmt.Errorf("phoneNumber is required: %w", domain.ErrBadRequest), http.StatusBadRequest, `{"error":"phoneNumber is required: bad request"}`},
		{"already verified", fmt.Errorf("phone number already verified: %w", domain.ErrConflict), http.StatusConflict, `{"error":"phone number already verified: conflict"}`},
		{"storage", fmt.Errorf("failed to store OTP: %w", domain.ErrStorage), http.StatusInternalServerError, `{"error":"internal server error"}`},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, `{"error":"internal server error"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockVerificationSvc{}
			svc.On("Issue", mock.Anything, mock.Anything).Return(nil, tc.err)
			rr := httptest.NewRecorder()
			NewVerificationHandler(svc).Issue(rr, postJSON("/v1/verifications", domain.IssueRequest{}))
			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.JSONEq(t, tc.wantBody, rr.Body.String())
		})
	}
}

// --- Confirm ---

func TestConfirm_InvalidCode_Is200(t *testing.T) {
	svc := &mockVerificationSvc{}
	req := domain.ConfirmRequest{PhoneNumber: "555-000-1111", OTPCode: "000000"}
	svc.On("Confirm", mock.Anything, req).Return(&domain.ConfirmResult{Verified: false, Message: verification.MsgInvalid}, nil)

	rr := httptest.NewRecorder()
	NewVerificationHandler(svc).Confirm(rr, postJSON("/v1/verifications/confirm", req))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"verified":false,"message":"Invalid or expired OTP code"}`, rr.Body.String())
}

func TestConfirm_Verified(t *testing.T) {
	svc := &mockVerificationSvc{}
	svc.On("Confirm", mock.Anything, mock.Anything).Return(&domain.ConfirmResult{Verified: true, Message: verification.MsgVerified}, nil)

	rr := httptest.NewRecorder()
	NewVerificationHandler(svc).Confirm(rr, postJSON("/v1/verifications/confirm", domain.ConfirmRequest{PhoneNumber: "1", OTPCode: "123456"}))
	var res domain.ConfirmResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.True(t, res.Verified)
}

func TestConfirm_StorageError_IsGeneric500(t *testing.T) {
	svc := &mockVerificationSvc{}
	svc.On("Confirm", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("failed to update verification status: %w", domain.ErrStorage))

	rr := httptest.NewRecorder()
	NewVerificationHandler(svc).Confirm(rr, postJSON("/v1/verifications/confirm", domain.ConfirmRequest{}))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "verification status")
}
