package handler

import (
	"net/http"

	"github.com/phone-otp-api/internal/application/verification"
	"github.com/phone-otp-api/internal/domain"
)

// VerificationHandler serves the public issue and confirm endpoints.
type VerificationHandler struct {
	svc verification.Service
}

func NewVerificationHandler(svc verification.Service) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

func (h *VerificationHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req domain.IssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Issue(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *VerificationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req domain.ConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Confirm(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
