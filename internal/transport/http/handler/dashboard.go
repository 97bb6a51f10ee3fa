package handler

import (
	"net/http"
	"strconv"

	"github.com/phone-otp-api/internal/application/dashboard"
)

// DashboardHandler serves the operator listing, stats and export endpoints.
type DashboardHandler struct {
	svc dashboard.Service
}

func NewDashboardHandler(svc dashboard.Service) *DashboardHandler {
	return &DashboardHandler{svc: svc}
}

func (h *DashboardHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	page, err := h.svc.List(r.Context(), q.Get("status"), limit, q.Get("cursor"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *DashboardHandler) Export(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Export(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
