// Package handler serves the dev-only OTP lookup endpoint. It is mounted only when dev OTP mode is on.
package handler

import (
	"net/http"

	"github.com/zackweld/crAPI/internal/devotp"
	"github.com/zackweld/crAPI/internal/server/httpx"
	"github.com/zackweld/crAPI/internal/server/middleware"
)

const devOTPNote = "DEV MODE ONLY"

// Handler exposes the caller's pending phone-change code.
type Handler struct {
	store devotp.Store
}

// NewHandler returns a Handler reading from store.
func NewHandler(store devotp.Store) *Handler {
	return &Handler{store: store}
}

type otpPayload struct {
	OTP  string `json:"otp"`
	Note string `json:"note"`
}

// GetPhoneOTP returns the caller's own pending code. Users can never read each other's codes
// because the lookup key is the authenticated user id.
func (h *Handler) GetPhoneOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.Message(w, http.StatusUnauthorized, "missing or invalid authorization")
		return
	}
	otp, ok := h.store.Get(r.Context(), userID)
	if !ok {
		httpx.Message(w, http.StatusNotFound, "OTP not found or expired")
		return
	}
	httpx.Data(w, http.StatusOK, devOTPNote, otpPayload{OTP: otp, Note: devOTPNote})
}
