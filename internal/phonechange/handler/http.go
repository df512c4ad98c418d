// Package handler exposes the phone-number change workflow over REST.
package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zackweld/crAPI/internal/phonechange/service"
	"github.com/zackweld/crAPI/internal/server/httpx"
	"github.com/zackweld/crAPI/internal/server/middleware"
)

// Response messages.
const (
	MsgOTPSent         = "OTP has been sent to your registered emailid"
	MsgPhoneChanged    = "Phone number changed successfully"
	MsgAlreadyInUse    = "This phone number is already registered"
	MsgUserNotFound    = "User not found"
	MsgNoPendingChange = "No pending phone number change request found"
	MsgInvalidOTP      = "Invalid OTP! Please try again.."
	MsgOTPExpired      = "OTP has expired, please request a new one"
	MsgTooManyAttempts = "Too many invalid attempts, please request a new OTP"
	MsgNumberMismatch  = "Phone numbers do not match the pending request"
	MsgPolicyDenied    = "Phone number change is not allowed for this account"
	MsgMalformedBody   = "Malformed request body"
	MsgUnauthenticated = "missing or invalid authorization"
	MsgInternal        = "Something went wrong, please try again later"
)

// PhoneChanger is the workflow the handler drives. *service.Service satisfies it.
type PhoneChanger interface {
	RequestChange(ctx context.Context, userID, oldNumber, newNumber string) error
	VerifyChange(ctx context.Context, userID, oldNumber, newNumber, otp string) error
}

// ChangePhoneForm is the body of POST /identity/api/v2/user/change-phone-number.
type ChangePhoneForm struct {
	OldNumber string `json:"old_number" validate:"required,notblank,max=15"`
	NewNumber string `json:"new_number" validate:"required,notblank,max=15"`
}

// VerifyPhoneForm is the body of POST /identity/api/v2/user/verify-phone-otp. All fields are optional;
// a missing otp simply fails verification.
type VerifyPhoneForm struct {
	OldNumber string `json:"old_number" validate:"omitempty,max=15"`
	NewNumber string `json:"new_number" validate:"omitempty,max=15"`
	OTP       string `json:"otp" validate:"omitempty,min=3,max=4"`
}

// Handler serves the phone-change endpoints.
type Handler struct {
	svc    PhoneChanger
	logger *zap.Logger
}

// NewHandler returns a Handler for svc.
func NewHandler(svc PhoneChanger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// ChangePhoneNumber starts a change and emails an OTP to the caller.
func (h *Handler) ChangePhoneNumber(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.Message(w, http.StatusUnauthorized, MsgUnauthenticated)
		return
	}
	var form ChangePhoneForm
	if !bind(w, r, &form) {
		return
	}
	if err := h.svc.RequestChange(r.Context(), userID, form.OldNumber, form.NewNumber); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, MsgOTPSent)
}

// VerifyPhoneOTP completes the caller's pending change.
func (h *Handler) VerifyPhoneOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.Message(w, http.StatusUnauthorized, MsgUnauthenticated)
		return
	}
	var form VerifyPhoneForm
	if !bind(w, r, &form) {
		return
	}
	if err := h.svc.VerifyChange(r.Context(), userID, form.OldNumber, form.NewNumber, form.OTP); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, MsgPhoneChanged)
}

func bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := httpx.Bind(r, dst)
	if err == nil {
		return true
	}
	var ve *httpx.ValidationError
	if errors.As(err, &ve) {
		httpx.ValidationFailed(w, ve.Fields)
		return false
	}
	httpx.Message(w, http.StatusBadRequest, MsgMalformedBody)
	return false
}

// statusFor maps workflow errors to an HTTP status and message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrAlreadyRegistered):
		return http.StatusForbidden, MsgAlreadyInUse
	case errors.Is(err, service.ErrPolicyDenied):
		return http.StatusForbidden, MsgPolicyDenied
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, MsgUserNotFound
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, MsgNoPendingChange
	case errors.Is(err, service.ErrInvalidOTP):
		return http.StatusBadRequest, MsgInvalidOTP
	case errors.Is(err, service.ErrOTPExpired):
		return http.StatusBadRequest, MsgOTPExpired
	case errors.Is(err, service.ErrNumberMismatch):
		return http.StatusBadRequest, MsgNumberMismatch
	case errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusTooManyRequests, MsgTooManyAttempts
	}
	return http.StatusInternalServerError, MsgInternal
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("phonechange: request failed",
			zap.String("path", r.URL.Path), zap.String("client_ip", middleware.ClientIPFromContext(r.Context())), zap.Error(err))
	}
	httpx.Message(w, status, msg)
}
