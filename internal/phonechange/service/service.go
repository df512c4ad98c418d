// Package service implements the phone-number change workflow: issue an OTP for a new number,
// then verify it and move the number onto the user.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/zackweld/crAPI/internal/audit"
	"github.com/zackweld/crAPI/internal/notification"
	"github.com/zackweld/crAPI/internal/otp"
	"github.com/zackweld/crAPI/internal/phonechange/domain"
	changerepo "github.com/zackweld/crAPI/internal/phonechange/repository"
	"github.com/zackweld/crAPI/internal/policy/engine"
	"github.com/zackweld/crAPI/internal/telemetry"
	userdomain "github.com/zackweld/crAPI/internal/user/domain"
)

const instrumentationName = "github.com/zackweld/crAPI/internal/phonechange"

// Sentinel errors; the HTTP handler maps them to status codes.
var (
	ErrAlreadyRegistered = errors.New("phone number already registered")
	ErrNotFound          = errors.New("not found")
	ErrUserNotFound      = fmt.Errorf("%w: user", ErrNotFound)
	ErrChangeNotFound    = fmt.Errorf("%w: no pending phone change", ErrNotFound)
	ErrInvalidOTP        = errors.New("invalid otp")
	ErrOTPExpired        = errors.New("otp expired")
	ErrTooManyAttempts   = errors.New("too many otp attempts")
	ErrNumberMismatch    = errors.New("phone numbers do not match the pending change")
	ErrPolicyDenied      = errors.New("phone change denied by policy")
)

// UserRepo is the minimal user repository needed by the workflow.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	ExistsByPhone(ctx context.Context, phone string) (bool, error)
}

// ChangeRepo is the minimal pending-change repository needed by the workflow.
type ChangeRepo interface {
	Upsert(ctx context.Context, c *domain.Change) error
	GetByUser(ctx context.Context, userID string) (*domain.Change, error)
	RecordFailedAttempt(ctx context.Context, id string) (*domain.Change, error)
	Complete(ctx context.Context, c *domain.Change) error
}

// OTPHasher hashes issued codes and checks submitted ones. *security.Hasher satisfies it.
type OTPHasher interface {
	Hash(secret []byte) (string, error)
	Compare(hash string, secret []byte) error
}

// CodeClearer drops a delivered code once it can no longer be used (dev OTP store).
type CodeClearer interface {
	Delete(ctx context.Context, userID string)
}

// Deps are the collaborators of Service. Users, Changes, Sender and Hasher are required.
type Deps struct {
	Users   UserRepo
	Changes ChangeRepo
	Sender  notification.Sender
	Hasher  OTPHasher
	// Policy may be nil; then every request is allowed with Defaults.
	Policy engine.Evaluator
	Audit  audit.AuditLogger
	Events telemetry.EventEmitter
	// Codes is set in dev OTP mode so verified codes stop being readable.
	Codes CodeClearer
	// ClientIP reads the caller's address from the request context for policy input. May be nil.
	ClientIP func(ctx context.Context) string
	Logger   *zap.Logger
	// TracerProvider and MeterProvider default to the otel globals.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Options are the OTP settings of the workflow.
type Options struct {
	OTPDigits int
	Defaults  engine.Defaults
}

// Service implements RequestChange and VerifyChange.
type Service struct {
	users   UserRepo
	changes ChangeRepo
	sender  notification.Sender
	hasher  OTPHasher
	policy  engine.Evaluator
	audit   audit.AuditLogger
	events  telemetry.EventEmitter
	codes   CodeClearer
	ipF     func(ctx context.Context) string
	logger  *zap.Logger
	opts    Options
	nowF    func() time.Time

	tracer        trace.Tracer
	requests      metric.Int64Counter
	verifications metric.Int64Counter
}

// NewService returns a Service. Instrument creation errors are returned.
func NewService(deps Deps, opts Options) (*Service, error) {
	if deps.Users == nil || deps.Changes == nil || deps.Sender == nil || deps.Hasher == nil {
		return nil, errors.New("phonechange: users, changes, sender and hasher are required")
	}
	if opts.OTPDigits == 0 {
		opts.OTPDigits = otp.MaxDigits
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	tp := deps.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := deps.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	requests, err := meter.Int64Counter("phone_change.requests",
		metric.WithDescription("Phone number change requests by outcome."))
	if err != nil {
		return nil, err
	}
	verifications, err := meter.Int64Counter("phone_change.verifications",
		metric.WithDescription("Phone number change OTP verifications by outcome."))
	if err != nil {
		return nil, err
	}
	return &Service{
		users:         deps.Users,
		changes:       deps.Changes,
		sender:        deps.Sender,
		hasher:        deps.Hasher,
		policy:        deps.Policy,
		audit:         deps.Audit,
		events:        deps.Events,
		codes:         deps.Codes,
		ipF:           deps.ClientIP,
		logger:        deps.Logger,
		opts:          opts,
		nowF:          func() time.Time { return time.Now().UTC() },
		tracer:        tp.Tracer(instrumentationName),
		requests:      requests,
		verifications: verifications,
	}, nil
}

// RequestChange issues a fresh OTP for moving userID from oldNumber to newNumber and delivers it to the
// user's email. Any earlier pending change of the user is replaced, so its code stops verifying.
func (s *Service) RequestChange(ctx context.Context, userID, oldNumber, newNumber string) (err error) {
	ctx, span := s.tracer.Start(ctx, "phonechange.RequestChange", trace.WithAttributes(attribute.String("user_id", userID)))
	defer func() { s.finish(ctx, span, s.requests, err) }()

	taken, err := s.users.ExistsByPhone(ctx, newNumber)
	if err != nil {
		return fmt.Errorf("check phone: %w", err)
	}
	if taken {
		s.recordFailure(ctx, userID, "request", ErrAlreadyRegistered)
		return ErrAlreadyRegistered
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	decision, err := s.decide(ctx, user, oldNumber, newNumber)
	if err != nil {
		return err
	}
	if !decision.Allow {
		s.logger.Info("phonechange: request denied by policy", zap.String("user_id", userID), zap.String("reason", decision.Reason))
		s.recordFailure(ctx, userID, "request", ErrPolicyDenied)
		return ErrPolicyDenied
	}

	code, err := otp.Generate(s.opts.OTPDigits)
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	hash, err := s.hasher.Hash([]byte(code))
	if err != nil {
		return fmt.Errorf("hash otp: %w", err)
	}
	now := s.nowF()
	change := &domain.Change{
		ID:          uuid.NewString(),
		UserID:      userID,
		OldPhone:    oldNumber,
		NewPhone:    newNumber,
		OTPHash:     hash,
		Status:      domain.StatusActive,
		MaxAttempts: decision.MaxAttempts,
		IssuedAt:    now,
		ExpiresAt:   now.Add(decision.OTPTTL),
		UpdatedAt:   now,
	}
	if err := s.changes.Upsert(ctx, change); err != nil {
		return fmt.Errorf("store pending change: %w", err)
	}

	job := notification.OTPJob{
		RequestID: uuid.NewString(),
		UserID:    userID,
		Email:     user.Email,
		Name:      user.Name,
		OTP:       code,
		ExpiresAt: change.ExpiresAt,
		CreatedAt: now,
	}
	if err := s.sender.SendOTP(ctx, job); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}

	s.logAudit(ctx, userID, audit.ActionPhoneChangeRequested, map[string]string{
		"change_id":  change.ID,
		"new_number": newNumber,
		"request_id": job.RequestID,
	})
	s.emit(telemetry.EventPhoneChangeRequested, userID, map[string]string{"change_id": change.ID})
	return nil
}

// VerifyChange checks code against the user's pending change and, on a match, moves the new number onto
// the user and consumes the change. Non-empty oldNumber/newNumber must match the pending change.
func (s *Service) VerifyChange(ctx context.Context, userID, oldNumber, newNumber, code string) (err error) {
	ctx, span := s.tracer.Start(ctx, "phonechange.VerifyChange", trace.WithAttributes(attribute.String("user_id", userID)))
	defer func() { s.finish(ctx, span, s.verifications, err) }()

	change, err := s.changes.GetByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get pending change: %w", err)
	}
	if !change.Verifiable() {
		return ErrChangeNotFound
	}
	if (newNumber != "" && newNumber != change.NewPhone) || (oldNumber != "" && oldNumber != change.OldPhone) {
		s.recordFailure(ctx, userID, "verify", ErrNumberMismatch)
		return ErrNumberMismatch
	}
	if change.Expired(s.nowF()) {
		s.recordFailure(ctx, userID, "verify", ErrOTPExpired)
		return ErrOTPExpired
	}

	if !otp.Valid(code) {
		return s.failAttempt(ctx, change)
	}
	if err := s.hasher.Compare(change.OTPHash, []byte(code)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("compare otp: %w", err)
		}
		return s.failAttempt(ctx, change)
	}

	if err := s.changes.Complete(ctx, change); err != nil {
		switch {
		case errors.Is(err, changerepo.ErrNotActive):
			return ErrChangeNotFound
		case errors.Is(err, changerepo.ErrPhoneTaken):
			s.recordFailure(ctx, userID, "verify", ErrAlreadyRegistered)
			return ErrAlreadyRegistered
		case errors.Is(err, changerepo.ErrUserNotFound):
			return ErrUserNotFound
		}
		return fmt.Errorf("complete phone change: %w", err)
	}
	if s.codes != nil {
		s.codes.Delete(ctx, userID)
	}

	s.logAudit(ctx, userID, audit.ActionPhoneChangeVerified, map[string]string{
		"change_id":  change.ID,
		"old_number": change.OldPhone,
		"new_number": change.NewPhone,
	})
	s.emit(telemetry.EventPhoneChangeVerified, userID, map[string]string{"change_id": change.ID})
	return nil
}

func (s *Service) failAttempt(ctx context.Context, change *domain.Change) error {
	updated, err := s.changes.RecordFailedAttempt(ctx, change.ID)
	if err != nil {
		if errors.Is(err, changerepo.ErrNotActive) {
			return ErrChangeNotFound
		}
		return fmt.Errorf("record failed attempt: %w", err)
	}
	if updated != nil && updated.Status == domain.StatusLocked {
		s.recordFailure(ctx, change.UserID, "verify", ErrTooManyAttempts)
		return ErrTooManyAttempts
	}
	s.recordFailure(ctx, change.UserID, "verify", ErrInvalidOTP)
	return ErrInvalidOTP
}

func (s *Service) decide(ctx context.Context, user *userdomain.User, oldNumber, newNumber string) (engine.Decision, error) {
	if s.policy == nil {
		return engine.Decision{Allow: true, OTPTTL: s.opts.Defaults.OTPTTL, MaxAttempts: s.opts.Defaults.MaxAttempts}, nil
	}
	d, err := s.policy.EvaluatePhoneChange(ctx, engine.Input{
		UserID:       user.ID,
		UserStatus:   string(user.Status),
		CurrentPhone: user.Phone,
		OldNumber:    oldNumber,
		NewNumber:    newNumber,
		ClientIP:     s.clientIP(ctx),
	})
	if err != nil {
		return engine.Decision{}, fmt.Errorf("evaluate policy: %w", err)
	}
	if d.OTPTTL <= 0 {
		d.OTPTTL = s.opts.Defaults.OTPTTL
	}
	return d, nil
}

func (s *Service) clientIP(ctx context.Context) string {
	if s.ipF == nil {
		return ""
	}
	return s.ipF(ctx)
}

// finish records the outcome on the span and the counter.
func (s *Service) finish(ctx context.Context, span trace.Span, counter metric.Int64Counter, err error) {
	outcome := outcomeOf(err)
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil && outcome == "internal" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("phonechange: internal error", zap.String("outcome", outcome), zap.Error(err))
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	span.End()
}

func (s *Service) recordFailure(ctx context.Context, userID, step string, cause error) {
	reason := reasonOf(cause)
	s.logAudit(ctx, userID, audit.ActionPhoneChangeFailed, map[string]string{"step": step, "reason": reason})
	s.emit(telemetry.EventPhoneChangeFailed, userID, map[string]string{"step": step, "reason": reason})
}

func (s *Service) logAudit(ctx context.Context, userID, action string, meta map[string]string) {
	if s.audit == nil {
		return
	}
	b, err := json.Marshal(meta)
	if err != nil {
		s.logger.Warn("phonechange: encode audit metadata", zap.Error(err))
		return
	}
	s.audit.LogEvent(ctx, userID, action, audit.ResourcePhoneNumber, string(b))
}

func (s *Service) emit(eventType, userID string, attrs map[string]string) {
	telemetry.EmitAsync(s.events, s.logger, &telemetry.Event{
		Type:       eventType,
		UserID:     userID,
		Source:     "phonechange",
		Attributes: attrs,
		CreatedAt:  s.nowF(),
	})
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if r := reasonOf(err); r != "" {
		return r
	}
	return "internal"
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrChangeNotFound):
		return "no_pending_change"
	case errors.Is(err, ErrInvalidOTP):
		return "invalid_otp"
	case errors.Is(err, ErrOTPExpired):
		return "otp_expired"
	case errors.Is(err, ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, ErrNumberMismatch):
		return "number_mismatch"
	case errors.Is(err, ErrPolicyDenied):
		return "policy_denied"
	}
	return ""
}
