package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"
)

const policyQuery = "data.crapi.phone_change"

// DefaultRegoPolicy allows active users and hands back the configured OTP limits.
const DefaultRegoPolicy = `package crapi.phone_change

default allow := false

default otp_ttl_seconds := 600

default max_attempts := 5

allow if input.user.status == "active"

reason := "user is not active" if not allow

otp_ttl_seconds := input.defaults.otp_ttl_seconds if input.defaults.otp_ttl_seconds > 0

max_attempts := input.defaults.max_attempts if input.defaults.max_attempts >= 0
`

// LoadPolicy returns the Rego source at path, or DefaultRegoPolicy when path is empty.
func LoadPolicy(path string) (string, error) {
	if path == "" {
		return DefaultRegoPolicy, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read policy file: %w", err)
	}
	return string(b), nil
}

// OPAEvaluator evaluates the phone-change policy with an embedded OPA engine.
// The module is compiled once; every evaluation reuses the prepared query.
type OPAEvaluator struct {
	query    rego.PreparedEvalQuery
	defaults Defaults
	logger   *zap.Logger
}

// NewOPAEvaluator compiles module (package crapi.phone_change). Compile errors are returned so a bad
// policy file fails startup instead of silently falling back.
func NewOPAEvaluator(ctx context.Context, module string, defaults Defaults, logger *zap.Logger) (*OPAEvaluator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if module == "" {
		module = DefaultRegoPolicy
	}
	pq, err := rego.New(
		rego.Query(policyQuery),
		rego.Module("phone_change.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile phone change policy: %w", err)
	}
	return &OPAEvaluator{query: pq, defaults: defaults, logger: logger}, nil
}

// HealthCheck evaluates the prepared policy against a minimal input. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.eval(ctx, Input{UserStatus: "active"})
	return err
}

// EvaluatePhoneChange runs the policy. Evaluation failures are logged and answered with the
// configured defaults (allow) so an engine fault does not block the workflow.
func (e *OPAEvaluator) EvaluatePhoneChange(ctx context.Context, in Input) (Decision, error) {
	d, err := e.eval(ctx, in)
	if err != nil {
		e.logger.Warn("policy: evaluation failed, using defaults", zap.String("user_id", in.UserID), zap.Error(err))
		return e.defaultDecision(), nil
	}
	return d, nil
}

func (e *OPAEvaluator) defaultDecision() Decision {
	return Decision{Allow: true, OTPTTL: e.defaults.OTPTTL, MaxAttempts: e.defaults.MaxAttempts}
}

func (e *OPAEvaluator) eval(ctx context.Context, in Input) (Decision, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(e.buildInput(in)))
	if err != nil {
		return Decision{}, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, errors.New("policy query returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("policy result has type %T, want object", rs[0].Expressions[0].Value)
	}

	out := e.defaultDecision()
	allow, ok := doc["allow"].(bool)
	if !ok {
		return Decision{}, errors.New("policy result missing boolean allow")
	}
	out.Allow = allow
	if reason, ok := doc["reason"].(string); ok {
		out.Reason = reason
	}
	if secs, ok := toInt64(doc["otp_ttl_seconds"]); ok && secs > 0 {
		out.OTPTTL = time.Duration(secs) * time.Second
	}
	if n, ok := toInt64(doc["max_attempts"]); ok && n >= 0 {
		out.MaxAttempts = int(n)
	}
	return out, nil
}

func (e *OPAEvaluator) buildInput(in Input) map[string]interface{} {
	return map[string]interface{}{
		"user": map[string]interface{}{
			"id":            in.UserID,
			"status":        in.UserStatus,
			"current_phone": in.CurrentPhone,
			"has_phone":     in.CurrentPhone != "",
		},
		"request": map[string]interface{}{
			"old_number": in.OldNumber,
			"new_number": in.NewNumber,
			"client_ip":  in.ClientIP,
		},
		"defaults": map[string]interface{}{
			"otp_ttl_seconds": int64(e.defaults.OTPTTL / time.Second),
			"max_attempts":    e.defaults.MaxAttempts,
		},
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}
