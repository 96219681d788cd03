// Package engine evaluates the Rego login policy consulted by the auth orchestrator after a
// credential match. The policy may deny a login or demand MFA; it can never waive MFA for a
// principal holding an active enrollment.
package engine

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"identity-core/internal/logging"
)

const loginQuery = "data.identity.login"

// DefaultLoginPolicy admits every verified principal and requires MFA exactly when one is enrolled.
const DefaultLoginPolicy = `package identity.login

default allow := true

default mfa_required := false

mfa_required if {
	input.principal.mfa_enrolled
}

default reason := ""
`

// LoginInput is the document the policy sees as input.
type LoginInput struct {
	PrincipalID    string
	MFAEnrolled    bool
	FailedAttempts int
	LastLoginAt    *time.Time
	SourceIP       string
	Now            time.Time
}

// LoginDecision is the policy outcome.
type LoginDecision struct {
	Allow       bool
	MFARequired bool
	// Reason is the policy's explanation for a denial, recorded on the audit event.
	Reason string
}

// LoginPolicy evaluates a prepared Rego query.
type LoginPolicy struct {
	query  rego.PreparedEvalQuery
	logger *zap.Logger
}

// NewLoginPolicy compiles src, or DefaultLoginPolicy when src is empty.
func NewLoginPolicy(ctx context.Context, src string, logger *zap.Logger) (*LoginPolicy, error) {
	if src == "" {
		src = DefaultLoginPolicy
	}
	q, err := rego.New(
		rego.Query(loginQuery),
		rego.Module("login.rego", src),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "compile login policy")
	}
	return &LoginPolicy{query: q, logger: logging.OrNop(logger)}, nil
}

// LoadLoginPolicy reads a Rego module from path; an empty path yields the default policy.
func LoadLoginPolicy(ctx context.Context, path string, logger *zap.Logger) (*LoginPolicy, error) {
	if path == "" {
		return NewLoginPolicy(ctx, "", logger)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read login policy %s", path)
	}
	return NewLoginPolicy(ctx, string(src), logger)
}

func (in LoginInput) document() map[string]interface{} {
	principal := map[string]interface{}{
		"id":              in.PrincipalID,
		"mfa_enrolled":    in.MFAEnrolled,
		"failed_attempts": in.FailedAttempts,
		"last_login_at":   nil,
		"dormant_days":    0,
	}
	if in.LastLoginAt != nil {
		principal["last_login_at"] = in.LastLoginAt.UTC().Format(time.RFC3339)
		principal["dormant_days"] = int(in.Now.Sub(*in.LastLoginAt).Hours() / 24)
	}
	return map[string]interface{}{
		"principal": principal,
		"source":    map[string]interface{}{"ip": in.SourceIP},
		"now":       in.Now.UTC().Format(time.RFC3339),
	}
}

// Evaluate returns the decision for in. Evaluation failures fall back to the default decision
// (allow, MFA when enrolled) and are logged. MFARequired is always true for an enrolled principal.
func (p *LoginPolicy) Evaluate(ctx context.Context, in LoginInput) LoginDecision {
	fallback := LoginDecision{Allow: true, MFARequired: in.MFAEnrolled}
	rs, err := p.query.Eval(ctx, rego.EvalInput(in.document()))
	if err != nil {
		p.logger.Warn("login policy evaluation failed; using defaults", zap.Error(err))
		return fallback
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		p.logger.Warn("login policy returned no result; using defaults")
		return fallback
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		p.logger.Warn("login policy result is not an object; using defaults")
		return fallback
	}
	out := fallback
	if v, ok := doc["allow"].(bool); ok {
		out.Allow = v
	}
	if v, ok := doc["mfa_required"].(bool); ok && v {
		out.MFARequired = true
	}
	switch v := doc["reason"].(type) {
	case string:
		out.Reason = v
	case json.Number:
		out.Reason = v.String()
	}
	return out
}

// HealthCheck evaluates the policy against a minimal input.
func (p *LoginPolicy) HealthCheck(ctx context.Context) error {
	rs, err := p.query.Eval(ctx, rego.EvalInput(LoginInput{Now: time.Now()}.document()))
	if err != nil {
		return errors.Wrap(err, "eval login policy")
	}
	if len(rs) == 0 {
		return errors.New("login policy query returned no result")
	}
	return nil
}
