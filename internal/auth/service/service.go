// Package service is the authentication orchestrator. It sequences rate limiting, credential
// verification, the login policy, MFA challenges and token issuance, publishes exactly one audit
// event for every failed call, and converts every fault outside the error taxonomy to
// autherr.ErrStoreUnavailable before returning.
package service

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	auditdomain "identity-core/internal/audit/domain"
	"identity-core/internal/autherr"
	"identity-core/internal/credential"
	"identity-core/internal/logging"
	"identity-core/internal/mfa"
	mfadomain "identity-core/internal/mfa/domain"
	policyengine "identity-core/internal/policy/engine"
	principaldomain "identity-core/internal/principal/domain"
	"identity-core/internal/ratelimit"
	"identity-core/internal/security"
	"identity-core/internal/server/interceptors"
	"identity-core/internal/telemetry"
	tokendomain "identity-core/internal/token/domain"
	tokenservice "identity-core/internal/token/service"
)

const maxPrincipalIDLen = 254

// CredentialStore is the credential adapter used by the orchestrator.
type CredentialStore interface {
	VerifyCredential(ctx context.Context, principalID string, secret []byte) (credential.Verification, error)
	RecordFailedAttempt(ctx context.Context, principalID string, now time.Time) (*principaldomain.FailureOutcome, error)
	RecordSuccess(ctx context.Context, principalID string, now time.Time) error
	RehashIfNeeded(ctx context.Context, p *principaldomain.Principal, secret []byte, now time.Time)
	SetSecret(ctx context.Context, principalID string, secret []byte, now time.Time) (bool, error)
	Create(ctx context.Context, principalID string, secret []byte, now time.Time) error
	SetStatus(ctx context.Context, principalID string, status principaldomain.Status, now time.Time) (bool, error)
	Get(ctx context.Context, principalID string) (*principaldomain.Principal, error)
}

// Admitter is the rate limiter.
type Admitter interface {
	AdmitAll(ctx context.Context, action ratelimit.Action, keys ...ratelimit.Key) ratelimit.Decision
}

// Challenger is the MFA challenge state machine and enrollment lifecycle.
type Challenger interface {
	HasActiveFactor(ctx context.Context, principalID string) (bool, error)
	StartChallenge(ctx context.Context, principalID string) (*mfadomain.Challenge, error)
	Verify(ctx context.Context, challengeID, response string) (*mfadomain.Challenge, error)
	Enroll(ctx context.Context, principalID string, factor mfadomain.FactorType, destination string) (*mfa.EnrollResult, error)
	Confirm(ctx context.Context, principalID, enrollmentID, code string) (*mfadomain.Enrollment, error)
	Revoke(ctx context.Context, principalID, enrollmentID string) error
	List(ctx context.Context, principalID string) ([]*mfadomain.Enrollment, error)
}

// TokenEngine issues, rotates and revokes token pairs.
type TokenEngine interface {
	Issue(ctx context.Context, principalID string) (*tokendomain.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (*tokenservice.RefreshResult, string, error)
	Revoke(ctx context.Context, refreshToken string) (string, error)
	RevokeAll(ctx context.Context, principalID string) ([]string, error)
	VerifyAccess(accessToken string) (*security.AccessClaims, error)
}

// AuditPublisher accepts events without blocking.
type AuditPublisher interface {
	Publish(ctx context.Context, ev auditdomain.Event)
}

// LoginPolicy decides whether a verified login may proceed and whether it needs MFA.
type LoginPolicy interface {
	Evaluate(ctx context.Context, in policyengine.LoginInput) policyengine.LoginDecision
}

// Deps holds the orchestrator's collaborators. Limiter, Policy, Audit and Metrics are optional.
type Deps struct {
	Credentials CredentialStore
	Limiter     Admitter
	MFA         Challenger
	Tokens      TokenEngine
	Policy      LoginPolicy
	Audit       AuditPublisher
	Metrics     *telemetry.Metrics
}

// ChallengeInfo is the handle returned instead of tokens when a login needs MFA.
type ChallengeInfo struct {
	ID          string
	Factor      mfadomain.FactorType
	ExpiresAt   time.Time
	MaxAttempts int
}

// LoginResult carries either Tokens or Challenge.
type LoginResult struct {
	Tokens    *tokendomain.Pair
	Challenge *ChallengeInfo
}

// Service is the Auth Orchestrator.
type Service struct {
	creds   CredentialStore
	limiter Admitter
	mfa     Challenger
	tokens  TokenEngine
	policy  LoginPolicy
	audit   AuditPublisher
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService returns an orchestrator over deps.
func NewService(deps Deps, logger *zap.Logger) *Service {
	return &Service{
		creds:   deps.Credentials,
		limiter: deps.Limiter,
		mfa:     deps.MFA,
		tokens:  deps.Tokens,
		policy:  deps.Policy,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		logger:  logging.OrNop(logger).Named("auth"),
		now:     time.Now,
	}
}

// SetClock overrides the clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Login authenticates principalID with secret. It returns a token pair, or a challenge handle
// when the principal must pass MFA first.
func (s *Service) Login(ctx context.Context, principalID, secret string) (*LoginResult, error) {
	principalID = principaldomain.NormalizeID(principalID)
	fail := func(auditPrincipal string, err error, attrs map[string]string) (*LoginResult, error) {
		if attrs == nil {
			attrs = map[string]string{}
		}
		if auditPrincipal == "" && principalID != "" {
			attrs["attempted_id"] = principalID
		}
		err = s.boundary("login", err)
		s.emit(ctx, auditdomain.TypeLoginFailed, auditPrincipal, err, attrs)
		s.metrics.LoginOutcome(ctx, "login", reason(err))
		return nil, err
	}

	if principalID == "" || secret == "" {
		return fail("", autherr.ErrInvalidCredentials, nil)
	}
	if d := s.admit(ctx, ratelimit.ActionLogin, ratelimit.Source(interceptors.ClientIP(ctx)), ratelimit.Principal(principalID)); !d.Allowed {
		if d.Denied.Scope == ratelimit.ScopePrincipal {
			// Sustained pressure on one account counts toward its lockout.
			if _, err := s.creds.RecordFailedAttempt(ctx, principalID, s.now().UTC()); err != nil {
				s.logger.Warn("record failure on rate limit", zap.Error(err))
			}
		}
		return fail("", autherr.RateLimited(d.RetryAfter), map[string]string{"scope": string(d.Denied.Scope)})
	}

	v, err := s.creds.VerifyCredential(ctx, principalID, []byte(secret))
	if err != nil {
		return fail("", err, nil)
	}
	if v.Principal == nil {
		return fail("", autherr.ErrInvalidCredentials, map[string]string{"detail": "unknown_principal"})
	}
	p := v.Principal
	now := s.now().UTC()
	if p.IsLocked(now) {
		return fail(p.ID, autherr.ErrAccountLocked, nil)
	}
	if p.Status == principaldomain.StatusDisabled {
		return fail(p.ID, autherr.ErrInvalidCredentials, map[string]string{"detail": "account_disabled"})
	}
	if !v.Match {
		out, err := s.creds.RecordFailedAttempt(ctx, p.ID, now)
		if err != nil {
			return fail(p.ID, err, nil)
		}
		if out != nil && out.Locked() {
			return fail(p.ID, autherr.ErrAccountLocked, map[string]string{"attempts": strconv.Itoa(out.Attempts)})
		}
		return fail(p.ID, autherr.ErrInvalidCredentials, map[string]string{"detail": "secret_mismatch"})
	}
	s.creds.RehashIfNeeded(ctx, p, []byte(secret), now)

	enrolled, err := s.mfa.HasActiveFactor(ctx, p.ID)
	if err != nil {
		return fail(p.ID, err, nil)
	}
	decision := s.evaluate(ctx, policyengine.LoginInput{
		PrincipalID:    p.ID,
		MFAEnrolled:    enrolled,
		FailedAttempts: p.FailedAttempts,
		LastLoginAt:    p.LastLoginAt,
		SourceIP:       interceptors.ClientIP(ctx),
		Now:            now,
	})
	if !decision.Allow {
		return fail(p.ID, autherr.ErrInvalidCredentials, map[string]string{"detail": "policy_denied", "policy_reason": decision.Reason})
	}
	if decision.MFARequired && !enrolled {
		return fail(p.ID, autherr.ErrInvalidCredentials, map[string]string{"detail": "mfa_enrollment_required"})
	}

	if decision.MFARequired {
		c, err := s.mfa.StartChallenge(ctx, p.ID)
		if err != nil {
			return fail(p.ID, err, nil)
		}
		if c.State == mfadomain.ChallengePending {
			s.emit(ctx, auditdomain.TypeChallengeIssued, p.ID, nil, map[string]string{"factor": string(c.FactorType), "challenge_id": c.ID})
			s.metrics.LoginOutcome(ctx, "login", "challenge")
			return &LoginResult{Challenge: &ChallengeInfo{
				ID:          c.ID,
				Factor:      c.FactorType,
				ExpiresAt:   c.ExpiresAt,
				MaxAttempts: c.MaxAttempts,
			}}, nil
		}
		// The enrollment went away between the check and the challenge.
		return fail(p.ID, autherr.ErrInvalidCredentials, map[string]string{"detail": "mfa_enrollment_required"})
	}

	pair, err := s.complete(ctx, p.ID, now)
	if err != nil {
		return fail(p.ID, err, nil)
	}
	s.emit(ctx, auditdomain.TypeLoginSucceeded, p.ID, nil, map[string]string{"family_id": pair.FamilyID})
	s.metrics.LoginOutcome(ctx, "login", "success")
	return &LoginResult{Tokens: pair}, nil
}

// complete resets the failure counter and issues the pair that ends a successful login.
func (s *Service) complete(ctx context.Context, principalID string, now time.Time) (*tokendomain.Pair, error) {
	if err := s.creds.RecordSuccess(ctx, principalID, now); err != nil {
		return nil, err
	}
	return s.tokens.Issue(ctx, principalID)
}

// VerifyChallenge answers a login challenge. A correct response ends the login with a token pair.
func (s *Service) VerifyChallenge(ctx context.Context, challengeID, response string) (*tokendomain.Pair, error) {
	fail := func(principalID string, err error, attrs map[string]string) (*tokendomain.Pair, error) {
		if attrs == nil {
			attrs = map[string]string{}
		}
		attrs["challenge_id"] = challengeID
		err = s.boundary("verify challenge", err)
		if n, ok := autherr.RemainingAttempts(err); ok {
			attrs["remaining_attempts"] = strconv.Itoa(n)
		}
		s.emit(ctx, auditdomain.TypeChallengeFailed, principalID, err, attrs)
		s.metrics.LoginOutcome(ctx, "verify_challenge", reason(err))
		return nil, err
	}

	if d := s.admit(ctx, ratelimit.ActionMFAVerify, ratelimit.Source(interceptors.ClientIP(ctx))); !d.Allowed {
		return fail("", autherr.RateLimited(d.RetryAfter), map[string]string{"scope": string(d.Denied.Scope)})
	}
	c, err := s.mfa.Verify(ctx, challengeID, response)
	if err != nil {
		principalID := ""
		attrs := map[string]string{}
		if c != nil {
			principalID = c.PrincipalID
			attrs["factor"] = string(c.FactorType)
		}
		return fail(principalID, err, attrs)
	}
	attrs := map[string]string{"factor": string(c.FactorType)}

	p, err := s.creds.Get(ctx, c.PrincipalID)
	if err != nil {
		return fail(c.PrincipalID, err, attrs)
	}
	now := s.now().UTC()
	switch {
	case p == nil || p.Status == principaldomain.StatusDisabled:
		attrs["detail"] = "account_unavailable"
		return fail(c.PrincipalID, autherr.ErrInvalidCredentials, attrs)
	case p.IsLocked(now):
		return fail(c.PrincipalID, autherr.ErrAccountLocked, attrs)
	}

	pair, err := s.complete(ctx, p.ID, now)
	if err != nil {
		return fail(p.ID, err, attrs)
	}
	attrs["family_id"] = pair.FamilyID
	s.emit(ctx, auditdomain.TypeChallengeVerified, p.ID, nil, attrs)
	s.metrics.LoginOutcome(ctx, "verify_challenge", "success")
	return pair, nil
}

// Refresh rotates refreshToken. Reuse of a rotated token revokes its whole family.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*tokendomain.Pair, error) {
	if d := s.admit(ctx, ratelimit.ActionRefresh, ratelimit.Source(interceptors.ClientIP(ctx))); !d.Allowed {
		err := autherr.RateLimited(d.RetryAfter)
		s.emit(ctx, auditdomain.TypeTokenRefreshFailed, "", err, map[string]string{"scope": string(d.Denied.Scope)})
		return nil, err
	}
	res, principalID, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		err = s.boundary("refresh", err)
		typ := auditdomain.TypeTokenRefreshFailed
		if autherr.KindOf(err) == autherr.KindTokenReuseDetected {
			typ = auditdomain.TypeTokenReuseDetected
		}
		s.emit(ctx, typ, principalID, err, nil)
		return nil, err
	}
	s.emit(ctx, auditdomain.TypeTokenRefreshed, principalID, nil, map[string]string{
		"family_id":  res.Pair.FamilyID,
		"generation": strconv.Itoa(res.Generation),
	})
	return res.Pair, nil
}

// Logout revokes the session family of refreshToken.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	principalID, err := s.tokens.Revoke(ctx, refreshToken)
	if err != nil {
		err = s.boundary("logout", err)
		s.emit(ctx, auditdomain.TypeLogoutFailed, principalID, err, nil)
		return err
	}
	s.emit(ctx, auditdomain.TypeLogout, principalID, nil, nil)
	return nil
}

// RevokeAll revokes every active session family of principalID.
func (s *Service) RevokeAll(ctx context.Context, principalID string) error {
	_, err := s.revokeAll(ctx, principalID, "revoke_all")
	return err
}

func (s *Service) revokeAll(ctx context.Context, principalID, trigger string) ([]string, error) {
	families, err := s.tokens.RevokeAll(ctx, principalID)
	if err != nil {
		err = s.boundary("revoke all", err)
		s.emit(ctx, auditdomain.TypeTokensRevoked, principalID, err, map[string]string{"trigger": trigger})
		return nil, err
	}
	s.emit(ctx, auditdomain.TypeTokensRevoked, principalID, nil, map[string]string{
		"trigger":  trigger,
		"families": strconv.Itoa(len(families)),
	})
	return families, nil
}

// VerifyAccess validates an access token. Pure computation.
func (s *Service) VerifyAccess(accessToken string) (*security.AccessClaims, error) {
	return s.tokens.VerifyAccess(accessToken)
}

// Register creates an active principal with secret.
func (s *Service) Register(ctx context.Context, principalID, secret string) (string, error) {
	principalID = principaldomain.NormalizeID(principalID)
	fail := func(err error) (string, error) {
		err = s.boundary("register", err)
		attrs := map[string]string{}
		if principalID != "" {
			attrs["attempted_id"] = principalID
		}
		s.emit(ctx, auditdomain.TypeRegistrationFailed, "", err, attrs)
		return "", err
	}
	if d := s.admit(ctx, ratelimit.ActionLogin, ratelimit.Source(interceptors.ClientIP(ctx))); !d.Allowed {
		return fail(autherr.RateLimited(d.RetryAfter))
	}
	if principalID == "" || len(principalID) > maxPrincipalIDLen {
		return fail(ErrInvalidPrincipalID)
	}
	if err := validatePassword(secret); err != nil {
		return fail(err)
	}
	if err := s.creds.Create(ctx, principalID, []byte(secret), s.now().UTC()); err != nil {
		return fail(err)
	}
	s.emit(ctx, auditdomain.TypePrincipalRegistered, principalID, nil, nil)
	return principalID, nil
}

// ChangePassword replaces the principal's secret after verifying the current one, then revokes
// every session family.
func (s *Service) ChangePassword(ctx context.Context, principalID, current, next string) error {
	fail := func(err error, attrs map[string]string) error {
		err = s.boundary("change password", err)
		s.emit(ctx, auditdomain.TypePasswordChangeFailed, principalID, err, attrs)
		return err
	}
	if d := s.admit(ctx, ratelimit.ActionLogin, ratelimit.Source(interceptors.ClientIP(ctx)), ratelimit.Principal(principalID)); !d.Allowed {
		return fail(autherr.RateLimited(d.RetryAfter), map[string]string{"scope": string(d.Denied.Scope)})
	}
	v, err := s.creds.VerifyCredential(ctx, principalID, []byte(current))
	if err != nil {
		return fail(err, nil)
	}
	if v.Principal == nil {
		return fail(autherr.ErrInvalidCredentials, nil)
	}
	now := s.now().UTC()
	if v.Principal.IsLocked(now) {
		return fail(autherr.ErrAccountLocked, nil)
	}
	if !v.Match {
		out, err := s.creds.RecordFailedAttempt(ctx, principalID, now)
		if err != nil {
			return fail(err, nil)
		}
		if out != nil && out.Locked() {
			return fail(autherr.ErrAccountLocked, nil)
		}
		return fail(autherr.ErrInvalidCredentials, nil)
	}
	if err := validatePassword(next); err != nil {
		return fail(err, nil)
	}
	ok, err := s.creds.SetSecret(ctx, principalID, []byte(next), now)
	if err != nil {
		return fail(err, nil)
	}
	if !ok {
		return fail(autherr.ErrInvalidCredentials, nil)
	}
	s.emit(ctx, auditdomain.TypePasswordChanged, principalID, nil, nil)
	_, err = s.revokeAll(ctx, principalID, "password_change")
	return err
}

// SetAccountStatus applies an administrative status. Locking or disabling revokes every session
// family; activating clears the failure counter and any lock.
func (s *Service) SetAccountStatus(ctx context.Context, principalID string, status principaldomain.Status) error {
	principalID = principaldomain.NormalizeID(principalID)
	attrs := map[string]string{"status": string(status)}
	fail := func(err error) error {
		err = s.boundary("set account status", err)
		s.emit(ctx, auditdomain.TypeAccountStatusChanged, principalID, err, attrs)
		return err
	}
	if !status.Valid() {
		return fail(ErrInvalidStatus)
	}
	ok, err := s.creds.SetStatus(ctx, principalID, status, s.now().UTC())
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(ErrPrincipalNotFound)
	}
	s.emit(ctx, auditdomain.TypeAccountStatusChanged, principalID, nil, attrs)
	if status == principaldomain.StatusActive {
		return nil
	}
	_, err = s.revokeAll(ctx, principalID, "account_"+string(status))
	return err
}

// Unlock reactivates a locked principal.
func (s *Service) Unlock(ctx context.Context, principalID string) error {
	return s.SetAccountStatus(ctx, principalID, principaldomain.StatusActive)
}

// EnrollFactor starts enrolling a factor for principalID.
func (s *Service) EnrollFactor(ctx context.Context, principalID string, factor mfadomain.FactorType, destination string) (*mfa.EnrollResult, error) {
	attrs := map[string]string{"action": "enroll", "factor": string(factor)}
	res, err := s.mfa.Enroll(ctx, principalID, factor, destination)
	if err != nil {
		err = s.boundary("enroll factor", err)
		s.emit(ctx, auditdomain.TypeMFAChangeFailed, principalID, err, attrs)
		return nil, err
	}
	attrs["enrollment_id"] = res.Enrollment.ID
	attrs["status"] = string(res.Enrollment.Status)
	s.emit(ctx, auditdomain.TypeMFAChanged, principalID, nil, attrs)
	return res, nil
}

// ConfirmFactor activates a pending enrollment with the code from its confirmation challenge.
func (s *Service) ConfirmFactor(ctx context.Context, principalID, enrollmentID, code string) (*mfadomain.Enrollment, error) {
	attrs := map[string]string{"action": "confirm", "enrollment_id": enrollmentID}
	fail := func(err error) (*mfadomain.Enrollment, error) {
		err = s.boundary("confirm factor", err)
		s.emit(ctx, auditdomain.TypeMFAChangeFailed, principalID, err, attrs)
		return nil, err
	}
	if d := s.admit(ctx, ratelimit.ActionMFAVerify, ratelimit.Source(interceptors.ClientIP(ctx)), ratelimit.Principal(principalID)); !d.Allowed {
		return fail(autherr.RateLimited(d.RetryAfter))
	}
	e, err := s.mfa.Confirm(ctx, principalID, enrollmentID, code)
	if err != nil {
		return fail(err)
	}
	attrs["factor"] = string(e.FactorType)
	attrs["primary"] = strconv.FormatBool(e.IsPrimary)
	s.emit(ctx, auditdomain.TypeMFAChanged, principalID, nil, attrs)
	return e, nil
}

// RevokeFactor revokes one of the principal's enrollments.
func (s *Service) RevokeFactor(ctx context.Context, principalID, enrollmentID string) error {
	attrs := map[string]string{"action": "revoke", "enrollment_id": enrollmentID}
	if err := s.mfa.Revoke(ctx, principalID, enrollmentID); err != nil {
		err = s.boundary("revoke factor", err)
		s.emit(ctx, auditdomain.TypeMFAChangeFailed, principalID, err, attrs)
		return err
	}
	s.emit(ctx, auditdomain.TypeMFAChanged, principalID, nil, attrs)
	return nil
}

// ListFactors returns the principal's live enrollments.
func (s *Service) ListFactors(ctx context.Context, principalID string) ([]*mfadomain.Enrollment, error) {
	list, err := s.mfa.List(ctx, principalID)
	if err != nil {
		err = s.boundary("list factors", err)
		s.emit(ctx, auditdomain.TypeMFAListFailed, principalID, err, map[string]string{"action": "list"})
		return nil, err
	}
	return list, nil
}

func (s *Service) admit(ctx context.Context, action ratelimit.Action, keys ...ratelimit.Key) ratelimit.Decision {
	if s.limiter == nil {
		return ratelimit.Decision{Allowed: true}
	}
	return s.limiter.AdmitAll(ctx, action, keys...)
}

func (s *Service) evaluate(ctx context.Context, in policyengine.LoginInput) policyengine.LoginDecision {
	if s.policy == nil {
		return policyengine.LoginDecision{Allow: true, MFARequired: in.MFAEnrolled}
	}
	d := s.policy.Evaluate(ctx, in)
	d.MFARequired = d.MFARequired || in.MFAEnrolled
	return d
}

// boundary logs a fault outside the taxonomy and converts it.
func (s *Service) boundary(op string, err error) error {
	if err == nil || passThrough(err) || autherr.IsTaxonomy(err) {
		return err
	}
	s.logger.Error(op+" failed", zap.Error(err))
	return autherr.Boundary(err)
}

func (s *Service) emit(ctx context.Context, typ auditdomain.Type, principalID string, err error, attrs map[string]string) {
	if s.audit == nil {
		return
	}
	ev := auditdomain.Event{
		Type:        typ,
		PrincipalID: principalID,
		Outcome:     auditdomain.OutcomeSuccess,
		SourceIP:    interceptors.ClientIP(ctx),
		Attributes:  attrs,
		OccurredAt:  s.now().UTC(),
	}
	if err != nil {
		ev.Outcome = auditdomain.OutcomeFailure
		ev.Reason = reason(err)
	}
	s.audit.Publish(ctx, ev)
}
