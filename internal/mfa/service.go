// Package mfa runs the multi-factor challenge state machine and the enrollment lifecycle.
// Factor behavior is selected by a switch over the closed domain.FactorType set.
package mfa

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"identity-core/internal/autherr"
	"identity-core/internal/logging"
	"identity-core/internal/mfa/challenge"
	"identity-core/internal/mfa/domain"
	"identity-core/internal/mfa/repository"
	"identity-core/internal/notification"
)

const (
	DefaultChallengeTTL = 5 * time.Minute
	DefaultMaxAttempts  = 3
	totpPeriod          = 30
	totpSkew            = 1
)

var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      totpSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Notifier hands a one-time code to the delivery collaborator. It must not block.
type Notifier interface {
	Notify(ctx context.Context, msg notification.OneTimeCode)
}

// Config holds challenge and enrollment parameters.
type Config struct {
	ChallengeTTL      time.Duration
	MaxAttempts       int
	TOTPIssuer        string
	RecoveryCodeCount int
}

// EnrollResult is returned once by Enroll. ProvisioningURI is set for TOTP and RecoveryCodes for
// recovery code sets; neither can be retrieved again.
type EnrollResult struct {
	Enrollment      *domain.Enrollment
	ChallengeID     string
	ExpiresAt       time.Time
	ProvisioningURI string
	RecoveryCodes   []string
}

// Service implements challenges and enrollments.
type Service struct {
	enrollments repository.Repository
	challenges  *challenge.Store
	notifier    Notifier
	cfg         Config
	logger      *zap.Logger
	now         func() time.Time
}

// NewService returns an MFA service. Zero config values take defaults.
func NewService(enrollments repository.Repository, challenges *challenge.Store, notifier Notifier, cfg Config, logger *zap.Logger) *Service {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultChallengeTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.TOTPIssuer == "" {
		cfg.TOTPIssuer = "identity-core"
	}
	return &Service{
		enrollments: enrollments,
		challenges:  challenges,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logging.OrNop(logger).Named("mfa"),
		now:         time.Now,
	}
}

// SetClock overrides the service clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// HasActiveFactor reports whether the principal holds a primary active enrollment.
func (s *Service) HasActiveFactor(ctx context.Context, principalID string) (bool, error) {
	e, err := s.enrollments.Primary(ctx, principalID)
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

// StartChallenge opens a login challenge against the principal's primary active enrollment.
// A principal without one gets a challenge in state NotRequired that is not stored.
func (s *Service) StartChallenge(ctx context.Context, principalID string) (*domain.Challenge, error) {
	e, err := s.enrollments.Primary(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return &domain.Challenge{PrincipalID: principalID, State: domain.ChallengeNotRequired}, nil
	}
	return s.start(ctx, e, domain.PurposeLogin, uuid.NewString())
}

func (s *Service) start(ctx context.Context, e *domain.Enrollment, purpose domain.Purpose, id string) (*domain.Challenge, error) {
	now := s.now().UTC()
	c := &domain.Challenge{
		ID:           id,
		PrincipalID:  e.PrincipalID,
		EnrollmentID: e.ID,
		FactorType:   e.FactorType,
		Purpose:      purpose,
		State:        domain.ChallengePending,
		MaxAttempts:  s.cfg.MaxAttempts,
		ExpiresAt:    now.Add(s.cfg.ChallengeTTL),
		CreatedAt:    now,
	}
	var code string
	if e.FactorType.Delivered() {
		var err error
		if code, err = GenerateOTP(); err != nil {
			return nil, errors.Wrap(err, "generate otp")
		}
		c.CodeHash = HashOTP(code)
	}
	if err := s.challenges.Save(ctx, c, now); err != nil {
		return nil, err
	}
	if code != "" && s.notifier != nil {
		s.notifier.Notify(ctx, notification.OneTimeCode{
			PrincipalID: e.PrincipalID,
			ChallengeID: c.ID,
			Factor:      e.FactorType,
			Destination: e.Destination,
			Code:        code,
			ExpiresAt:   c.ExpiresAt,
		})
	}
	return c, nil
}

// Verify consumes one attempt of a login challenge and checks response. Errors are
// autherr.ErrChallengeExpired, autherr.ErrChallengeAttemptsExhausted, a
// ChallengeInvalidResponseError carrying the attempts left, or a store fault. A wrong response
// that uses the last attempt fails the challenge, so every later call reports exhaustion.
func (s *Service) Verify(ctx context.Context, challengeID, response string) (*domain.Challenge, error) {
	return s.verify(ctx, challengeID, response, domain.PurposeLogin)
}

func (s *Service) verify(ctx context.Context, challengeID, response string, purpose domain.Purpose) (*domain.Challenge, error) {
	if challengeID == "" {
		return nil, autherr.ErrChallengeExpired
	}
	c, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.Purpose != purpose {
		return nil, autherr.ErrChallengeExpired
	}
	now := s.now().UTC()
	outcome, remaining, err := s.challenges.Consume(ctx, challengeID, now)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case challenge.NotFound, challenge.Expired:
		return c, autherr.ErrChallengeExpired
	case challenge.Exhausted:
		return c, autherr.ErrChallengeAttemptsExhausted
	}
	c.Attempts = c.MaxAttempts - remaining

	ok, err := s.check(ctx, c, strings.TrimSpace(response), now)
	if err != nil {
		return c, err
	}
	if !ok {
		if remaining == 0 {
			c.State = domain.ChallengeFailed
			if err := s.challenges.Fail(ctx, challengeID); err != nil {
				s.logger.Warn("mark challenge failed", zap.String("challenge_id", challengeID), zap.Error(err))
			}
		}
		return c, autherr.InvalidResponse(remaining)
	}
	won, err := s.challenges.Complete(ctx, challengeID)
	if err != nil {
		return c, err
	}
	if !won {
		return c, autherr.ErrChallengeExpired
	}
	c.State = domain.ChallengeVerified
	return c, nil
}

// check evaluates response against the challenge's factor.
func (s *Service) check(ctx context.Context, c *domain.Challenge, response string, now time.Time) (bool, error) {
	switch c.FactorType {
	case domain.FactorSMSOTP, domain.FactorEmailOTP:
		return OTPEqual(response, c.CodeHash), nil
	case domain.FactorTOTP:
		e, err := s.enrollmentFor(ctx, c)
		if err != nil || e == nil {
			return false, err
		}
		valid, err := totp.ValidateCustom(response, e.Secret, now, totpOpts)
		if err != nil || !valid {
			return false, nil
		}
		// A code is accepted once per enrollment across its whole validity window.
		return s.challenges.MarkCodeUsed(ctx, e.ID, response, time.Duration(totpPeriod*(2*totpSkew+1))*time.Second)
	case domain.FactorRecoveryCodes:
		e, err := s.enrollmentFor(ctx, c)
		if err != nil || e == nil {
			return false, err
		}
		return s.enrollments.ConsumeRecoveryCode(ctx, e.ID, HashRecoveryCode(response), now)
	}
	return false, nil
}

// enrollmentFor loads the challenge's enrollment if it may still answer the challenge: active for
// login, pending for enrollment confirmation.
func (s *Service) enrollmentFor(ctx context.Context, c *domain.Challenge) (*domain.Enrollment, error) {
	e, err := s.enrollments.Get(ctx, c.EnrollmentID)
	if err != nil || e == nil {
		return nil, err
	}
	want := domain.EnrollmentActive
	if c.Purpose == domain.PurposeEnroll {
		want = domain.EnrollmentPending
	}
	if e.Status != want || e.PrincipalID != c.PrincipalID {
		return nil, nil
	}
	return e, nil
}

// Enroll creates a pending enrollment. TOTP and delivered factors must be confirmed with a code
// through Confirm; delivered factors get that code sent now. Recovery code sets are active at once.
func (s *Service) Enroll(ctx context.Context, principalID string, factor domain.FactorType, destination string) (*EnrollResult, error) {
	destination = strings.TrimSpace(destination)
	if !factor.Valid() || (factor.Delivered() && destination == "") {
		return nil, domain.ErrInvalidFactor
	}
	now := s.now().UTC()
	e := &domain.Enrollment{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		FactorType:  factor,
		Destination: destination,
		Status:      domain.EnrollmentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res := &EnrollResult{Enrollment: e}

	switch factor {
	case domain.FactorTOTP:
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      s.cfg.TOTPIssuer,
			AccountName: principalID,
			Period:      totpPeriod,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			return nil, errors.Wrap(err, "generate totp key")
		}
		e.Secret = key.Secret()
		res.ProvisioningURI = key.URL()
	case domain.FactorRecoveryCodes:
		codes, err := GenerateRecoveryCodes(s.cfg.RecoveryCodeCount)
		if err != nil {
			return nil, errors.Wrap(err, "generate recovery codes")
		}
		hashes := make([]string, len(codes))
		for i, code := range codes {
			hashes[i] = HashRecoveryCode(code)
		}
		e.Secret = strings.Join(hashes, ",")
		res.RecoveryCodes = codes
	}

	if err := s.enrollments.Create(ctx, e); err != nil {
		return nil, err
	}

	if factor == domain.FactorRecoveryCodes {
		if _, err := s.enrollments.Activate(ctx, e.ID, now); err != nil {
			return nil, err
		}
		e.Status = domain.EnrollmentActive
		return res, nil
	}
	c, err := s.start(ctx, e, domain.PurposeEnroll, e.ID)
	if err != nil {
		return nil, err
	}
	res.ChallengeID = c.ID
	res.ExpiresAt = c.ExpiresAt
	return res, nil
}

// Confirm activates a pending enrollment of principalID once code answers its confirmation
// challenge. Challenge errors are the same as Verify's.
func (s *Service) Confirm(ctx context.Context, principalID, enrollmentID, code string) (*domain.Enrollment, error) {
	e, err := s.enrollments.Get(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if e == nil || e.PrincipalID != principalID || e.Status != domain.EnrollmentPending {
		return nil, domain.ErrEnrollmentNotFound
	}
	if _, err := s.verify(ctx, enrollmentID, code, domain.PurposeEnroll); err != nil {
		return nil, err
	}
	ok, err := s.enrollments.Activate(ctx, enrollmentID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrEnrollmentNotFound
	}
	return s.enrollments.Get(ctx, enrollmentID)
}

// Revoke revokes the principal's enrollment.
func (s *Service) Revoke(ctx context.Context, principalID, enrollmentID string) error {
	ok, err := s.enrollments.Revoke(ctx, principalID, enrollmentID, s.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrEnrollmentNotFound
	}
	return nil
}

// List returns the principal's live enrollments.
func (s *Service) List(ctx context.Context, principalID string) ([]*domain.Enrollment, error) {
	return s.enrollments.ListByPrincipal(ctx, principalID)
}
