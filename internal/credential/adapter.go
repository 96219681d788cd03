// Package credential verifies presented secrets against stored principals and records the
// outcome. Each store call runs under its own deadline; a call that times out is retried once
// before the adapter reports the store as unavailable.
package credential

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"identity-core/internal/autherr"
	"identity-core/internal/logging"
	"identity-core/internal/principal/domain"
	"identity-core/internal/principal/repository"
	"identity-core/internal/security"
)

// DefaultTimeout bounds a single store call when none is configured.
const DefaultTimeout = 2 * time.Second

// retryDelay separates the first timed-out attempt from its single retry.
const retryDelay = 50 * time.Millisecond

// Verification is the result of VerifyCredential. Principal is nil when the id is unknown;
// callers must not reveal that distinction.
type Verification struct {
	Match     bool
	Principal *domain.Principal
}

// Adapter wraps the principal repository with hashing, lockout policy, and bounded retries.
type Adapter struct {
	repo    repository.Repository
	hasher  *security.Hasher
	policy  domain.LockoutPolicy
	timeout time.Duration
	logger  *zap.Logger
}

// NewAdapter returns an Adapter. timeout <= 0 uses DefaultTimeout.
func NewAdapter(repo repository.Repository, hasher *security.Hasher, policy domain.LockoutPolicy, timeout time.Duration, logger *zap.Logger) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{
		repo:    repo,
		hasher:  hasher,
		policy:  policy,
		timeout: timeout,
		logger:  logging.OrNop(logger).Named("credential"),
	}
}

// Policy returns the lockout policy in force.
func (a *Adapter) Policy() domain.LockoutPolicy { return a.policy }

// VerifyCredential loads the principal and compares secret against its stored hash in constant
// time. An unknown principal still costs one bcrypt comparison. The secret and hash are never logged.
func (a *Adapter) VerifyCredential(ctx context.Context, principalID string, secret []byte) (Verification, error) {
	p, err := call(ctx, a, "get principal", func(ctx context.Context) (*domain.Principal, error) {
		return a.repo.GetByID(ctx, principalID)
	})
	if err != nil {
		return Verification{}, err
	}
	if p == nil {
		_ = a.hasher.CompareDummy(secret)
		return Verification{}, nil
	}
	switch err := a.hasher.Compare(p.SecretHash, secret); {
	case err == nil:
		return Verification{Match: true, Principal: p}, nil
	case errors.Is(err, security.ErrMismatch):
		return Verification{Principal: p}, nil
	default:
		a.logger.Warn("stored credential hash unusable", zap.String("principal_id", p.ID), zap.String("hash_algo", p.HashAlgo), zap.Error(err))
		return Verification{Principal: p}, nil
	}
}

// RecordFailedAttempt counts a failure for principalID and applies the lockout policy.
// Returns nil outcome when the principal does not exist.
func (a *Adapter) RecordFailedAttempt(ctx context.Context, principalID string, now time.Time) (*domain.FailureOutcome, error) {
	out, err := call(ctx, a, "record failure", func(ctx context.Context) (*domain.FailureOutcome, error) {
		return a.repo.RecordFailure(ctx, principalID, now, a.policy)
	})
	if err != nil {
		return nil, err
	}
	if out != nil && out.Locked() && out.Attempts == a.policy.Threshold {
		a.logger.Info("principal locked after repeated failures", zap.String("principal_id", principalID), zap.Int("attempts", out.Attempts))
	}
	return out, nil
}

// RecordSuccess resets the failure counter and stamps the last login.
func (a *Adapter) RecordSuccess(ctx context.Context, principalID string, now time.Time) error {
	_, err := call(ctx, a, "record success", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.repo.RecordSuccess(ctx, principalID, now)
	})
	return err
}

// RehashIfNeeded upgrades p's stored hash when it was produced at a lower cost than configured.
// Failures are logged and swallowed; the login that triggered it has already succeeded.
func (a *Adapter) RehashIfNeeded(ctx context.Context, p *domain.Principal, secret []byte, now time.Time) {
	if p == nil || !a.hasher.NeedsRehash(p.SecretHash) {
		return
	}
	hash, err := a.hasher.Hash(secret)
	if err != nil {
		a.logger.Warn("rehash failed", zap.String("principal_id", p.ID), zap.Error(err))
		return
	}
	_, err = call(ctx, a, "rehash", func(ctx context.Context) (bool, error) {
		return a.repo.UpdateSecretHash(ctx, p.ID, hash, security.AlgoBcrypt, now)
	})
	if err != nil {
		a.logger.Warn("rehash store failed", zap.String("principal_id", p.ID), zap.Error(err))
	}
}

// SetSecret hashes secret and stores it for principalID. Returns false if the principal does not exist.
func (a *Adapter) SetSecret(ctx context.Context, principalID string, secret []byte, now time.Time) (bool, error) {
	hash, err := a.hasher.Hash(secret)
	if err != nil {
		return false, err
	}
	return call(ctx, a, "set secret", func(ctx context.Context) (bool, error) {
		return a.repo.UpdateSecretHash(ctx, principalID, hash, security.AlgoBcrypt, now)
	})
}

// Create hashes secret and inserts a new active principal.
func (a *Adapter) Create(ctx context.Context, principalID string, secret []byte, now time.Time) error {
	hash, err := a.hasher.Hash(secret)
	if err != nil {
		return err
	}
	p := &domain.Principal{
		ID:         principalID,
		SecretHash: hash,
		HashAlgo:   security.AlgoBcrypt,
		Status:     domain.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = call(ctx, a, "create principal", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.repo.Create(ctx, p)
	})
	return err
}

// SetStatus applies an administrative status change. Returns false if the principal does not exist.
func (a *Adapter) SetStatus(ctx context.Context, principalID string, status domain.Status, now time.Time) (bool, error) {
	return call(ctx, a, "set status", func(ctx context.Context) (bool, error) {
		return a.repo.SetStatus(ctx, principalID, status, now)
	})
}

// Get loads a principal without verifying anything. Returns nil if not found.
func (a *Adapter) Get(ctx context.Context, principalID string) (*domain.Principal, error) {
	return call(ctx, a, "get principal", func(ctx context.Context) (*domain.Principal, error) {
		return a.repo.GetByID(ctx, principalID)
	})
}

// call runs op under a per-attempt deadline. A timeout is retried once; any other failure, and a
// second timeout, is returned as autherr.ErrStoreUnavailable with the cause logged. Domain errors
// such as domain.ErrPrincipalExists pass through unchanged.
func call[T any](ctx context.Context, a *Adapter, name string, op func(context.Context) (T, error)) (T, error) {
	attempt := func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		v, err := op(callCtx)
		if err == nil || passThrough(err) {
			return v, backoff.Permanent(err)
		}
		if ctx.Err() == nil && isTimeout(err, callCtx) {
			return v, err
		}
		return v, backoff.Permanent(err)
	}
	v, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewConstantBackOff(retryDelay)),
		backoff.WithMaxTries(2),
	)
	if err == nil {
		return v, nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if passThrough(err) {
		return v, err
	}
	a.logger.Warn("credential store call failed", zap.String("op", name), zap.Error(err))
	var zero T
	return zero, autherr.ErrStoreUnavailable
}

func passThrough(err error) bool {
	return errors.Is(err, domain.ErrPrincipalExists) || autherr.IsTaxonomy(err)
}

func isTimeout(err error, callCtx context.Context) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return true
	}
	return pgconn.Timeout(err)
}
