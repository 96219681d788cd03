// Package service is the token engine: it issues access/refresh pairs, rotates refresh tokens
// exactly once, and revokes whole families when a rotated or revoked token is presented again.
package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"identity-core/internal/autherr"
	"identity-core/internal/logging"
	"identity-core/internal/security"
	"identity-core/internal/token/domain"
	"identity-core/internal/token/repository"
)

// RefreshResult is a successful rotation.
type RefreshResult struct {
	Pair *domain.Pair
	// Generation is the rotation count of the new refresh token.
	Generation int
}

// Engine issues, rotates and revokes token pairs.
type Engine struct {
	repo     repository.Repository
	denylist repository.Denylist
	tokens   *security.TokenProvider
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine returns an Engine. denylist may be nil, in which case revocation only affects refresh.
func NewEngine(repo repository.Repository, denylist repository.Denylist, tokens *security.TokenProvider, logger *zap.Logger) *Engine {
	return &Engine{
		repo:     repo,
		denylist: denylist,
		tokens:   tokens,
		logger:   logging.OrNop(logger).Named("token"),
		now:      time.Now,
	}
}

// SetClock overrides the engine's clock. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.tokens = e.tokens.WithClock(now)
}

// Issue starts a new token family for principalID and returns its first pair.
func (e *Engine) Issue(ctx context.Context, principalID string) (*domain.Pair, error) {
	rec := &domain.RefreshToken{
		ID:          uuid.NewString(),
		FamilyID:    uuid.NewString(),
		PrincipalID: principalID,
		Status:      domain.StatusActive,
	}
	refresh, err := e.mint(rec)
	if err != nil {
		return nil, err
	}
	if err := e.repo.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return e.pair(rec, refresh)
}

// mint signs a refresh JWT for rec and fills in its hash and times.
func (e *Engine) mint(rec *domain.RefreshToken) (string, error) {
	refresh, exp, err := e.tokens.IssueRefresh(rec.PrincipalID, rec.FamilyID, rec.ID, rec.Generation)
	if err != nil {
		return "", err
	}
	rec.TokenHash = security.HashToken(refresh)
	rec.IssuedAt = exp.Add(-e.tokens.RefreshTTL())
	rec.ExpiresAt = exp
	return refresh, nil
}

func (e *Engine) pair(rec *domain.RefreshToken, refresh string) (*domain.Pair, error) {
	access, _, accessExp, err := e.tokens.IssueAccess(rec.PrincipalID, rec.FamilyID)
	if err != nil {
		return nil, err
	}
	return &domain.Pair{
		PrincipalID:      rec.PrincipalID,
		FamilyID:         rec.FamilyID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// Refresh rotates refreshToken into a new pair. Errors are autherr.ErrTokenExpired,
// autherr.ErrTokenRevoked, autherr.ErrTokenReuseDetected (the family has been revoked), or a
// store fault. The principal id is returned whenever it could be determined, for auditing.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, string, error) {
	claims, err := e.tokens.ParseRefresh(refreshToken)
	if errors.Is(err, security.ErrExpiredToken) {
		if merr := e.repo.MarkExpired(ctx, claims.ID, e.now()); merr != nil {
			e.logger.Warn("mark expired failed", zap.String("token_id", claims.ID), zap.Error(merr))
		}
		return nil, claims.Subject, autherr.ErrTokenExpired
	}
	if err != nil {
		return nil, "", autherr.ErrTokenRevoked
	}

	rec, err := e.repo.Get(ctx, claims.ID)
	if err != nil {
		return nil, claims.Subject, err
	}
	if rec == nil || rec.FamilyID != claims.FamilyID || !security.TokenHashEqual(refreshToken, rec.TokenHash) {
		return nil, claims.Subject, autherr.ErrTokenRevoked
	}

	now := e.now()
	if rec.Usable(now) {
		next := &domain.RefreshToken{
			ID:          uuid.NewString(),
			FamilyID:    rec.FamilyID,
			PrincipalID: rec.PrincipalID,
			ParentID:    rec.ID,
			Generation:  rec.Generation + 1,
			Status:      domain.StatusActive,
		}
		refresh, err := e.mint(next)
		if err != nil {
			return nil, rec.PrincipalID, err
		}
		ok, err := e.repo.Rotate(ctx, rec.ID, rec.TokenHash, next, now)
		if err != nil {
			return nil, rec.PrincipalID, err
		}
		if ok {
			pair, err := e.pair(next, refresh)
			if err != nil {
				return nil, rec.PrincipalID, err
			}
			return &RefreshResult{Pair: pair, Generation: next.Generation}, rec.PrincipalID, nil
		}
		// Lost the compare-and-set; classify against the current state.
		if rec, err = e.repo.Get(ctx, claims.ID); err != nil {
			return nil, claims.Subject, err
		}
		if rec == nil {
			return nil, claims.Subject, autherr.ErrTokenRevoked
		}
	}
	return nil, rec.PrincipalID, e.deny(ctx, rec, now)
}

// deny classifies an unusable record and applies family revocation where the record signals reuse.
func (e *Engine) deny(ctx context.Context, rec *domain.RefreshToken, now time.Time) error {
	switch rec.Status {
	case domain.StatusRotated:
		if err := e.revokeFamily(ctx, rec.FamilyID, now); err != nil {
			return err
		}
		e.logger.Warn("refresh token reuse detected; family revoked",
			zap.String("principal_id", rec.PrincipalID), zap.String("family_id", rec.FamilyID),
			zap.Int("generation", rec.Generation))
		return autherr.ErrTokenReuseDetected
	case domain.StatusRevoked:
		if err := e.revokeFamily(ctx, rec.FamilyID, now); err != nil {
			return err
		}
		return autherr.ErrTokenRevoked
	case domain.StatusActive, domain.StatusExpired:
		if !now.Before(rec.ExpiresAt) {
			if err := e.repo.MarkExpired(ctx, rec.ID, now); err != nil {
				return err
			}
			return autherr.ErrTokenExpired
		}
	}
	return autherr.ErrTokenRevoked
}

// Revoke ends the session family that refreshToken belongs to (logout). Expired tokens are
// accepted so a client can always log out. Returns the principal id.
func (e *Engine) Revoke(ctx context.Context, refreshToken string) (string, error) {
	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil && !errors.Is(err, security.ErrExpiredToken) {
		return "", autherr.ErrTokenRevoked
	}
	rec, err := e.repo.Get(ctx, claims.ID)
	if err != nil {
		return claims.Subject, err
	}
	if rec == nil || !security.TokenHashEqual(refreshToken, rec.TokenHash) {
		return claims.Subject, autherr.ErrTokenRevoked
	}
	if err := e.revokeFamily(ctx, rec.FamilyID, e.now()); err != nil {
		return rec.PrincipalID, err
	}
	return rec.PrincipalID, nil
}

// RevokeAll revokes every active family of principalID and returns the family ids affected.
func (e *Engine) RevokeAll(ctx context.Context, principalID string) ([]string, error) {
	families, err := e.repo.RevokeByPrincipal(ctx, principalID, e.now())
	if err != nil {
		return nil, err
	}
	e.denyFamilies(ctx, families...)
	return families, nil
}

func (e *Engine) revokeFamily(ctx context.Context, familyID string, now time.Time) error {
	if _, err := e.repo.RevokeFamily(ctx, familyID, now); err != nil {
		return err
	}
	e.denyFamilies(ctx, familyID)
	return nil
}

// denyFamilies adds families to the denylist. Failure is logged: refresh is already blocked by the
// store, and access tokens lapse within one access TTL.
func (e *Engine) denyFamilies(ctx context.Context, familyIDs ...string) {
	if e.denylist == nil || len(familyIDs) == 0 {
		return
	}
	if err := e.denylist.Add(ctx, e.tokens.AccessTTL(), familyIDs...); err != nil {
		e.logger.Warn("denylist update failed", zap.Strings("family_ids", familyIDs), zap.Error(err))
	}
}

// VerifyAccess checks an access token's signature, expiry, issuer and audience. Pure computation.
func (e *Engine) VerifyAccess(accessToken string) (*security.AccessClaims, error) {
	claims, err := e.tokens.ValidateAccess(accessToken)
	if errors.Is(err, security.ErrExpiredToken) {
		return nil, autherr.ErrTokenExpired
	}
	if err != nil {
		return nil, autherr.ErrTokenRevoked
	}
	return claims, nil
}

// FamilyRevoked consults the denylist. An unreadable denylist reports false.
func (e *Engine) FamilyRevoked(ctx context.Context, familyID string) bool {
	if e.denylist == nil || familyID == "" {
		return false
	}
	ok, err := e.denylist.Contains(ctx, familyID)
	if err != nil {
		e.logger.Warn("denylist unreadable; allowing", zap.Error(err))
		return false
	}
	return ok
}
