// Package handler exposes the auth orchestrator as identity.auth.v1.AuthService.
package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authv1 "identity-core/api/auth/v1"
	"identity-core/internal/auth/service"
	"identity-core/internal/logging"
	mfadomain "identity-core/internal/mfa/domain"
	"identity-core/internal/platform/rbac"
	principaldomain "identity-core/internal/principal/domain"
	tokendomain "identity-core/internal/token/domain"
)

// AuthServer implements AuthService on top of the auth orchestrator. The service descriptor and
// message types are in api/auth/v1 (auth_grpc.go, auth.go) and travel with the JSON codec in
// api/auth/v1/codec.go.
type AuthServer struct {
	authv1.UnimplementedAuthServiceServer
	auth      *service.Service
	operators rbac.Operators
	logger    *zap.Logger
}

// NewAuthServer returns a new Auth gRPC server. If auth is nil, every RPC returns Unimplemented.
// operators may change other principals' account status.
func NewAuthServer(auth *service.Service, operators rbac.Operators, logger *zap.Logger) *AuthServer {
	return &AuthServer{auth: auth, operators: operators, logger: logging.OrNop(logger).Named("auth.handler")}
}

func (s *AuthServer) ready() error {
	if s.auth == nil {
		return status.Error(codes.Unimplemented, "auth service not configured")
	}
	return nil
}

// Login authenticates a principal and returns tokens, or a challenge when MFA is required.
func (s *AuthServer) Login(ctx context.Context, req *authv1.LoginRequest) (*authv1.LoginResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	res, err := s.auth.Login(ctx, req.GetPrincipalId(), req.GetSecret())
	if err != nil {
		return nil, toStatus(err)
	}
	if res.Challenge != nil {
		return &authv1.LoginResponse{Challenge: &authv1.Challenge{
			ChallengeId: res.Challenge.ID,
			Factor:      string(res.Challenge.Factor),
			ExpiresAt:   res.Challenge.ExpiresAt,
			MaxAttempts: int32(res.Challenge.MaxAttempts),
		}}, nil
	}
	return &authv1.LoginResponse{Tokens: pairToProto(res.Tokens)}, nil
}

// VerifyChallenge answers an MFA challenge and completes the login.
func (s *AuthServer) VerifyChallenge(ctx context.Context, req *authv1.VerifyChallengeRequest) (*authv1.VerifyChallengeResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	pair, err := s.auth.VerifyChallenge(ctx, req.GetChallengeId(), req.GetResponse())
	if err != nil {
		return nil, toStatus(err)
	}
	return &authv1.VerifyChallengeResponse{Tokens: pairToProto(pair)}, nil
}

// Refresh rotates a refresh token.
func (s *AuthServer) Refresh(ctx context.Context, req *authv1.RefreshRequest) (*authv1.RefreshResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	pair, err := s.auth.Refresh(ctx, req.GetRefreshToken())
	if err != nil {
		return nil, toStatus(err)
	}
	return &authv1.RefreshResponse{Tokens: pairToProto(pair)}, nil
}

// Logout revokes the session family of the refresh token.
func (s *AuthServer) Logout(ctx context.Context, req *authv1.LogoutRequest) (*authv1.LogoutResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.auth.Logout(ctx, req.GetRefreshToken()); err != nil {
		return nil, toStatus(err)
	}
	return &authv1.LogoutResponse{}, nil
}

// RevokeAll revokes every session of the caller. The bearer must belong to the named principal.
func (s *AuthServer) RevokeAll(ctx context.Context, req *authv1.RevokeAllRequest) (*authv1.RevokeAllResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	caller, err := rbac.RequireSelf(ctx, principaldomain.NormalizeID(req.GetPrincipalId()))
	if err != nil {
		return nil, err
	}
	if err := s.auth.RevokeAll(ctx, caller); err != nil {
		return nil, toStatus(err)
	}
	return &authv1.RevokeAllResponse{}, nil
}

// Register creates a principal.
func (s *AuthServer) Register(ctx context.Context, req *authv1.RegisterRequest) (*authv1.RegisterResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	id, err := s.auth.Register(ctx, req.GetPrincipalId(), req.GetSecret())
	if err != nil {
		return nil, toStatus(err)
	}
	return &authv1.RegisterResponse{PrincipalId: id}, nil
}

// ChangePassword replaces the caller's secret and ends all of the caller's sessions.
func (s *AuthServer) ChangePassword(ctx context.Context, req *authv1.ChangePasswordRequest) (*authv1.ChangePasswordResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	caller, err := rbac.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.auth.ChangePassword(ctx, caller, req.GetCurrentSecret(), req.GetNewSecret()); err != nil {
		return nil, toStatus(err)
	}
	return &authv1.ChangePasswordResponse{}, nil
}

// EnrollFactor starts enrolling a factor for the caller.
func (s *AuthServer) EnrollFactor(ctx context.Context, req *authv1.EnrollFactorRequest) (*authv1.EnrollFactorResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	caller, err := rbac.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.auth.EnrollFactor(ctx, caller, mfadomain.FactorType(req.GetFactorType()), req.GetDestination())
	if err != nil {
		return nil, toStatus(err)
	}
	return &authv1.EnrollFactorResponse{
		Factor:          factorToProto(res.Enrollment),
		ChallengeId:     res.ChallengeID,
		ExpiresAt:       res.ExpiresAt,
		ProvisioningUri: res.ProvisioningURI,
		RecoveryCodes:   res.RecoveryCodes,
	}, nil
}

// ConfirmFactor activates one of the caller's pending enrollments.
func (s *AuthServer) ConfirmFactor(ctx context.Context, req *authv1.ConfirmFactorRequest) (*authv1.ConfirmFactorResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	caller, err := rbac.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	e, err := s.auth.ConfirmFactor(ctx, caller, req.GetEnrollmentId(), req.GetCode())
	if err != nil {
		return nil, toStatus(err)
	}
	return &authv1.ConfirmFactorResponse{Factor: factorToProto(e)}, nil
}

// RevokeFactor revokes one of the caller's enrollments.
func (s *AuthServer) RevokeFactor(ctx context.Context, req *authv1.RevokeFactorRequest) (*authv1.RevokeFactorResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	caller, err := rbac.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.auth.RevokeFactor(ctx, caller, req.GetEnrollmentId()); err != nil {
		return nil, toStatus(err)
	}
	return &authv1.RevokeFactorResponse{}, nil
}

// ListFactors lists the caller's enrollments.
func (s *AuthServer) ListFactors(ctx context.Context, _ *authv1.ListFactorsRequest) (*authv1.ListFactorsResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	caller, err := rbac.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.auth.ListFactors(ctx, caller)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]*authv1.Factor, 0, len(list))
	for _, e := range list {
		out = append(out, factorToProto(e))
	}
	return &authv1.ListFactorsResponse{Factors: out}, nil
}

// SetAccountStatus locks, disables, or reactivates a principal. Operators only.
func (s *AuthServer) SetAccountStatus(ctx context.Context, req *authv1.SetAccountStatusRequest) (*authv1.SetAccountStatusResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	operator, err := rbac.RequireOperator(ctx, s.operators)
	if err != nil {
		return nil, err
	}
	target := req.GetPrincipalId()
	st := principaldomain.Status(req.GetStatus())
	if err := s.auth.SetAccountStatus(ctx, target, st); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info("account status changed",
		zap.String("operator", operator), zap.String("principal_id", principaldomain.NormalizeID(target)), zap.String("status", string(st)))
	return &authv1.SetAccountStatusResponse{}, nil
}

func pairToProto(p *tokendomain.Pair) *authv1.TokenPair {
	if p == nil {
		return nil
	}
	return &authv1.TokenPair{
		PrincipalId:      p.PrincipalID,
		FamilyId:         p.FamilyID,
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func factorToProto(e *mfadomain.Enrollment) *authv1.Factor {
	if e == nil {
		return nil
	}
	return &authv1.Factor{
		EnrollmentId: e.ID,
		FactorType:   string(e.FactorType),
		Status:       string(e.Status),
		IsPrimary:    e.IsPrimary,
		Destination:  e.Destination,
		CreatedAt:    e.CreatedAt,
	}
}
