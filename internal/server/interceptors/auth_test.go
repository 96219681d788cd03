package interceptors

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"identity-core/internal/security"
)

// providerVerifier adapts a TokenProvider and a fixed revoked set to AccessVerifier.
type providerVerifier struct {
	tokens  *security.TokenProvider
	revoked map[string]bool
}

func (v *providerVerifier) VerifyAccess(token string) (*security.AccessClaims, error) {
	return v.tokens.ValidateAccess(token)
}

func (v *providerVerifier) FamilyRevoked(_ context.Context, familyID string) bool {
	return v.revoked[familyID]
}

func newVerifier(t *testing.T) *providerVerifier {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	return &providerVerifier{tokens: tokens, revoked: map[string]bool{}}
}

func bearerCtx(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

// identityHandler returns the principal id the interceptor placed in context, or "anonymous".
func identityHandler(ctx context.Context, _ interface{}) (interface{}, error) {
	if id, ok := GetPrincipalID(ctx); ok {
		fam, _ := GetFamilyID(ctx)
		return id + "/" + fam, nil
	}
	return "anonymous", nil
}

func TestAuthUnary(t *testing.T) {
	v := newVerifier(t)
	token, _, _, err := v.tokens.IssueAccess("alice@bank.test", "family-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	revokedToken, _, _, err := v.tokens.IssueAccess("alice@bank.test", "family-2")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	v.revoked["family-2"] = true

	const public, protected = "/test.Service/Public", "/test.Service/Protected"
	interceptor := AuthUnary(v, map[string]bool{public: true})

	testCases := []struct {
		name     string
		ctx      context.Context
		method   string
		wantCode codes.Code
		wantResp interface{}
	}{
		{"public without token", context.Background(), public, codes.OK, "anonymous"},
		{"public with bad token", bearerCtx("garbage"), public, codes.OK, "anonymous"},
		{"public with valid token", bearerCtx(token), public, codes.OK, "alice@bank.test/family-1"},
		{"protected without token", context.Background(), protected, codes.Unauthenticated, nil},
		{"protected with bad token", bearerCtx("garbage"), protected, codes.Unauthenticated, nil},
		{"protected with valid token", bearerCtx(token), protected, codes.OK, "alice@bank.test/family-1"},
		{"protected with revoked family", bearerCtx(revokedToken), protected, codes.Unauthenticated, nil},
		{"protected with wrong scheme", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic "+token)), protected, codes.Unauthenticated, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := interceptor(tc.ctx, "request", &grpc.UnaryServerInfo{FullMethod: tc.method}, identityHandler)
			if code := status.Code(err); code != tc.wantCode {
				t.Fatalf("code = %v, want %v (err %v)", code, tc.wantCode, err)
			}
			if resp != tc.wantResp {
				t.Errorf("resp = %v, want %v", resp, tc.wantResp)
			}
		})
	}
}

func TestAuthUnary_RefreshTokenIsNotAnAccessToken(t *testing.T) {
	v := newVerifier(t)
	refresh, _, err := v.tokens.IssueRefresh("alice@bank.test", "family-1", "token-1", 0)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	interceptor := AuthUnary(v, nil)
	_, err = interceptor(bearerCtx(refresh), "request", &grpc.UnaryServerInfo{FullMethod: "/test.Service/Protected"}, identityHandler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}
