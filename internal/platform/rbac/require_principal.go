// Package rbac holds the caller checks that handlers run after the auth interceptor has
// resolved the bearer token.
package rbac

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"identity-core/internal/server/interceptors"
)

// RequirePrincipal ensures the caller presented a valid access token.
// Returns the caller's principal id, or an Unauthenticated gRPC error.
func RequirePrincipal(ctx context.Context) (string, error) {
	principalID, ok := interceptors.GetPrincipalID(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "access token required")
	}
	return principalID, nil
}

// RequireSelf ensures the caller is authenticated as principalID. An empty principalID means the
// caller's own principal. Returns (Unauthenticated or PermissionDenied) on failure.
func RequireSelf(ctx context.Context, principalID string) (string, error) {
	caller, err := RequirePrincipal(ctx)
	if err != nil {
		return "", err
	}
	if principalID != "" && principalID != caller {
		return "", status.Error(codes.PermissionDenied, "access token does not belong to this principal")
	}
	return caller, nil
}
