package rbac

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Operators is the set of principals allowed to change other principals' account status.
type Operators map[string]struct{}

// ParseOperators builds an Operators set from a comma-separated list of principal ids.
func ParseOperators(list string) Operators {
	ops := Operators{}
	for _, id := range strings.Split(list, ",") {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			ops[id] = struct{}{}
		}
	}
	return ops
}

// Contains reports whether principalID is an operator.
func (o Operators) Contains(principalID string) bool {
	_, ok := o[principalID]
	return ok
}

// RequireOperator ensures the caller is authenticated and listed in ops.
func RequireOperator(ctx context.Context, ops Operators) (string, error) {
	caller, err := RequirePrincipal(ctx)
	if err != nil {
		return "", err
	}
	if !ops.Contains(caller) {
		return "", status.Error(codes.PermissionDenied, "operator role required")
	}
	return caller, nil
}
