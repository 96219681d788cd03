package rbac

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"identity-core/internal/server/interceptors"
)

func TestRequireSelf(t *testing.T) {
	authed := interceptors.WithIdentity(context.Background(), "alice@bank.test", "family-1")

	testCases := []struct {
		name      string
		ctx       context.Context
		principal string
		wantCode  codes.Code
	}{
		{"own principal", authed, "alice@bank.test", codes.OK},
		{"implicit self", authed, "", codes.OK},
		{"other principal", authed, "bob@bank.test", codes.PermissionDenied},
		{"no token", context.Background(), "alice@bank.test", codes.Unauthenticated},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RequireSelf(tc.ctx, tc.principal)
			if code := status.Code(err); code != tc.wantCode {
				t.Fatalf("code = %v, want %v (err %v)", code, tc.wantCode, err)
			}
			if tc.wantCode == codes.OK && got != "alice@bank.test" {
				t.Errorf("principal = %q, want alice@bank.test", got)
			}
		})
	}
}

func TestRequireOperator(t *testing.T) {
	ops := ParseOperators(" Ops@Bank.test, ,security@bank.test")
	if len(ops) != 2 {
		t.Fatalf("len(ops) = %d, want 2", len(ops))
	}

	ctx := interceptors.WithIdentity(context.Background(), "ops@bank.test", "family-1")
	caller, err := RequireOperator(ctx, ops)
	if err != nil {
		t.Fatalf("RequireOperator: %v", err)
	}
	if caller != "ops@bank.test" {
		t.Errorf("caller = %q, want ops@bank.test", caller)
	}

	ctx = interceptors.WithIdentity(context.Background(), "alice@bank.test", "family-2")
	if _, err := RequireOperator(ctx, ops); status.Code(err) != codes.PermissionDenied {
		t.Errorf("non-operator: code = %v, want PermissionDenied", status.Code(err))
	}
	if _, err := RequireOperator(context.Background(), ops); status.Code(err) != codes.Unauthenticated {
		t.Errorf("anonymous: code = %v, want Unauthenticated", status.Code(err))
	}
}
