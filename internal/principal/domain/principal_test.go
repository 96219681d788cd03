package domain

import (
	"testing"
	"time"
)

func TestPrincipal_IsLocked(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	cases := []struct {
		name string
		p    Principal
		want bool
	}{
		{"active", Principal{Status: StatusActive}, false},
		{"disabled", Principal{Status: StatusDisabled}, false},
		{"admin lock", Principal{Status: StatusLocked}, true},
		{"timed lock live", Principal{Status: StatusLocked, LockedUntil: &future}, true},
		{"timed lock expired", Principal{Status: StatusLocked, LockedUntil: &past}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.IsLocked(now); got != tc.want {
				t.Errorf("IsLocked = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPrincipal_Validate(t *testing.T) {
	p := &Principal{ID: "alice", SecretHash: "h"}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.Status != StatusActive {
		t.Errorf("Status = %q, want active default", p.Status)
	}
	if err := (&Principal{SecretHash: "h"}).Validate(); err == nil {
		t.Error("missing id should fail")
	}
	if err := (&Principal{ID: "a"}).Validate(); err == nil {
		t.Error("missing hash should fail")
	}
	if err := (&Principal{ID: "a", SecretHash: "h", Status: "frozen"}).Validate(); err == nil {
		t.Error("unknown status should fail")
	}
}

func TestNormalizeID(t *testing.T) {
	if got := NormalizeID("  Alice@Bank.Example "); got != "alice@bank.example" {
		t.Errorf("NormalizeID = %q", got)
	}
}
