package domain

import "time"

// Type names an authentication-relevant occurrence.
type Type string

const (
	TypeLoginSucceeded       Type = "login_succeeded"
	TypeLoginFailed          Type = "login_failed"
	TypeChallengeIssued      Type = "mfa_challenge_issued"
	TypeChallengeVerified    Type = "mfa_challenge_verified"
	TypeChallengeFailed      Type = "mfa_challenge_failed"
	TypeTokenRefreshed       Type = "token_refreshed"
	TypeTokenRefreshFailed   Type = "token_refresh_failed"
	TypeTokenReuseDetected   Type = "token_reuse_detected"
	TypeLogout               Type = "logout"
	TypeLogoutFailed         Type = "logout_failed"
	TypeTokensRevoked        Type = "tokens_revoked"
	TypePrincipalRegistered  Type = "principal_registered"
	TypeRegistrationFailed   Type = "registration_failed"
	TypePasswordChanged      Type = "password_changed"
	TypePasswordChangeFailed Type = "password_change_failed"
	TypeAccountStatusChanged Type = "account_status_changed"
	TypeMFAChanged           Type = "mfa_changed"
	TypeMFAChangeFailed      Type = "mfa_change_failed"
	TypeMFAListFailed        Type = "mfa_list_failed"
)

// Outcome is the result recorded with an event.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is an immutable audit record. PrincipalID is empty when the principal could not be
// determined; Reason carries the error kind for failures.
type Event struct {
	ID          string            `json:"id"`
	Type        Type              `json:"type"`
	PrincipalID string            `json:"principal_id,omitempty"`
	Outcome     Outcome           `json:"outcome"`
	Reason      string            `json:"reason,omitempty"`
	SourceIP    string            `json:"source_ip,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// OrderingKey is the key under which events must stay ordered.
func (e *Event) OrderingKey() string {
	if e.PrincipalID == "" {
		return "_anonymous"
	}
	return e.PrincipalID
}
