// Package authv1 holds the identity.auth.v1 wire messages, service descriptors, and clients.
// Messages travel as JSON over gRPC (content subtype CodecName).
package authv1

import "time"

// TokenPair is an access token and the refresh token of the same session family.
type TokenPair struct {
	PrincipalId      string    `json:"principal_id"`
	FamilyId         string    `json:"family_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Challenge is returned by Login instead of tokens when a second factor is required.
type Challenge struct {
	ChallengeId string    `json:"challenge_id"`
	Factor      string    `json:"factor"`
	ExpiresAt   time.Time `json:"expires_at"`
	MaxAttempts int32     `json:"max_attempts"`
}

// Factor describes one MFA enrollment.
type Factor struct {
	EnrollmentId string    `json:"enrollment_id"`
	FactorType   string    `json:"factor_type"`
	Status       string    `json:"status"`
	IsPrimary    bool      `json:"is_primary"`
	Destination  string    `json:"destination,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type LoginRequest struct {
	PrincipalId string `json:"principal_id"`
	Secret      string `json:"secret"`
}

func (x *LoginRequest) GetPrincipalId() string {
	if x != nil {
		return x.PrincipalId
	}
	return ""
}

func (x *LoginRequest) GetSecret() string {
	if x != nil {
		return x.Secret
	}
	return ""
}

// LoginResponse carries exactly one of Tokens or Challenge.
type LoginResponse struct {
	Tokens    *TokenPair `json:"tokens,omitempty"`
	Challenge *Challenge `json:"challenge,omitempty"`
}

type VerifyChallengeRequest struct {
	ChallengeId string `json:"challenge_id"`
	Response    string `json:"response"`
}

func (x *VerifyChallengeRequest) GetChallengeId() string {
	if x != nil {
		return x.ChallengeId
	}
	return ""
}

func (x *VerifyChallengeRequest) GetResponse() string {
	if x != nil {
		return x.Response
	}
	return ""
}

type VerifyChallengeResponse struct {
	Tokens *TokenPair `json:"tokens"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (x *RefreshRequest) GetRefreshToken() string {
	if x != nil {
		return x.RefreshToken
	}
	return ""
}

type RefreshResponse struct {
	Tokens *TokenPair `json:"tokens"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (x *LogoutRequest) GetRefreshToken() string {
	if x != nil {
		return x.RefreshToken
	}
	return ""
}

type LogoutResponse struct{}

type RevokeAllRequest struct {
	PrincipalId string `json:"principal_id"`
}

func (x *RevokeAllRequest) GetPrincipalId() string {
	if x != nil {
		return x.PrincipalId
	}
	return ""
}

type RevokeAllResponse struct{}

type RegisterRequest struct {
	PrincipalId string `json:"principal_id"`
	Secret      string `json:"secret"`
}

func (x *RegisterRequest) GetPrincipalId() string {
	if x != nil {
		return x.PrincipalId
	}
	return ""
}

func (x *RegisterRequest) GetSecret() string {
	if x != nil {
		return x.Secret
	}
	return ""
}

type RegisterResponse struct {
	PrincipalId string `json:"principal_id"`
}

type ChangePasswordRequest struct {
	CurrentSecret string `json:"current_secret"`
	NewSecret     string `json:"new_secret"`
}

func (x *ChangePasswordRequest) GetCurrentSecret() string {
	if x != nil {
		return x.CurrentSecret
	}
	return ""
}

func (x *ChangePasswordRequest) GetNewSecret() string {
	if x != nil {
		return x.NewSecret
	}
	return ""
}

type ChangePasswordResponse struct{}

type EnrollFactorRequest struct {
	FactorType  string `json:"factor_type"`
	Destination string `json:"destination,omitempty"`
}

func (x *EnrollFactorRequest) GetFactorType() string {
	if x != nil {
		return x.FactorType
	}
	return ""
}

func (x *EnrollFactorRequest) GetDestination() string {
	if x != nil {
		return x.Destination
	}
	return ""
}

// EnrollFactorResponse returns the one-time enrollment material. ProvisioningUri is set for totp and
// RecoveryCodes for recovery_codes; neither can be fetched again.
type EnrollFactorResponse struct {
	Factor          *Factor   `json:"factor"`
	ChallengeId     string    `json:"challenge_id,omitempty"`
	ExpiresAt       time.Time `json:"expires_at,omitempty"`
	ProvisioningUri string    `json:"provisioning_uri,omitempty"`
	RecoveryCodes   []string  `json:"recovery_codes,omitempty"`
}

type ConfirmFactorRequest struct {
	EnrollmentId string `json:"enrollment_id"`
	Code         string `json:"code"`
}

func (x *ConfirmFactorRequest) GetEnrollmentId() string {
	if x != nil {
		return x.EnrollmentId
	}
	return ""
}

func (x *ConfirmFactorRequest) GetCode() string {
	if x != nil {
		return x.Code
	}
	return ""
}

type ConfirmFactorResponse struct {
	Factor *Factor `json:"factor"`
}

type RevokeFactorRequest struct {
	EnrollmentId string `json:"enrollment_id"`
}

func (x *RevokeFactorRequest) GetEnrollmentId() string {
	if x != nil {
		return x.EnrollmentId
	}
	return ""
}

type RevokeFactorResponse struct{}

type ListFactorsRequest struct{}

type ListFactorsResponse struct {
	Factors []*Factor `json:"factors"`
}

type SetAccountStatusRequest struct {
	PrincipalId string `json:"principal_id"`
	Status      string `json:"status"`
}

func (x *SetAccountStatusRequest) GetPrincipalId() string {
	if x != nil {
		return x.PrincipalId
	}
	return ""
}

func (x *SetAccountStatusRequest) GetStatus() string {
	if x != nil {
		return x.Status
	}
	return ""
}

type SetAccountStatusResponse struct{}

type GetOTPRequest struct {
	ChallengeId string `json:"challenge_id"`
}

func (x *GetOTPRequest) GetChallengeId() string {
	if x != nil {
		return x.ChallengeId
	}
	return ""
}

type GetOTPResponse struct {
	Otp  string `json:"otp"`
	Note string `json:"note"`
}
