package domain

import (
	"time"

	"github.com/cockroachdb/errors"
)

// FactorType is the closed set of second factors a principal can enroll.
type FactorType string

const (
	FactorTOTP          FactorType = "totp"
	FactorSMSOTP        FactorType = "sms_otp"
	FactorEmailOTP      FactorType = "email_otp"
	FactorRecoveryCodes FactorType = "recovery_codes"
)

// Valid reports whether f is one of the known factor types.
func (f FactorType) Valid() bool {
	switch f {
	case FactorTOTP, FactorSMSOTP, FactorEmailOTP, FactorRecoveryCodes:
		return true
	}
	return false
}

// Delivered reports whether codes for f are sent to the principal through a channel.
func (f FactorType) Delivered() bool {
	return f == FactorSMSOTP || f == FactorEmailOTP
}

// EnrollmentStatus is the lifecycle state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentPending EnrollmentStatus = "pending"
	EnrollmentActive  EnrollmentStatus = "active"
	EnrollmentRevoked EnrollmentStatus = "revoked"
)

var (
	// ErrEnrollmentExists is returned when the principal already holds a non-revoked enrollment of the factor type.
	ErrEnrollmentExists = errors.New("factor already enrolled")
	// ErrEnrollmentNotFound is returned when an enrollment does not exist or belongs to another principal.
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	// ErrInvalidFactor is returned for an unknown factor type or a missing delivery destination.
	ErrInvalidFactor = errors.New("invalid factor")
)

// Enrollment binds one factor to a principal. Secret holds the TOTP seed for totp enrollments
// and the comma-separated hashes of unused codes for recovery code sets; it is empty otherwise.
// Destination is the phone number or email address for delivered factors.
type Enrollment struct {
	ID          string
	PrincipalID string
	FactorType  FactorType
	Secret      string
	Destination string
	Status      EnrollmentStatus
	IsPrimary   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Active reports whether the enrollment gates login.
func (e *Enrollment) Active() bool {
	return e.Status == EnrollmentActive
}
