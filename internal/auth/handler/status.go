package handler

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
	"google.golang.org/protobuf/types/known/durationpb"

	"identity-core/internal/auth/service"
	"identity-core/internal/autherr"
	mfadomain "identity-core/internal/mfa/domain"
	principaldomain "identity-core/internal/principal/domain"
)

// ErrorDomain is the ErrorInfo domain attached to every taxonomy error.
const ErrorDomain = "identity.auth.v1"

var kindCodes = map[autherr.Kind]codes.Code{
	autherr.KindInvalidCredentials:         codes.Unauthenticated,
	autherr.KindAccountLocked:              codes.PermissionDenied,
	autherr.KindChallengeExpired:           codes.FailedPrecondition,
	autherr.KindChallengeAttemptsExhausted: codes.FailedPrecondition,
	autherr.KindChallengeInvalidResponse:   codes.Unauthenticated,
	autherr.KindTokenExpired:               codes.Unauthenticated,
	autherr.KindTokenRevoked:               codes.Unauthenticated,
	autherr.KindTokenReuseDetected:         codes.Unauthenticated,
	autherr.KindRateLimited:                codes.ResourceExhausted,
	autherr.KindStoreUnavailable:           codes.Unavailable,
}

// toStatus converts an orchestrator error to a gRPC status error. Taxonomy errors carry an
// ErrorInfo whose reason is the upper-cased kind; rate limits add RetryInfo.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if kind := autherr.KindOf(err); kind != autherr.KindUnknown {
		return taxonomyStatus(kind, err)
	}
	switch {
	case errors.Is(err, service.ErrInvalidPrincipalID),
		errors.Is(err, service.ErrWeakSecret),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, mfadomain.ErrInvalidFactor):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, principaldomain.ErrPrincipalExists), errors.Is(err, mfadomain.ErrEnrollmentExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, service.ErrPrincipalNotFound), errors.Is(err, mfadomain.ErrEnrollmentNotFound):
		return status.Error(codes.NotFound, err.Error())
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, "internal error")
}

func taxonomyStatus(kind autherr.Kind, err error) error {
	info := &errdetails.ErrorInfo{
		Reason: strings.ToUpper(string(kind)),
		Domain: ErrorDomain,
	}
	details := []protoadapt.MessageV1{info}
	if n, ok := autherr.RemainingAttempts(err); ok {
		info.Metadata = map[string]string{"remaining_attempts": strconv.Itoa(n)}
	}
	if d, ok := autherr.RetryAfter(err); ok {
		details = append(details, &errdetails.RetryInfo{RetryDelay: durationpb.New(d)})
	}
	st := status.New(kindCodes[kind], err.Error())
	if withDetails, derr := st.WithDetails(details...); derr == nil {
		st = withDetails
	}
	return st.Err()
}
