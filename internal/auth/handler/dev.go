package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authv1 "identity-core/api/auth/v1"
)

const devOTPNote = "DEV MODE ONLY"

// CodeLookup returns the plaintext one-time code kept for a challenge.
type CodeLookup interface {
	Get(challengeID string) (string, bool)
}

// DevServer implements DevService. Only registered when dev OTP is enabled and not production.
type DevServer struct {
	codes CodeLookup
}

// NewDevServer returns a DevService server that reads codes from store.
func NewDevServer(store CodeLookup) *DevServer {
	return &DevServer{codes: store}
}

// GetOTP returns the plain code for the given challenge_id. Returns NotFound if missing or expired.
func (s *DevServer) GetOTP(_ context.Context, req *authv1.GetOTPRequest) (*authv1.GetOTPResponse, error) {
	challengeID := req.GetChallengeId()
	if challengeID == "" {
		return nil, status.Error(codes.InvalidArgument, "challenge_id is required")
	}
	otp, ok := s.codes.Get(challengeID)
	if !ok {
		return nil, status.Error(codes.NotFound, "OTP not found or expired")
	}
	return &authv1.GetOTPResponse{Otp: otp, Note: devOTPNote}, nil
}
