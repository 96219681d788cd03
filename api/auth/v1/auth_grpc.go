package authv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	AuthService_Login_FullMethodName            = "/identity.auth.v1.AuthService/Login"
	AuthService_VerifyChallenge_FullMethodName  = "/identity.auth.v1.AuthService/VerifyChallenge"
	AuthService_Refresh_FullMethodName          = "/identity.auth.v1.AuthService/Refresh"
	AuthService_Logout_FullMethodName           = "/identity.auth.v1.AuthService/Logout"
	AuthService_RevokeAll_FullMethodName        = "/identity.auth.v1.AuthService/RevokeAll"
	AuthService_Register_FullMethodName         = "/identity.auth.v1.AuthService/Register"
	AuthService_ChangePassword_FullMethodName   = "/identity.auth.v1.AuthService/ChangePassword"
	AuthService_EnrollFactor_FullMethodName     = "/identity.auth.v1.AuthService/EnrollFactor"
	AuthService_ConfirmFactor_FullMethodName    = "/identity.auth.v1.AuthService/ConfirmFactor"
	AuthService_RevokeFactor_FullMethodName     = "/identity.auth.v1.AuthService/RevokeFactor"
	AuthService_ListFactors_FullMethodName      = "/identity.auth.v1.AuthService/ListFactors"
	AuthService_SetAccountStatus_FullMethodName = "/identity.auth.v1.AuthService/SetAccountStatus"

	DevService_GetOTP_FullMethodName = "/identity.auth.v1.DevService/GetOTP"
)

// AuthServiceServer is the server API for AuthService.
type AuthServiceServer interface {
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	VerifyChallenge(context.Context, *VerifyChallengeRequest) (*VerifyChallengeResponse, error)
	Refresh(context.Context, *RefreshRequest) (*RefreshResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
	RevokeAll(context.Context, *RevokeAllRequest) (*RevokeAllResponse, error)
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*ChangePasswordResponse, error)
	EnrollFactor(context.Context, *EnrollFactorRequest) (*EnrollFactorResponse, error)
	ConfirmFactor(context.Context, *ConfirmFactorRequest) (*ConfirmFactorResponse, error)
	RevokeFactor(context.Context, *RevokeFactorRequest) (*RevokeFactorResponse, error)
	ListFactors(context.Context, *ListFactorsRequest) (*ListFactorsResponse, error)
	SetAccountStatus(context.Context, *SetAccountStatusRequest) (*SetAccountStatusResponse, error)
}

// UnimplementedAuthServiceServer returns Unimplemented for every method. Embed it by value.
type UnimplementedAuthServiceServer struct{}

func (UnimplementedAuthServiceServer) Login(context.Context, *LoginRequest) (*LoginResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Login not implemented")
}
func (UnimplementedAuthServiceServer) VerifyChallenge(context.Context, *VerifyChallengeRequest) (*VerifyChallengeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method VerifyChallenge not implemented")
}
func (UnimplementedAuthServiceServer) Refresh(context.Context, *RefreshRequest) (*RefreshResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Refresh not implemented")
}
func (UnimplementedAuthServiceServer) Logout(context.Context, *LogoutRequest) (*LogoutResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Logout not implemented")
}
func (UnimplementedAuthServiceServer) RevokeAll(context.Context, *RevokeAllRequest) (*RevokeAllResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RevokeAll not implemented")
}
func (UnimplementedAuthServiceServer) Register(context.Context, *RegisterRequest) (*RegisterResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Register not implemented")
}
func (UnimplementedAuthServiceServer) ChangePassword(context.Context, *ChangePasswordRequest) (*ChangePasswordResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ChangePassword not implemented")
}
func (UnimplementedAuthServiceServer) EnrollFactor(context.Context, *EnrollFactorRequest) (*EnrollFactorResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method EnrollFactor not implemented")
}
func (UnimplementedAuthServiceServer) ConfirmFactor(context.Context, *ConfirmFactorRequest) (*ConfirmFactorResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ConfirmFactor not implemented")
}
func (UnimplementedAuthServiceServer) RevokeFactor(context.Context, *RevokeFactorRequest) (*RevokeFactorResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RevokeFactor not implemented")
}
func (UnimplementedAuthServiceServer) ListFactors(context.Context, *ListFactorsRequest) (*ListFactorsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListFactors not implemented")
}
func (UnimplementedAuthServiceServer) SetAccountStatus(context.Context, *SetAccountStatusRequest) (*SetAccountStatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SetAccountStatus not implemented")
}

// RegisterAuthServiceServer registers srv on s.
func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&AuthService_ServiceDesc, srv)
}

func authServer(srv any) AuthServiceServer { return srv.(AuthServiceServer) }

// AuthService_ServiceDesc is the grpc.ServiceDesc for AuthService.
var AuthService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "identity.auth.v1.AuthService",
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: unary(AuthService_Login_FullMethodName, func(srv any, ctx context.Context, in *LoginRequest) (*LoginResponse, error) {
			return authServer(srv).Login(ctx, in)
		})},
		{MethodName: "VerifyChallenge", Handler: unary(AuthService_VerifyChallenge_FullMethodName, func(srv any, ctx context.Context, in *VerifyChallengeRequest) (*VerifyChallengeResponse, error) {
			return authServer(srv).VerifyChallenge(ctx, in)
		})},
		{MethodName: "Refresh", Handler: unary(AuthService_Refresh_FullMethodName, func(srv any, ctx context.Context, in *RefreshRequest) (*RefreshResponse, error) {
			return authServer(srv).Refresh(ctx, in)
		})},
		{MethodName: "Logout", Handler: unary(AuthService_Logout_FullMethodName, func(srv any, ctx context.Context, in *LogoutRequest) (*LogoutResponse, error) {
			return authServer(srv).Logout(ctx, in)
		})},
		{MethodName: "RevokeAll", Handler: unary(AuthService_RevokeAll_FullMethodName, func(srv any, ctx context.Context, in *RevokeAllRequest) (*RevokeAllResponse, error) {
			return authServer(srv).RevokeAll(ctx, in)
		})},
		{MethodName: "Register", Handler: unary(AuthService_Register_FullMethodName, func(srv any, ctx context.Context, in *RegisterRequest) (*RegisterResponse, error) {
			return authServer(srv).Register(ctx, in)
		})},
		{MethodName: "ChangePassword", Handler: unary(AuthService_ChangePassword_FullMethodName, func(srv any, ctx context.Context, in *ChangePasswordRequest) (*ChangePasswordResponse, error) {
			return authServer(srv).ChangePassword(ctx, in)
		})},
		{MethodName: "EnrollFactor", Handler: unary(AuthService_EnrollFactor_FullMethodName, func(srv any, ctx context.Context, in *EnrollFactorRequest) (*EnrollFactorResponse, error) {
			return authServer(srv).EnrollFactor(ctx, in)
		})},
		{MethodName: "ConfirmFactor", Handler: unary(AuthService_ConfirmFactor_FullMethodName, func(srv any, ctx context.Context, in *ConfirmFactorRequest) (*ConfirmFactorResponse, error) {
			return authServer(srv).ConfirmFactor(ctx, in)
		})},
		{MethodName: "RevokeFactor", Handler: unary(AuthService_RevokeFactor_FullMethodName, func(srv any, ctx context.Context, in *RevokeFactorRequest) (*RevokeFactorResponse, error) {
			return authServer(srv).RevokeFactor(ctx, in)
		})},
		{MethodName: "ListFactors", Handler: unary(AuthService_ListFactors_FullMethodName, func(srv any, ctx context.Context, in *ListFactorsRequest) (*ListFactorsResponse, error) {
			return authServer(srv).ListFactors(ctx, in)
		})},
		{MethodName: "SetAccountStatus", Handler: unary(AuthService_SetAccountStatus_FullMethodName, func(srv any, ctx context.Context, in *SetAccountStatusRequest) (*SetAccountStatusResponse, error) {
			return authServer(srv).SetAccountStatus(ctx, in)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/auth/v1/auth_grpc.go",
}

// AuthServiceClient is the client API for AuthService.
type AuthServiceClient interface {
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error)
	VerifyChallenge(ctx context.Context, in *VerifyChallengeRequest, opts ...grpc.CallOption) (*VerifyChallengeResponse, error)
	Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*RefreshResponse, error)
	Logout(ctx context.Context, in *LogoutRequest, opts ...grpc.CallOption) (*LogoutResponse, error)
	RevokeAll(ctx context.Context, in *RevokeAllRequest, opts ...grpc.CallOption) (*RevokeAllResponse, error)
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error)
	ChangePassword(ctx context.Context, in *ChangePasswordRequest, opts ...grpc.CallOption) (*ChangePasswordResponse, error)
	EnrollFactor(ctx context.Context, in *EnrollFactorRequest, opts ...grpc.CallOption) (*EnrollFactorResponse, error)
	ConfirmFactor(ctx context.Context, in *ConfirmFactorRequest, opts ...grpc.CallOption) (*ConfirmFactorResponse, error)
	RevokeFactor(ctx context.Context, in *RevokeFactorRequest, opts ...grpc.CallOption) (*RevokeFactorResponse, error)
	ListFactors(ctx context.Context, in *ListFactorsRequest, opts ...grpc.CallOption) (*ListFactorsResponse, error)
	SetAccountStatus(ctx context.Context, in *SetAccountStatusRequest, opts ...grpc.CallOption) (*SetAccountStatusResponse, error)
}

type authServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAuthServiceClient returns a client that speaks the JSON codec on cc.
func NewAuthServiceClient(cc grpc.ClientConnInterface) AuthServiceClient {
	return &authServiceClient{cc}
}

func (c *authServiceClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, AuthService_Login_FullMethodName, in, opts)
}

func (c *authServiceClient) VerifyChallenge(ctx context.Context, in *VerifyChallengeRequest, opts ...grpc.CallOption) (*VerifyChallengeResponse, error) {
	return invoke[VerifyChallengeResponse](ctx, c.cc, AuthService_VerifyChallenge_FullMethodName, in, opts)
}

func (c *authServiceClient) Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*RefreshResponse, error) {
	return invoke[RefreshResponse](ctx, c.cc, AuthService_Refresh_FullMethodName, in, opts)
}

func (c *authServiceClient) Logout(ctx context.Context, in *LogoutRequest, opts ...grpc.CallOption) (*LogoutResponse, error) {
	return invoke[LogoutResponse](ctx, c.cc, AuthService_Logout_FullMethodName, in, opts)
}

func (c *authServiceClient) RevokeAll(ctx context.Context, in *RevokeAllRequest, opts ...grpc.CallOption) (*RevokeAllResponse, error) {
	return invoke[RevokeAllResponse](ctx, c.cc, AuthService_RevokeAll_FullMethodName, in, opts)
}

func (c *authServiceClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, AuthService_Register_FullMethodName, in, opts)
}

func (c *authServiceClient) ChangePassword(ctx context.Context, in *ChangePasswordRequest, opts ...grpc.CallOption) (*ChangePasswordResponse, error) {
	return invoke[ChangePasswordResponse](ctx, c.cc, AuthService_ChangePassword_FullMethodName, in, opts)
}

func (c *authServiceClient) EnrollFactor(ctx context.Context, in *EnrollFactorRequest, opts ...grpc.CallOption) (*EnrollFactorResponse, error) {
	return invoke[EnrollFactorResponse](ctx, c.cc, AuthService_EnrollFactor_FullMethodName, in, opts)
}

func (c *authServiceClient) ConfirmFactor(ctx context.Context, in *ConfirmFactorRequest, opts ...grpc.CallOption) (*ConfirmFactorResponse, error) {
	return invoke[ConfirmFactorResponse](ctx, c.cc, AuthService_ConfirmFactor_FullMethodName, in, opts)
}

func (c *authServiceClient) RevokeFactor(ctx context.Context, in *RevokeFactorRequest, opts ...grpc.CallOption) (*RevokeFactorResponse, error) {
	return invoke[RevokeFactorResponse](ctx, c.cc, AuthService_RevokeFactor_FullMethodName, in, opts)
}

func (c *authServiceClient) ListFactors(ctx context.Context, in *ListFactorsRequest, opts ...grpc.CallOption) (*ListFactorsResponse, error) {
	return invoke[ListFactorsResponse](ctx, c.cc, AuthService_ListFactors_FullMethodName, in, opts)
}

func (c *authServiceClient) SetAccountStatus(ctx context.Context, in *SetAccountStatusRequest, opts ...grpc.CallOption) (*SetAccountStatusResponse, error) {
	return invoke[SetAccountStatusResponse](ctx, c.cc, AuthService_SetAccountStatus_FullMethodName, in, opts)
}

// DevServiceServer exposes one-time codes kept in dev mode. Never registered in production.
type DevServiceServer interface {
	GetOTP(context.Context, *GetOTPRequest) (*GetOTPResponse, error)
}

// RegisterDevServiceServer registers srv on s.
func RegisterDevServiceServer(s grpc.ServiceRegistrar, srv DevServiceServer) {
	s.RegisterService(&DevService_ServiceDesc, srv)
}

// DevService_ServiceDesc is the grpc.ServiceDesc for DevService.
var DevService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "identity.auth.v1.DevService",
	HandlerType: (*DevServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetOTP", Handler: unary(DevService_GetOTP_FullMethodName, func(srv any, ctx context.Context, in *GetOTPRequest) (*GetOTPResponse, error) {
			return srv.(DevServiceServer).GetOTP(ctx, in)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/auth/v1/auth_grpc.go",
}

// DevServiceClient is the client API for DevService.
type DevServiceClient interface {
	GetOTP(ctx context.Context, in *GetOTPRequest, opts ...grpc.CallOption) (*GetOTPResponse, error)
}

type devServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDevServiceClient(cc grpc.ClientConnInterface) DevServiceClient {
	return &devServiceClient{cc}
}

func (c *devServiceClient) GetOTP(ctx context.Context, in *GetOTPRequest, opts ...grpc.CallOption) (*GetOTPResponse, error) {
	return invoke[GetOTPResponse](ctx, c.cc, DevService_GetOTP_FullMethodName, in, opts)
}

// unary adapts a typed method to grpc.MethodHandler, running the server interceptor chain when present.
func unary[Req, Resp any](fullMethod string, call func(srv any, ctx context.Context, in *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
