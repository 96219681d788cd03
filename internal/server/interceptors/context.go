package interceptors

import (
	"context"
	"net/netip"

	"google.golang.org/grpc/peer"
)

type contextKey struct{ name string }

var (
	principalIDKey = contextKey{"principal_id"}
	familyIDKey    = contextKey{"family_id"}
	clientIPKey    = contextKey{"client_ip"}
)

// WithIdentity returns a context carrying the authenticated principal and its session family.
// Handlers read them via GetPrincipalID and GetFamilyID.
func WithIdentity(ctx context.Context, principalID, familyID string) context.Context {
	ctx = context.WithValue(ctx, principalIDKey, principalID)
	ctx = context.WithValue(ctx, familyIDKey, familyID)
	return ctx
}

// GetPrincipalID returns the principal_id from context and true if set; otherwise "", false.
func GetPrincipalID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(principalIDKey).(string)
	return v, ok && v != ""
}

// GetFamilyID returns the token family of the bearer token and true if set; otherwise "", false.
func GetFamilyID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(familyIDKey).(string)
	return v, ok && v != ""
}

// WithClientIP returns a context with the resolved client address set.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the client address stored by ClientIPUnary, else the transport peer address,
// or "unknown". Forwarding headers are only read by ClientIPUnary, for trusted peers.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	if addr, ok := peerAddr(ctx); ok {
		return addr.String()
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

// peerAddr returns the IP of the transport peer, if it has one.
func peerAddr(ctx context.Context) (netip.Addr, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return netip.Addr{}, false
	}
	ap, err := netip.ParseAddrPort(p.Addr.String())
	if err != nil {
		return netip.Addr{}, false
	}
	return ap.Addr().Unmap(), true
}
