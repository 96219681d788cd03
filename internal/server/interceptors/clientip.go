package interceptors

import (
	"context"
	"net/netip"
	"strings"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// TrustedProxies is the set of proxy networks whose forwarding headers are believed.
// The zero value trusts nobody.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// ParseTrustedProxies parses IPs and CIDRs (e.g. "10.0.0.0/8", "192.0.2.10").
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	var t TrustedProxies
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			t.prefixes = append(t.prefixes, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(e)
		if err != nil {
			return TrustedProxies{}, errors.Newf("trusted proxy %q is not an IP or CIDR", e)
		}
		a = a.Unmap()
		t.prefixes = append(t.prefixes, netip.PrefixFrom(a, a.BitLen()))
	}
	return t, nil
}

// Contains reports whether a is a trusted proxy address.
func (t TrustedProxies) Contains(a netip.Addr) bool {
	a = a.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// ClientIPUnary resolves the caller's address once per RPC and stores it for ClientIP.
// The address is the transport peer unless the peer is a trusted proxy, in which case it is the
// right-most x-forwarded-for hop that is not itself a trusted proxy (or x-real-ip when
// x-forwarded-for is absent).
func ClientIPUnary(trusted TrustedProxies) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return handler(WithClientIP(ctx, ResolveClientIP(ctx, trusted)), req)
	}
}

// ResolveClientIP returns the client address for ctx as described on ClientIPUnary.
func ResolveClientIP(ctx context.Context, trusted TrustedProxies) string {
	peerIP, ok := peerAddr(ctx)
	if !ok || !trusted.Contains(peerIP) {
		return ClientIP(ctx)
	}
	md, _ := metadata.FromIncomingContext(ctx)
	if hops := forwardedHops(md.Get("x-forwarded-for")); len(hops) > 0 {
		last := peerIP
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(hops[i])
			if err != nil {
				// A trusted proxy never writes a malformed hop; stop at the last one it vouched for.
				return last.String()
			}
			hop = hop.Unmap()
			if !trusted.Contains(hop) {
				return hop.String()
			}
			last = hop
		}
		return last.String()
	}
	if vals := md.Get("x-real-ip"); len(vals) > 0 {
		if a, err := netip.ParseAddr(strings.TrimSpace(vals[0])); err == nil {
			return a.Unmap().String()
		}
	}
	return peerIP.String()
}

// forwardedHops flattens x-forwarded-for values, left (client) to right (nearest proxy).
func forwardedHops(vals []string) []string {
	var hops []string
	for _, v := range vals {
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hops = append(hops, h)
			}
		}
	}
	return hops
}
