package fetch

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// Resolver looks up the addresses for a hostname. It is injected into
// the transport so tests can drive rebinding scenarios deterministically.
type Resolver interface {
	ResolveAll(ctx context.Context, host string) ([]netip.Addr, error)
}

// NetResolver adapts net.Resolver to the Resolver interface.
type NetResolver struct {
	resolver *net.Resolver
}

// NewNetResolver returns a Resolver backed by the system resolver.
func NewNetResolver() *NetResolver {
	return &NetResolver{resolver: net.DefaultResolver}
}

// ResolveAll resolves host to its full address list, resolver order
// preserved.
func (r *NetResolver) ResolveAll(ctx context.Context, host string) ([]netip.Addr, error) {
	addrs, err := r.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", host, err)
	}
	return addrs, nil
}

// SafeResolver re-checks resolved addresses at connection time, closing
// the window between validation and dialing that DNS rebinding exploits.
type SafeResolver struct {
	inner Resolver
}

// NewSafeResolver wraps inner with private-address rejection.
func NewSafeResolver(inner Resolver) *SafeResolver {
	return &SafeResolver{inner: inner}
}

// ResolveAll returns every candidate address for host in resolver order.
// If ANY candidate is private, loopback, or link-local the whole
// resolution fails closed with KindBlockedIP; candidates are never
// silently filtered.
func (s *SafeResolver) ResolveAll(ctx context.Context, host string) ([]netip.Addr, error) {
	addrs, err := s.inner.ResolveAll(ctx, host)
	if err != nil {
		return nil, wrapError(KindNetwork, err, "resolve %s", host)
	}
	if len(addrs) == 0 {
		return nil, newError(KindNetwork, "no addresses found for %s", host)
	}
	for _, addr := range addrs {
		if !addr.Is4() && !addr.Is6() {
			return nil, newError(KindUnknown, "unexpected address family for %s", host)
		}
		if isDisallowedAddr(addr) {
			return nil, newError(KindBlockedIP, "%s resolves to non-routable address %s", host, addr)
		}
	}
	return addrs, nil
}

// Resolve returns the first vetted candidate, preserving resolver order.
func (s *SafeResolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	addrs, err := s.ResolveAll(ctx, host)
	if err != nil {
		return netip.Addr{}, err
	}
	return addrs[0], nil
}

// safeDialContext returns a DialContext that resolves through the safe
// resolver and dials only vetted addresses, in resolver order. The
// connection is pinned to an address that passed the check on THIS dial,
// so a record that rebinds after validation never gets connected to.
func safeDialContext(resolver *SafeResolver, dialer *net.Dialer) func(ctx context.Context, network, address string) (net.Conn, error) {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, fmt.Errorf("split host port %q: %w", address, err)
		}
		if addr, ok := parseHostAddr(host); ok {
			// Literal IP: no DNS involved, but still re-check so a
			// redirect to a literal cannot bypass the gate.
			if isDisallowedAddr(addr) {
				return nil, newError(KindBlockedIP, "dial to non-routable address %s refused", addr)
			}
			return dialer.DialContext(ctx, network, address)
		}
		addrs, err := resolver.ResolveAll(ctx, host)
		if err != nil {
			return nil, err
		}
		var lastErr error
		for _, addr := range addrs {
			conn, dialErr := dialer.DialContext(ctx, network, net.JoinHostPort(addr.String(), port))
			if dialErr == nil {
				return conn, nil
			}
			lastErr = dialErr
		}
		return nil, fmt.Errorf("dial %s: %w", host, lastErr)
	}
}
