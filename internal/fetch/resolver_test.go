package fetch

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeResolver returns a scripted address list per hostname, letting
// tests drive rebinding scenarios deterministically.
type fakeResolver struct {
	addrs map[string][]netip.Addr
	err   error
}

func (f *fakeResolver) ResolveAll(_ context.Context, host string) ([]netip.Addr, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.addrs[host], nil
}

func mustAddrs(t *testing.T, raw ...string) []netip.Addr {
	t.Helper()
	out := make([]netip.Addr, 0, len(raw))
	for _, r := range raw {
		addr, err := netip.ParseAddr(r)
		require.NoError(t, err)
		out = append(out, addr)
	}
	return out
}

func TestSafeResolverReturnsPublicAddressesInOrder(t *testing.T) {
	t.Parallel()
	inner := &fakeResolver{addrs: map[string][]netip.Addr{
		"example.com": mustAddrs(t, "93.184.216.34", "2606:2800:220:1::1"),
	}}
	s := NewSafeResolver(inner)

	addrs, err := s.ResolveAll(context.Background(), "example.com")
	require.NoError(t, err)
	require.Equal(t, mustAddrs(t, "93.184.216.34", "2606:2800:220:1::1"), addrs)

	first, err := s.Resolve(context.Background(), "example.com")
	require.NoError(t, err)
	require.Equal(t, addrs[0], first)
}

func TestSafeResolverFailsClosedOnAnyPrivateCandidate(t *testing.T) {
	t.Parallel()

	// One good candidate does not excuse a poisoned one: the whole
	// resolution must fail rather than silently filtering.
	cases := []struct {
		name  string
		addrs []string
	}{
		{"loopback mixed with public", []string{"93.184.216.34", "127.0.0.1"}},
		{"private first", []string{"10.0.0.1", "93.184.216.34"}},
		{"link local v6", []string{"fe80::1"}},
		{"unique local v6", []string{"fd00::1"}},
		{"v4 mapped loopback", []string{"::ffff:127.0.0.1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			inner := &fakeResolver{addrs: map[string][]netip.Addr{
				"rebind.example": mustAddrs(t, tc.addrs...),
			}}
			s := NewSafeResolver(inner)
			_, err := s.ResolveAll(context.Background(), "rebind.example")
			fe, ok := AsError(err)
			require.True(t, ok)
			require.Equal(t, KindBlockedIP, fe.Kind)
		})
	}
}

func TestSafeResolverEmptyAndErrorResults(t *testing.T) {
	t.Parallel()

	t.Run("empty answer is a network error", func(t *testing.T) {
		t.Parallel()
		s := NewSafeResolver(&fakeResolver{addrs: map[string][]netip.Addr{}})
		_, err := s.ResolveAll(context.Background(), "nxdomain.example")
		fe, ok := AsError(err)
		require.True(t, ok)
		require.Equal(t, KindNetwork, fe.Kind)
	})

	t.Run("lookup failure is a network error", func(t *testing.T) {
		t.Parallel()
		s := NewSafeResolver(&fakeResolver{err: errors.New("servfail")})
		_, err := s.ResolveAll(context.Background(), "broken.example")
		fe, ok := AsError(err)
		require.True(t, ok)
		require.Equal(t, KindNetwork, fe.Kind)
	})
}

func TestSafeDialContextRefusesPrivateLiterals(t *testing.T) {
	t.Parallel()
	dial := safeDialContext(NewSafeResolver(&fakeResolver{}), nil)

	// A dial straight to a non-routable literal must be refused before
	// any connection attempt, even though validation already ran: this
	// is the connection-time gate redirects and rebinds run into.
	for _, target := range []string{"127.0.0.1:80", "10.1.2.3:443", "[::1]:80", "[fe80::1]:8080"} {
		_, err := dial(context.Background(), "tcp", target)
		fe, ok := AsError(err)
		require.True(t, ok, "expected tagged error for %s, got %v", target, err)
		require.Equal(t, KindBlockedIP, fe.Kind)
	}
}

func TestSafeDialContextRefusesRebindingHostname(t *testing.T) {
	t.Parallel()
	// The hostname validated fine earlier, but by dial time it resolves
	// to loopback. The dialer must consult the resolver again and fail.
	inner := &fakeResolver{addrs: map[string][]netip.Addr{
		"rebind.example": mustAddrs(t, "127.0.0.1"),
	}}
	dial := safeDialContext(NewSafeResolver(inner), nil)

	_, err := dial(context.Background(), "tcp", "rebind.example:80")
	fe, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindBlockedIP, fe.Kind)
}
