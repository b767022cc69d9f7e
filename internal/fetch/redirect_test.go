package fetch

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func redirectReq(t *testing.T, target string) *http.Request {
	t.Helper()
	u, err := url.Parse(target)
	require.NoError(t, err)
	return &http.Request{URL: u}
}

func TestRedirectGuardAllowsSafeHops(t *testing.T) {
	t.Parallel()
	g := newRedirectGuard(NewValidator(2048, nil), 5)

	via := []*http.Request{redirectReq(t, "https://example.com/start")}
	err := g.check(redirectReq(t, "https://example.com/next"), via)
	require.NoError(t, err)

	// Cross-origin hops are fine as long as the target is safe.
	err = g.check(redirectReq(t, "https://other.example.org/landing"), via)
	require.NoError(t, err)
}

func TestRedirectGuardRejectsUnsafeTargets(t *testing.T) {
	t.Parallel()
	g := newRedirectGuard(NewValidator(2048, []string{"*.corp.example"}), 5)
	via := []*http.Request{redirectReq(t, "https://example.com/start")}

	cases := []struct {
		name   string
		target string
		kind   Kind
	}{
		{"loopback literal", "http://127.0.0.1/admin", KindBlockedIP},
		{"metadata endpoint", "http://169.254.169.254/latest/", KindBlockedIP},
		{"blocked host", "https://wiki.corp.example/secrets", KindBlockedHost},
		{"credentials in target", "https://user:pw@example.com/", KindInvalidURL},
		{"scheme downgrade to ftp", "ftp://example.com/file", KindInvalidURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := g.check(redirectReq(t, tc.target), via)
			fe, ok := AsError(err)
			require.True(t, ok, "expected tagged error, got %v", err)
			require.Equal(t, tc.kind, fe.Kind)
		})
	}
}

func TestRedirectGuardBoundsHopCount(t *testing.T) {
	t.Parallel()
	g := newRedirectGuard(NewValidator(2048, nil), 3)

	// via starts with the initial request; each entry after it is a hop
	// already taken. Three entries means this check decides the third
	// hop, which is still within a budget of three.
	via := []*http.Request{
		redirectReq(t, "https://example.com/start"),
		redirectReq(t, "https://example.com/1"),
		redirectReq(t, "https://example.com/2"),
	}
	require.NoError(t, g.check(redirectReq(t, "https://example.com/3"), via))

	// A fourth hop exceeds the budget.
	via = append(via, redirectReq(t, "https://example.com/3"))
	err := g.check(redirectReq(t, "https://example.com/4"), via)
	fe, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindTooManyRedirects, fe.Kind)
}
