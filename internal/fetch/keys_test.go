package fetch

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheKeyDeterminism(t *testing.T) {
	t.Parallel()

	vary := map[string]string{"h:accept": "text/html", "o:format": "text"}
	a := CacheKey("crawl", "https://example.com/page", vary)
	b := CacheKey("crawl", "https://example.com/page", map[string]string{
		"o:format": "text", "h:accept": "text/html", // insertion order must not matter
	})
	require.Equal(t, a, b)
	require.True(t, strings.HasPrefix(a, "crawl:"))
}

func TestCacheKeyDiscriminates(t *testing.T) {
	t.Parallel()
	base := CacheKey("crawl", "https://example.com/page", nil)

	cases := []struct {
		name string
		key  string
	}{
		{"different namespace", CacheKey("other", "https://example.com/page", nil)},
		{"different url", CacheKey("crawl", "https://example.com/other", nil)},
		{"vary added", CacheKey("crawl", "https://example.com/page", map[string]string{"h:accept": "text/html"})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.NotEqual(t, base, tc.key)
		})
	}

	withVary := CacheKey("crawl", "https://example.com/page", map[string]string{"h:accept": "text/html"})
	otherVary := CacheKey("crawl", "https://example.com/page", map[string]string{"h:accept": "application/json"})
	require.NotEqual(t, withVary, otherVary)
}

func TestDedupeKeyIsCoarserThanCacheKey(t *testing.T) {
	t.Parallel()

	// Two requests differing only in vary share one dedupe key but get
	// distinct cache keys: one network fetch, two cache entries.
	varyA := map[string]string{"o:format": "text"}
	varyB := map[string]string{"o:format": "html"}

	require.Equal(t,
		DedupeKey("crawl", "https://example.com/page"),
		DedupeKey("crawl", "https://example.com/page"))
	require.NotEqual(t,
		CacheKey("crawl", "https://example.com/page", varyA),
		CacheKey("crawl", "https://example.com/page", varyB))

	require.NotEqual(t,
		DedupeKey("crawl", "https://example.com/page"),
		DedupeKey("index", "https://example.com/page"))
}

func TestVaryFromMergesHeadersAndOptions(t *testing.T) {
	t.Parallel()

	t.Run("nil for empty inputs", func(t *testing.T) {
		t.Parallel()
		require.Nil(t, varyFrom(nil, nil))
		require.Nil(t, varyFrom(http.Header{}, map[string]string{}))
	})

	t.Run("headers are lowercased and prefixed", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set("Accept-Language", "en")
		h.Add("X-Multi", "a")
		h.Add("X-Multi", "b")
		got := varyFrom(h, map[string]string{"format": "text"})
		require.Equal(t, map[string]string{
			"h:accept-language": "en",
			"h:x-multi":         "a,b",
			"o:format":          "text",
		}, got)
	})

	t.Run("header and option namespaces cannot collide", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set("Format", "html")
		got := varyFrom(h, map[string]string{"format": "text"})
		require.Len(t, got, 2)
	})
}
