package fetch

import (
	"net/http"
	"sort"
	"strings"

	"github.com/fetchguard/fetchguard/internal/hash/sha256"
)

// CacheKey derives the deterministic, collision-resistant cache key
// namespace:urlHash[.varyHash]. Same URL and same vary always produce
// the same key; any vary difference produces a different key.
func CacheKey(namespace, normalizedURL string, vary map[string]string) string {
	key := namespace + ":" + sha256.Hex([]byte(normalizedURL))
	if len(vary) == 0 {
		return key
	}
	return key + "." + sha256.Hex([]byte(canonicalVary(vary)))
}

// DedupeKey scopes in-flight coalescing to namespace plus normalized
// URL. It is deliberately coarser than the cache key: the underlying
// network fetch is identical regardless of output options, so callers
// that differ only in vary share one fetch.
func DedupeKey(namespace, normalizedURL string) string {
	return namespace + ":" + normalizedURL
}

// canonicalVary serializes a vary map with sorted keys so logically
// equal maps hash identically.
func canonicalVary(vary map[string]string) string {
	keys := make([]string, 0, len(vary))
	for k := range vary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strings.ToLower(k))
		b.WriteByte('=')
		b.WriteString(vary[k])
		b.WriteByte('\n')
	}
	return b.String()
}

// varyFrom folds request headers and output options into one vary map.
// Headers shape the response a server returns; output options shape the
// transform. Either difference must produce a distinct cache key.
func varyFrom(header http.Header, vary map[string]string) map[string]string {
	if len(header) == 0 && len(vary) == 0 {
		return nil
	}
	merged := make(map[string]string, len(header)+len(vary))
	for name, values := range header {
		merged["h:"+strings.ToLower(name)] = strings.Join(values, ",")
	}
	for k, v := range vary {
		merged["o:"+k] = v
	}
	return merged
}
