package fetch

import (
	"net/netip"
	"net/url"
	"strings"
)

// builtinBlockedHosts are rejected regardless of configuration: loopback
// names, named metadata endpoints, and infra suffixes. Metadata IP
// literals such as 169.254.169.254 are caught by the address check
// instead, which reports them as blocked IPs.
var builtinBlockedHosts = []string{
	"localhost",
	"metadata.google.internal",
	"*.local",
	"*.internal",
}

// Validator normalizes URLs and rejects anything that could reach a
// private network: non-HTTP schemes, embedded credentials, blocklisted
// hosts, and literal private/loopback/link-local IPs.
type Validator struct {
	maxURLLength int
	blocklist    *hostPatternBlocklist
}

// NewValidator builds a Validator. Extra blocklist patterns (exact hosts
// or "*.suffix" wildcards) come from configuration and are matched in
// addition to the builtin set.
func NewValidator(maxURLLength int, blockedPatterns []string) *Validator {
	if maxURLLength <= 0 {
		maxURLLength = 2048
	}
	patterns := make([]string, 0, len(builtinBlockedHosts)+len(blockedPatterns))
	patterns = append(patterns, builtinBlockedHosts...)
	patterns = append(patterns, blockedPatterns...)
	return &Validator{
		maxURLLength: maxURLLength,
		blocklist:    newHostPatternBlocklist(patterns),
	}
}

// Validate checks raw against every safety rule in order and returns the
// canonical href. The canonical form lowercases scheme and host, strips
// default ports and fragments, so equivalent spellings share cache keys.
func (v *Validator) Validate(raw string) (string, error) {
	if len(raw) > v.maxURLLength {
		return "", newError(KindInvalidURL, "url exceeds maximum length of %d", v.maxURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", wrapError(KindInvalidURL, err, "parse url")
	}
	if !u.IsAbs() {
		return "", newError(KindInvalidURL, "url must be absolute")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", newError(KindInvalidURL, "unsupported protocol %q", u.Scheme)
	}
	if u.User != nil {
		return "", newError(KindInvalidURL, "urls with embedded credentials are not allowed")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", newError(KindInvalidURL, "url has no host")
	}
	if v.blocklist.IsBlocked(host) {
		return "", newError(KindBlockedHost, "host %q is blocked", host)
	}
	if addr, ok := parseHostAddr(host); ok {
		if isDisallowedAddr(addr) {
			return "", newError(KindBlockedIP, "ip address %s is not publicly routable", addr)
		}
	}

	u.Host = canonicalHostPort(u.Scheme, host, u.Port())
	u.Fragment = ""
	return u.String(), nil
}

// parseHostAddr parses a hostname that is itself an IP literal.
// Bracketed IPv6 forms arrive already unbracketed from url.Hostname.
func parseHostAddr(host string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

// isDisallowedAddr reports whether connecting to addr would leave the
// public internet: loopback, RFC1918/ULA private, link-local (v4 and
// v6), unspecified, or multicast. v4-mapped v6 addresses are unmapped
// first so ::ffff:127.0.0.1 cannot slip through.
func isDisallowedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified()
}

// canonicalHostPort rebuilds the host:port component with default ports
// stripped.
func canonicalHostPort(scheme, host, port string) string {
	if strings.Contains(host, ":") {
		// IPv6 literal needs brackets back.
		host = "[" + host + "]"
	}
	switch {
	case port == "":
		return host
	case scheme == "http" && port == "80":
		return host
	case scheme == "https" && port == "443":
		return host
	default:
		return host + ":" + port
	}
}

// hostPatternBlocklist stores exact hosts and suffix wildcards derived
// from configuration.
type hostPatternBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newHostPatternBlocklist(patterns []string) *hostPatternBlocklist {
	matcher := &hostPatternBlocklist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			if suffix := strings.TrimPrefix(value, "*."); suffix != "" {
				matcher.addSuffix(suffix)
			}
		case strings.HasPrefix(value, "."):
			if suffix := strings.TrimPrefix(value, "."); suffix != "" {
				matcher.addSuffix(suffix)
			}
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	return matcher
}

func (b *hostPatternBlocklist) addSuffix(suffix string) {
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

func (b *hostPatternBlocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := b.exact[host]; exact {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
