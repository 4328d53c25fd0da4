package validate

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// DomainErrorKind is the closed taxonomy of URL-gate rejections.
type DomainErrorKind string

const (
	DomainErrScheme       DomainErrorKind = "scheme_not_allowed"
	DomainErrParse        DomainErrorKind = "url_unparseable"
	DomainErrNotAllowed   DomainErrorKind = "domain_not_allowed"
	DomainErrPrivateHost  DomainErrorKind = "private_network_rejected"
	DomainErrMethod       DomainErrorKind = "method_not_allowed"
)

// DomainError is returned by every URL-gate failure.
type DomainError struct {
	Kind DomainErrorKind
	URL  string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("url rejected (%s): %s", e.Kind, e.URL)
}

// ValidatedUrl is constructible only inside this package: its
// existence is proof that the scheme is http/https, the host cleared
// the allow/deny filter, and — unless IncludeLocal was set — the host
// is not a loopback, link-local, or RFC1918 private address. Tools
// must accept ValidatedUrl, never a bare string, so that an SSRF
// target can never reach an HTTP-capable tool unvetted.
type ValidatedUrl struct {
	raw  string
	host string
}

// String returns the original URL string.
func (v ValidatedUrl) String() string { return v.raw }

// Host returns the validated host (without port).
func (v ValidatedUrl) Host() string { return v.host }

// DomainFilter mirrors secpolicy.DomainFilter's allow/deny evaluation
// shape without importing secpolicy.
type DomainFilter struct {
	AllowAll bool // when false, host must match AllowSet
	AllowSet []string
	DenySet  []string
}

var allowedSchemes = map[string]bool{"http": true, "https": true}

// ValidateURL parses raw, enforces scheme and allow/deny-list rules,
// and — unless includeLocal — rejects loopback/link-local/RFC1918
// hosts. This is the SSRF gate.
func ValidateURL(raw string, filter DomainFilter, includeLocal bool) (ValidatedUrl, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ValidatedUrl{}, &DomainError{Kind: DomainErrParse, URL: raw}
	}
	if !allowedSchemes[strings.ToLower(u.Scheme)] {
		return ValidatedUrl{}, &DomainError{Kind: DomainErrScheme, URL: raw}
	}

	host := u.Hostname()
	if !matchesDomainFilter(filter, host) {
		return ValidatedUrl{}, &DomainError{Kind: DomainErrNotAllowed, URL: raw}
	}

	if !includeLocal && isPrivateOrLocal(host) {
		return ValidatedUrl{}, &DomainError{Kind: DomainErrPrivateHost, URL: raw}
	}

	return ValidatedUrl{raw: raw, host: host}, nil
}

// ValidateMethod checks method against the policy's allowed-methods
// list, case-insensitively.
func ValidateMethod(method string, allowed []string) error {
	method = strings.ToUpper(method)
	for _, m := range allowed {
		if strings.ToUpper(m) == method {
			return nil
		}
	}
	return &DomainError{Kind: DomainErrMethod, URL: method}
}

func matchesDomainFilter(filter DomainFilter, host string) bool {
	host = strings.ToLower(host)
	for _, deny := range filter.DenySet {
		if domainPatternMatch(deny, host) {
			return false
		}
	}
	if filter.AllowAll {
		return true
	}
	for _, allow := range filter.AllowSet {
		if domainPatternMatch(allow, host) {
			return true
		}
	}
	return false
}

// domainPatternMatch evaluates one allow/deny entry against host.
// "*.example.com" matches any immediate or deep subdomain of
// example.com but not example.com itself.
func domainPatternMatch(pattern, host string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	if pattern == host {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:]
		return strings.HasSuffix(host, suffix) && host != suffix[1:]
	}
	return false
}

// isPrivateOrLocal reports whether host names a loopback, link-local,
// or RFC1918 private address — the SSRF deny set: localhost,
// 127.0.0.0/8, 10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16,
// 169.254.0.0/16, ::1, and unspecified/link-local IPv6.
func isPrivateOrLocal(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	host = strings.Trim(host, "[]")
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		for _, block := range privateV4Blocks {
			if block.Contains(ip4) {
				return true
			}
		}
	}
	return false
}

var privateV4Blocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}
