// Package secpolicy implements the filesystem/HTTP/network capability
// policy and its effective-policy derivation: the rules a tool call
// is actually gated by, distinct from the advisory risk-scoring layer
// in pkg/risk.
package secpolicy

import (
	"strings"
	"time"
)

// SymlinkBehavior controls how the filesystem gate treats symlinks.
type SymlinkBehavior string

const (
	SymlinkFollow   SymlinkBehavior = "follow"
	SymlinkNoFollow SymlinkBehavior = "no_follow"
)

// FSAccess is a tagged variant: either filesystem access is entirely
// disabled, or enabled with the given symlink/content-scanning
// behavior.
type FSAccess struct {
	Disabled       bool
	SymlinkBehavior SymlinkBehavior
	ContentScanning bool
}

// FSPolicy is the filesystem sub-policy.
type FSPolicy struct {
	Access        FSAccess
	AllowPaths    []string // validated to contain no ".."
	DenyPatterns  []string
	MaxFileSizeBy uint64 // bytes
	MaxFilesPerOp int
}

// DomainFilterMode selects how HTTP host filtering behaves.
type DomainFilterMode string

const (
	DomainFilterAllowAll  DomainFilterMode = "allow_all"  // deny_list only
	DomainFilterAllowList DomainFilterMode = "allow_list" // allow + deny
)

// DomainFilter configures host allow/deny evaluation.
type DomainFilter struct {
	Mode     DomainFilterMode
	AllowSet []string // only consulted in AllowList mode
	DenySet  []string
}

// HTTPAccessMode is the tagged variant for HTTP access.
type HTTPAccessMode string

const (
	HTTPDisabled  HTTPAccessMode = "disabled"
	HTTPLocalOnly HTTPAccessMode = "local_only"
	HTTPInternet  HTTPAccessMode = "internet"
)

// HTTPPolicy is the HTTP sub-policy.
type HTTPPolicy struct {
	Mode          HTTPAccessMode
	DomainFilter  DomainFilter
	IncludeLocal  bool // only meaningful when Mode == HTTPInternet
	MaxRedirects  int  // bounded newtype; validated at load
	UserAgent     string
	AllowMethods  []string
	DefaultHeaders map[string]string
}

// NetworkPolicy is the network sub-policy.
type NetworkPolicy struct {
	AllowPorts     []int
	DenyPorts      []int
	TTL            time.Duration
	AllowPrivate   bool
}

// SecurityPolicy composes the three sub-policies that make up a
// global or per-tool capability policy.
type SecurityPolicy struct {
	FS      FSPolicy
	HTTP    HTTPPolicy
	Network NetworkPolicy
}

// ToolOverride narrows (never broadens) a subset of the global
// policy's capabilities for one tool.
type ToolOverride struct {
	FSEnabled          *bool
	HTTPEnabled        *bool
	NetworkEnabled     *bool
	RateLimitPerMinute *int
}

// EffectivePolicy derives the policy that actually gates a (agent,
// tool) invocation: global policy masked by the tool's override. An
// override that disables a capability always wins; a permissive
// override can never re-enable a capability the global policy has
// disabled ("a permissive override cannot broaden a globally disabled
// capability").
func EffectivePolicy(global SecurityPolicy, override *ToolOverride) SecurityPolicy {
	effective := global
	if override == nil {
		return effective
	}
	if override.FSEnabled != nil && !*override.FSEnabled {
		effective.FS.Access = FSAccess{Disabled: true}
	}
	if override.HTTPEnabled != nil && !*override.HTTPEnabled {
		effective.HTTP.Mode = HTTPDisabled
	}
	if override.NetworkEnabled != nil && !*override.NetworkEnabled {
		effective.Network.AllowPorts = nil
		effective.Network.AllowPrivate = false
	}
	return effective
}

// MatchesDomain evaluates an allow/deny filter against host, honoring
// deny-takes-precedence-over-allow and wildcard subdomain matching
// ("*.example.com" matches any immediate or deep subdomain).
func MatchesDomain(filter DomainFilter, host string) bool {
	host = strings.ToLower(host)
	for _, deny := range filter.DenySet {
		if domainMatch(deny, host) {
			return false
		}
	}
	switch filter.Mode {
	case DomainFilterAllowAll:
		return true
	case DomainFilterAllowList:
		for _, allow := range filter.AllowSet {
			if domainMatch(allow, host) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func domainMatch(pattern, host string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	if pattern == host {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // ".example.com"
		return strings.HasSuffix(host, suffix) && host != suffix[1:]
	}
	return false
}
