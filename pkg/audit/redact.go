package audit

import "regexp"

// redactionPattern is a regex whose every match is replaced wholesale
// — unlike pkg/validate's scanner, which only flags a match, the
// redactor must never let the matched substring reach the emitted
// log line.
type redactionPattern struct {
	name    string
	pattern *regexp.Regexp
}

var redactionPatterns = []redactionPattern{
	{"aws_access_key_id", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"github_token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`)},
	{"slack_token", regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]{10,}`)},
	{"stripe_key", regexp.MustCompile(`(?:sk|pk)_(?:live|test)_[A-Za-z0-9]{24,}`)},
	{"private_key_block", regexp.MustCompile(`-----BEGIN[^-]*PRIVATE KEY-----[\s\S]*?-----END[^-]*PRIVATE KEY-----`)},
	{"bearer_token", regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{10,}`)},
	{"jwt_shape", regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`)},
}

// SecretRedactor replaces every configured pattern's match with
// "[REDACTED]" before a value is emitted, regardless of whether the
// surrounding gate already classified the value as unsafe — this is a
// last line of defense, applied at the emitter, not a substitute for
// upstream validation.
type SecretRedactor struct {
	patterns []redactionPattern
}

// NewSecretRedactor returns a redactor using the built-in pattern
// table plus any additional patterns supplied by the caller (e.g. an
// organization-specific credential shape loaded from config).
func NewSecretRedactor(extra ...redactionPattern) *SecretRedactor {
	patterns := make([]redactionPattern, 0, len(redactionPatterns)+len(extra))
	patterns = append(patterns, redactionPatterns...)
	patterns = append(patterns, extra...)
	return &SecretRedactor{patterns: patterns}
}

// Redact returns text with every pattern match replaced by
// "[REDACTED]".
func (r *SecretRedactor) Redact(text string) string {
	out := text
	for _, p := range r.patterns {
		out = p.pattern.ReplaceAllString(out, "[REDACTED]")
	}
	return out
}

// RedactMetadata applies Redact to every value in a metadata map,
// returning a new map (the input is never mutated).
func (r *SecretRedactor) RedactMetadata(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = r.Redact(v)
	}
	return out
}
