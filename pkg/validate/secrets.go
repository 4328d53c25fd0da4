// Package validate holds the input/path/domain gates a tool call's
// arguments must clear before the admission layer ever sees them.
// An unvalidated artifact cannot reach a side-effecting tool.
package validate

import "regexp"

// secretPattern is a literal value-shape check, not a source-code sink
// scanner: it is run against a raw string argument, looking for the
// shape of a credential rather than a dataflow from a request object.
type secretPattern struct {
	name    string
	pattern *regexp.Regexp
}

// secretPatterns reuses the literal credential shapes from the
// source-scanning secrets analyzer, narrowed to the subset that
// identifies a value by its own shape (AKIA prefix, PEM header, JWT
// structure) rather than by surrounding source syntax — those patterns
// have no meaning against a bare runtime string and were dropped.
var secretPatterns = []secretPattern{
	{"aws_access_key_id", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"aws_secret_access_key", regexp.MustCompile(`(?i)[a-z0-9/+]{40}`)},
	{"github_token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`)},
	{"slack_token", regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]{10,}`)},
	{"stripe_key", regexp.MustCompile(`(?:sk|pk)_(?:live|test)_[A-Za-z0-9]{24,}`)},
	{"sendgrid_key", regexp.MustCompile(`SG\.[A-Za-z0-9_-]{22}\.[A-Za-z0-9_-]{43}`)},
	{"private_key_header", regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`)},
	{"jwt_shape", regexp.MustCompile(`^eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)},
}

// ScanSecret reports the name of the first secret pattern matched
// anywhere in value, or "" if none match. The aws_secret_access_key
// entry is intentionally broad (any 40-char base64-ish run) and is
// checked last to avoid masking a more specific match.
func ScanSecret(value string) string {
	for _, p := range secretPatterns {
		if p.name == "aws_secret_access_key" {
			continue
		}
		if p.pattern.MatchString(value) {
			return p.name
		}
	}
	for _, p := range secretPatterns {
		if p.name == "aws_secret_access_key" && p.pattern.MatchString(value) {
			return p.name
		}
	}
	return ""
}
