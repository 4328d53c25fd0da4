package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Reason names why an input value was rejected.
type Reason string

const (
	ReasonNullByte        Reason = "null_byte"
	ReasonShellMeta       Reason = "shell_metacharacter"
	ReasonSQLMarker       Reason = "sql_injection_marker"
	ReasonPathTraversal   Reason = "path_traversal"
	ReasonSecretDetected  Reason = "secret_detected"
	ReasonControlChar     Reason = "control_character"
)

// RejectionError is returned by Input when a value fails a gate.
type RejectionError struct {
	Reason Reason
	Value  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("input rejected (%s)", e.Reason)
}

var (
	shellMetaRe     = regexp.MustCompile("[|&`$><\\\\\n\r]")
	sqlMarkerRe     = regexp.MustCompile(`(;|--|/\*|\*/)`)
	traversalRe     = regexp.MustCompile(`\.\.[/\\]`)
	controlCharRe   = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
)

// Gates controls which checks Input applies. Callers enable only the
// gates relevant to the argument's role (a shell command argument
// gates on shell metacharacters; a display-only label might not).
type Gates struct {
	RejectShellMeta     bool
	RejectSQLMarkers    bool
	RejectPathTraversal bool
	RejectSecrets       bool
}

// StrictGates enables every check — the default for untrusted tool
// arguments that flow to a side-effecting tool.
func StrictGates() Gates {
	return Gates{RejectShellMeta: true, RejectSQLMarkers: true, RejectPathTraversal: true, RejectSecrets: true}
}

// Input validates a raw string argument against cfg's enabled gates.
// Null bytes and other control characters are always rejected
// regardless of configuration: no tool argument legitimately contains
// them.
func Input(value string, cfg Gates) error {
	if strings.ContainsRune(value, 0) {
		return &RejectionError{Reason: ReasonNullByte, Value: value}
	}
	if controlCharRe.MatchString(value) {
		return &RejectionError{Reason: ReasonControlChar, Value: value}
	}
	if cfg.RejectPathTraversal && traversalRe.MatchString(value) {
		return &RejectionError{Reason: ReasonPathTraversal, Value: value}
	}
	if cfg.RejectSQLMarkers && sqlMarkerRe.MatchString(value) {
		return &RejectionError{Reason: ReasonSQLMarker, Value: value}
	}
	if cfg.RejectShellMeta && shellMetaRe.MatchString(value) {
		return &RejectionError{Reason: ReasonShellMeta, Value: value}
	}
	if cfg.RejectSecrets {
		if name := ScanSecret(value); name != "" {
			return &RejectionError{Reason: ReasonSecretDetected, Value: name}
		}
	}
	return nil
}
