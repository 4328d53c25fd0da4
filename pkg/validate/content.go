package validate

// ScanResult is the tagged outcome of scanning tool-produced content
// (e.g. file bytes read back through a path tool) before it is
// returned to an agent. Unsafe guarantees Violations is non-empty;
// Safe guarantees no violation regex matched.
type ScanResult struct {
	Safe             bool
	Content          string
	RedactedContent  string
	Violations       []string
	BinaryContent    bool
}

const (
	binarySampleBytes   = 1024
	binaryNonPrintRatio = 0.30
)

// ScanContent classifies raw bytes read back from a tool. Content
// that is >30% non-printable in its first 1KB is treated as binary
// and unscannable — it is flagged Unsafe with a fixed redaction
// marker rather than run through the secret regexes, which have no
// meaning against binary data and would either false-positive or
// silently pass content nobody actually inspected.
func ScanContent(raw []byte) ScanResult {
	sample := raw
	if len(sample) > binarySampleBytes {
		sample = sample[:binarySampleBytes]
	}
	if isBinary(sample) {
		return ScanResult{
			Safe:            false,
			BinaryContent:   true,
			Violations:      []string{"binary_content"},
			RedactedContent: "[BINARY CONTENT]",
		}
	}

	content := string(raw)
	var violations []string
	redacted := content
	for _, p := range secretPatterns {
		if p.name == "aws_secret_access_key" {
			continue
		}
		if p.pattern.MatchString(content) {
			violations = append(violations, p.name)
			redacted = p.pattern.ReplaceAllString(redacted, "[REDACTED]")
		}
	}
	if aws := secretPatterns[1]; aws.pattern.MatchString(content) {
		violations = append(violations, aws.name)
		redacted = aws.pattern.ReplaceAllString(redacted, "[REDACTED]")
	}

	if len(violations) > 0 {
		return ScanResult{Safe: false, Content: content, RedactedContent: redacted, Violations: violations}
	}
	return ScanResult{Safe: true, Content: content, RedactedContent: content}
}

func isBinary(sample []byte) bool {
	if len(sample) == 0 {
		return false
	}
	nonPrintable := 0
	for _, b := range sample {
		switch {
		case b == '\n' || b == '\r' || b == '\t':
			continue
		case b < 0x20 || b == 0x7f:
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(sample)) > binaryNonPrintRatio
}
