package ident

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAgentID_RoundTrip(t *testing.T) {
	valid := []string{"agent-1", "my-agent-123", "service_account.01", "a"}
	for _, s := range valid {
		id, err := ParseAgentID(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, id.String())
	}
}

func TestParseAgentID_Rejections(t *testing.T) {
	cases := []struct {
		name string
		in   string
		code Code
	}{
		{"empty", "", CodeEmpty},
		{"whitespace_only", "   ", CodeWhitespaceOnly},
		{"leading_trailing", "  agent  ", CodeLeadingTrailingWhitespace},
		{"too_long", strings.Repeat("a", 129), CodeTooLong},
		{"invalid_char_slash", "agent/path", CodeInvalidChar},
		{"path_traversal", "../../../etc", CodePathTraversal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAgentID(tc.in)
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.code, verr.Code)
		})
	}
}

func TestParsePrincipalID_StricterRules(t *testing.T) {
	valid := []string{"alice@example.com", "alice.bob@company.org", "system.admin"}
	for _, s := range valid {
		_, err := ParsePrincipalID(s)
		require.NoError(t, err, s)
	}

	rejected := []string{
		"admin'; DROP TABLE users--",
		"user; rm -rf /",
		"../etc/passwd",
		"user`whoami`",
		"user$HOME",
	}
	for _, s := range rejected {
		_, err := ParsePrincipalID(s)
		require.Error(t, err, s)
	}
}

func TestCrossTypeConfusionIsCompileTimeOnly(t *testing.T) {
	// AgentID and ToolID are distinct named types; a function accepting
	// one cannot be called with the other without a conversion. This
	// test exists to document the invariant — there is nothing to run,
	// but the file below would fail to compile if the distinct-type
	// property were lost:
	//
	//   func wantsAgent(AgentID) {}
	//   wantsAgent(ToolID("x")) // compile error
	var _ AgentID = AgentID("a")
	var _ ToolID = ToolID("a")
}

func TestGenerateRequestID_Unique(t *testing.T) {
	a := GenerateRequestID()
	b := GenerateRequestID()
	assert.NotEqual(t, a, b)
}
