package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func policyWith(cfg Config) *Policy {
	return &Policy{Name: "test", IsActive: true, Config: cfg}
}

func TestEvaluate_CategoryReject(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.SetPolicy(policyWith(Config{
		Categories: map[string]CategoryRule{
			string(CategoryShell): {Action: ActionReject},
		},
	})))

	res := e.Evaluate(ToolCall{Name: "run_shell", SessionID: "s1"})
	assert.Equal(t, ActionReject, res.Decision)
}

func TestEvaluate_CategoryAutoApprove(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.SetPolicy(policyWith(Config{
		Categories: map[string]CategoryRule{
			string(CategoryFileRead): {Action: ActionAuto},
		},
	})))

	res := e.Evaluate(ToolCall{Name: "file_read", SessionID: "s1"})
	assert.Equal(t, ActionAuto, res.Decision)
	assert.False(t, res.RequiresApproval)
}

func TestEvaluate_CategoryApproveFlagsApproval(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.SetPolicy(policyWith(Config{
		Categories: map[string]CategoryRule{
			string(CategoryFileWrite): {Action: ActionApprove},
		},
	})))

	res := e.Evaluate(ToolCall{Name: "file_write", SessionID: "s1"})
	assert.Equal(t, ActionApprove, res.Decision)
	assert.True(t, res.RequiresApproval)
}

func TestEvaluate_UncategorizedToolAutoApprovesUnderThreshold(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.SetPolicy(policyWith(Config{})))

	res := e.Evaluate(ToolCall{Name: "memory_store", SessionID: "s1"})
	assert.Equal(t, ActionAuto, res.Decision)
	assert.Equal(t, "under_threshold", res.MatchedRule)
}

func TestEvaluate_CategorizeByName(t *testing.T) {
	cases := map[string]ToolCategory{
		"file_read":    CategoryFileRead,
		"file_write":   CategoryFileWrite,
		"run_shell":    CategoryShell,
		"code_search":  CategorySearch,
		"git_status":   CategoryGit,
		"http_fetch":   CategoryNetwork,
		"mystery_tool": CategoryUnknown,
	}
	for name, want := range cases {
		assert.Equal(t, want, categorizeToolCall(ToolCall{Name: name}), name)
	}
}

func TestLoadPolicy_DefaultsWithoutStore(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.LoadPolicy())
	require.NotNil(t, e.GetPolicy())

	// The default policy must not reject a benign read.
	res := e.Evaluate(ToolCall{Name: "file_read", SessionID: "s1"})
	assert.NotEqual(t, ActionReject, res.Decision)
}
