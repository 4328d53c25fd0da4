package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"ask":        ModeAsk,
		"strict":     ModeAsk,
		"safe":       ModeSafe,
		"read-only":  ModeSafe,
		"auto":       ModeAuto,
		"":           ModeAuto,
		"unattended": ModeUnattended,
		"full":       ModeUnattended,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("bogus")
	require.Error(t, err)
}

func TestClassifyTool(t *testing.T) {
	cases := map[string]Operation{
		"memory_read":     OpMemoryRead,
		"memory":          OpMemoryRead,
		"memory_write":    OpMemoryWrite,
		"fs_read":         OpFileRead,
		"fs_write":        OpFileWrite,
		"http_fetch":      OpHTTP,
		"network_connect": OpNetwork,
		"something_else":  OpUnknown,
	}
	for tool, want := range cases {
		assert.Equal(t, want, ClassifyTool(tool), tool)
	}
}

func TestResolve_AskDeniesEverything(t *testing.T) {
	for _, op := range []Operation{OpMemoryRead, OpFileRead, OpFileWrite, OpHTTP, OpUnknown} {
		res := Resolve(ModeAsk, Request{Operation: op, Tool: "t"})
		assert.Equal(t, DecisionDeny, res.Decision, op.String())
	}
}

func TestResolve_SafeAllowsReadsOnly(t *testing.T) {
	res := Resolve(ModeSafe, Request{Operation: OpFileRead, Tool: "fs_read"})
	assert.Equal(t, DecisionAllow, res.Decision)
	assert.True(t, res.Advisory)

	res = Resolve(ModeSafe, Request{Operation: OpMemoryRead, Tool: "memory_read"})
	assert.Equal(t, DecisionAllow, res.Decision)

	for _, op := range []Operation{OpFileWrite, OpMemoryWrite, OpHTTP, OpNetwork, OpUnknown} {
		res := Resolve(ModeSafe, Request{Operation: op, Tool: "t"})
		assert.Equal(t, DecisionDeny, res.Decision, op.String())
	}
}

func TestResolve_AutoAndUnattendedAreAdvisory(t *testing.T) {
	for _, mode := range []Mode{ModeAuto, ModeUnattended} {
		res := Resolve(mode, Request{Operation: OpNetwork, Tool: "network_connect", RiskScore: 90})
		assert.Equal(t, DecisionAllow, res.Decision, mode.String())
		assert.True(t, res.Advisory, mode.String())
	}
}

func TestModeAndDecisionStrings(t *testing.T) {
	assert.Equal(t, "ask", ModeAsk.String())
	assert.Equal(t, "safe", ModeSafe.String())
	assert.Equal(t, "auto", ModeAuto.String())
	assert.Equal(t, "unattended", ModeUnattended.String())
	assert.Equal(t, "allow", DecisionAllow.String())
	assert.Equal(t, "deny", DecisionDeny.String())
	assert.Equal(t, "file:write", OpFileWrite.String())
}
