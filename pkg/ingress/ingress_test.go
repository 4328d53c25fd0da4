package ingress

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/gatekeeper/pkg/admission"
	"github.com/corvidlabs/gatekeeper/pkg/audit"
	"github.com/corvidlabs/gatekeeper/pkg/bus"
	"github.com/corvidlabs/gatekeeper/pkg/ident"
	"github.com/corvidlabs/gatekeeper/pkg/reslimit"
	"github.com/corvidlabs/gatekeeper/pkg/secconfig"
	"github.com/corvidlabs/gatekeeper/pkg/secmanager"
	"github.com/corvidlabs/gatekeeper/pkg/secmetrics"
	"github.com/corvidlabs/gatekeeper/pkg/secpolicy"
	"github.com/corvidlabs/gatekeeper/pkg/tool"
)

type echoTool struct{}

func (echoTool) Name() string                     { return "echo" }
func (echoTool) Description() string              { return "echoes input" }
func (echoTool) Parameters() tool.ParameterSchema { return tool.ParameterSchema{} }
func (echoTool) Execute(params map[string]any) (*tool.Result, error) {
	in, _ := params["input"].(string)
	return &tool.Result{Success: true, Data: map[string]any{"output": "echo:" + in}}, nil
}

type registry struct{}

func (registry) Lookup(id ident.ToolID) (tool.Tool, bool) {
	if id == "echo" {
		return echoTool{}, true
	}
	return nil, false
}

func newTestManager(t *testing.T) *secmanager.Manager {
	t.Helper()
	cfg := &secconfig.Config{
		Policy: secpolicy.SecurityPolicy{
			FS:   secpolicy.FSPolicy{Access: secpolicy.FSAccess{Disabled: true}},
			HTTP: secpolicy.HTTPPolicy{Mode: secpolicy.HTTPDisabled},
		},
		Resources: secconfig.ResourcesConfig{
			MaxMemoryMB:         512,
			MaxCPUPercent:       90,
			MaxExecutionSeconds: 5,
			MaxConcurrentOps:    4,
			GlobalMaxConcurrent: 8,
		},
		Overrides: map[string]secpolicy.ToolOverride{},
		Emergency: secconfig.EmergencyConfig{AllowedTools: []string{"memory"}},
	}
	admMgr := admission.NewManager(admission.DefaultConfig())
	m := secmanager.New(secmanager.Deps{
		Config: cfg,
		Tracker: reslimit.NewTracker(reslimit.ResourceLimits{
			MaxConcurrentOps: 4,
			MaxCPUPercent:    reslimit.NewCpuPercentUnchecked(90),
		}, reslimit.NoopSampler{}),
		RateLimiter: reslimit.NewRateLimiter(1000, time.Minute),
		Admission:   admMgr,
		AuditLog:    audit.NewEmitter(audit.SeverityInfo, nil, audit.FormatJSON),
		Metrics:     secmetrics.NewRegistry(prometheus.NewRegistry()),
		Tools:       registry{},
	})
	admMgr.Start(context.Background())
	t.Cleanup(admMgr.Shutdown)
	return m
}

func request(t *testing.T, b bus.MessageBus, env Envelope) Reply {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	raw, err := b.Request(context.Background(), DefaultSubject, data, 5*time.Second)
	require.NoError(t, err)
	var reply Reply
	require.NoError(t, json.Unmarshal(raw, &reply))
	return reply
}

func startListener(t *testing.T) bus.MessageBus {
	t.Helper()
	b := bus.NewMemoryBus()
	t.Cleanup(func() { b.Close() })
	l := NewListener(DefaultConfig(), newTestManager(t), b, nil)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { l.Stop() })
	return b
}

func TestListener_RoundTrip(t *testing.T) {
	b := startListener(t)

	reply := request(t, b, Envelope{
		AgentID:       "agent-1",
		ToolID:        "echo",
		Input:         "hello",
		Priority:      "high",
		CorrelationID: "corr-42",
	})
	require.Nil(t, reply.Error)
	assert.Equal(t, "echo:hello", reply.Result)
	assert.Equal(t, "corr-42", reply.CorrelationID)
	assert.NotEmpty(t, reply.TaskID)
}

func TestListener_InvalidAgentID(t *testing.T) {
	b := startListener(t)

	reply := request(t, b, Envelope{AgentID: "../etc", ToolID: "echo", Input: "x"})
	require.NotNil(t, reply.Error)
	assert.Equal(t, 400, reply.Error.Status)
}

func TestListener_UnknownToolSurfacesError(t *testing.T) {
	b := startListener(t)

	reply := request(t, b, Envelope{AgentID: "agent-1", ToolID: "missing", Input: "x"})
	require.NotNil(t, reply.Error)
	assert.NotEmpty(t, reply.Error.Code)
}

func TestListener_MalformedEnvelope(t *testing.T) {
	b := startListener(t)

	raw, err := b.Request(context.Background(), DefaultSubject, []byte("{not json"), 5*time.Second)
	require.NoError(t, err)
	var reply Reply
	require.NoError(t, json.Unmarshal(raw, &reply))
	require.NotNil(t, reply.Error)
	assert.Equal(t, 400, reply.Error.Status)
}

func TestListener_FireAndForgetPublishesToResults(t *testing.T) {
	b := bus.NewMemoryBus()
	t.Cleanup(func() { b.Close() })

	results := make(chan []byte, 1)
	_, err := b.Subscribe(context.Background(), DefaultResultSubject, func(msg *bus.Message) []byte {
		results <- msg.Data
		return nil
	})
	require.NoError(t, err)

	l := NewListener(DefaultConfig(), newTestManager(t), b, nil)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { l.Stop() })

	env, _ := json.Marshal(Envelope{AgentID: "agent-1", ToolID: "echo", Input: "bg"})
	require.NoError(t, b.Publish(context.Background(), DefaultSubject, env))

	select {
	case data := <-results:
		var reply Reply
		require.NoError(t, json.Unmarshal(data, &reply))
		assert.Equal(t, "echo:bg", reply.Result)
	case <-time.After(5 * time.Second):
		t.Fatal("result never published")
	}
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, admission.PriorityLow, ParsePriority("low"))
	assert.Equal(t, admission.PriorityNormal, ParsePriority("normal"))
	assert.Equal(t, admission.PriorityNormal, ParsePriority(""))
	assert.Equal(t, admission.PriorityNormal, ParsePriority("weird"))
	assert.Equal(t, admission.PriorityHigh, ParsePriority("high"))
	assert.Equal(t, admission.PriorityCritical, ParsePriority("critical"))
}
