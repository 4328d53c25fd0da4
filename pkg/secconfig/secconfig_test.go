package secconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/gatekeeper/pkg/secpolicy"
)

const validTOML = `
[metadata]
name = "test-config"

[fs]
allow_paths = ["./data"]
max_file_size = 1048576
max_files_per_op = 10

[fs.access.Enabled]
symlink_behavior = "no_follow"
content_scanning = true

[http]
allow_methods = ["GET", "POST"]

[http.access.Internet]
include_local = false

[http.access.Internet.domain_filter.AllowAll]
deny_list = ["169.254.169.254"]

[network]
allow_ports = [443]

[resources]
max_memory_mb = 512
max_concurrent_operations = 4
max_execution_seconds = 30

[audit]
min_severity = "info"

[alerting]
enabled = false

[emergency]
lockdown_enabled = false
`

func TestLoadSecurityConfig_Valid(t *testing.T) {
	cfg, warnings, err := LoadSecurityConfig([]byte(validTOML))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.False(t, cfg.Policy.FS.Access.Disabled)
	assert.Equal(t, secpolicy.SymlinkNoFollow, cfg.Policy.FS.Access.SymlinkBehavior)
	assert.Equal(t, secpolicy.HTTPInternet, cfg.Policy.HTTP.Mode)
	assert.False(t, cfg.Policy.HTTP.IncludeLocal)
	assert.Equal(t, []string{"memory"}, cfg.Emergency.AllowedTools)
}

func TestLoadSecurityConfig_ZeroMemoryFatal(t *testing.T) {
	bad := `
[resources]
max_memory_mb = 0
max_concurrent_operations = 4
max_execution_seconds = 30
`
	_, _, err := LoadSecurityConfig([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_memory_mb")
}

func TestLoadSecurityConfig_EmptyAllowPathsFatalWhenFSEnabled(t *testing.T) {
	bad := `
[fs.access.Enabled]
symlink_behavior = "no_follow"

[resources]
max_memory_mb = 512
max_concurrent_operations = 4
max_execution_seconds = 30
`
	_, _, err := LoadSecurityConfig([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allow_paths")
}

func TestLoadSecurityConfig_DotDotInAllowPathFatal(t *testing.T) {
	bad := `
[fs]
allow_paths = ["../escape"]

[fs.access.Enabled]
symlink_behavior = "no_follow"

[resources]
max_memory_mb = 512
max_concurrent_operations = 4
max_execution_seconds = 30
`
	_, _, err := LoadSecurityConfig([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "..")
}

func TestLoadSecurityConfig_WarningsSymlinkFollow(t *testing.T) {
	raw := `
[fs]
allow_paths = ["./data"]

[fs.access.Enabled]
symlink_behavior = "follow"

[resources]
max_memory_mb = 512
max_concurrent_operations = 4
max_execution_seconds = 30
`
	cfg, warnings, err := LoadSecurityConfig([]byte(raw))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	found := false
	for _, w := range warnings {
		if w.Field == "fs.access.Enabled.symlink_behavior" {
			found = true
		}
	}
	assert.True(t, found, "expected a symlink-follow warning")
}

func TestHasLockdownTrigger(t *testing.T) {
	cfg := &Config{Emergency: EmergencyConfig{AutoLockdownTriggers: []LockdownTrigger{TriggerRepeatedViolations}}}
	assert.True(t, cfg.HasLockdownTrigger(TriggerRepeatedViolations))
	assert.False(t, cfg.HasLockdownTrigger(TriggerResourceExhaustion))
}

func TestToolAllowedInLockdown(t *testing.T) {
	cfg := &Config{Emergency: EmergencyConfig{AllowedTools: []string{"memory", "clock"}}}
	assert.True(t, cfg.ToolAllowedInLockdown("memory"))
	assert.False(t, cfg.ToolAllowedInLockdown("shell"))
}

func TestToolOverrides_RateLimitParsed(t *testing.T) {
	raw := `
[fs]
allow_paths = ["./data"]

[fs.access.Enabled]
symlink_behavior = "no_follow"

[resources]
max_memory_mb = 512
max_concurrent_operations = 4
max_execution_seconds = 30

[tools.shell]
fs_enabled = false
rate_limit_per_minute = 5
`
	cfg, _, err := LoadSecurityConfig([]byte(raw))
	require.NoError(t, err)
	require.Contains(t, cfg.Overrides, "shell")
	assert.NotNil(t, cfg.Overrides["shell"].FSEnabled)
	assert.False(t, *cfg.Overrides["shell"].FSEnabled)
	assert.Equal(t, 5, cfg.RateLimits["shell"])
}

func TestLoadSecurityConfig_HTTPVariants(t *testing.T) {
	disabled := `
[resources]
max_memory_mb = 512
max_concurrent_operations = 4
max_execution_seconds = 30
`
	cfg, _, err := LoadSecurityConfig([]byte(disabled))
	require.NoError(t, err)
	assert.Equal(t, secpolicy.HTTPDisabled, cfg.Policy.HTTP.Mode)
	assert.True(t, cfg.Policy.FS.Access.Disabled)

	localOnly := disabled + `
[http.access.LocalOnly]
`
	cfg, _, err = LoadSecurityConfig([]byte(localOnly))
	require.NoError(t, err)
	assert.Equal(t, secpolicy.HTTPLocalOnly, cfg.Policy.HTTP.Mode)
	assert.True(t, cfg.Policy.HTTP.IncludeLocal)

	internet := disabled + `
[http.access.Internet]
include_local = false
max_redirects = 3
user_agent = "custom-agent/2"

[http.access.Internet.domain_filter.AllowList]
allow = ["example.com", "*.trusted.io"]
deny = ["bad.trusted.io"]
`
	cfg, _, err = LoadSecurityConfig([]byte(internet))
	require.NoError(t, err)
	assert.Equal(t, secpolicy.HTTPInternet, cfg.Policy.HTTP.Mode)
	assert.Equal(t, 3, cfg.Policy.HTTP.MaxRedirects)
	assert.Equal(t, "custom-agent/2", cfg.Policy.HTTP.UserAgent)
	assert.Equal(t, secpolicy.DomainFilterAllowList, cfg.Policy.HTTP.DomainFilter.Mode)
	assert.Contains(t, cfg.Policy.HTTP.DomainFilter.AllowSet, "*.trusted.io")
	assert.Contains(t, cfg.Policy.HTTP.DomainFilter.DenySet, "bad.trusted.io")
}

func TestLoadSecurityConfig_DefaultLockdownToolsAreMemoryOnly(t *testing.T) {
	cfg, _, err := LoadSecurityConfig([]byte(validTOML))
	require.NoError(t, err)
	assert.Equal(t, []string{"memory"}, cfg.Emergency.AllowedTools)
	assert.True(t, cfg.ToolAllowedInLockdown("memory"))
	assert.False(t, cfg.ToolAllowedInLockdown("fs_write"))
}

func TestLoadSecurityConfig_DangerousPortWarning(t *testing.T) {
	sshTOML := `
[resources]
max_memory_mb = 512
max_concurrent_operations = 4
max_execution_seconds = 30

[network]
allow_ports = [22, 443]
`
	_, warnings, err := LoadSecurityConfig([]byte(sshTOML))
	require.NoError(t, err)
	found := false
	for _, w := range warnings {
		if w.Field == "network.allow_ports" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLoadSecurityConfig_MalformedTOML(t *testing.T) {
	_, _, err := LoadSecurityConfig([]byte("[fs\nbroken"))
	require.Error(t, err)
}
