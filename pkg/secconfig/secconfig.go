// Package secconfig loads the declarative TOML security
// configuration: capability policies, resource limits, audit and
// alerting knobs, development mode, and emergency-lockdown triggers.
// Tagged-variant tables are distinguished by which sub-table was
// present in the decoded document, not by Go zero values, so an absent
// table can never be mistaken for an explicit setting.
package secconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/corvidlabs/gatekeeper/pkg/secpolicy"
)

// Metadata is the config's free-form identification table.
type Metadata struct {
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	Description string `toml:"description"`
}

// FSConfig is the raw TOML shape of the filesystem sub-policy. Access
// is a tagged variant: the raw decoder distinguishes "Disabled" from
// an explicit `[fs.access.Enabled]` table by which field was set in
// the decoded map, not by Go zero values.
type FSConfig struct {
	Access struct {
		Disabled bool `toml:"-"`
		Enabled  *struct {
			SymlinkBehavior string `toml:"symlink_behavior"`
			ContentScanning bool   `toml:"content_scanning"`
		} `toml:"Enabled"`
	} `toml:"access"`
	AllowPaths    []string `toml:"allow_paths"`
	DenyPatterns  []string `toml:"deny_patterns"`
	MaxFileSize   uint64   `toml:"max_file_size"`
	MaxFilesPerOp int      `toml:"max_files_per_op"`
}

// HTTPConfig is the raw TOML shape of the HTTP sub-policy.
type HTTPConfig struct {
	Access struct {
		LocalOnly *struct{} `toml:"LocalOnly"`
		Internet  *struct {
			DomainFilter struct {
				AllowAll *struct {
					DenyList []string `toml:"deny_list"`
				} `toml:"AllowAll"`
				AllowList *struct {
					Allow []string `toml:"allow"`
					Deny  []string `toml:"deny"`
				} `toml:"AllowList"`
			} `toml:"domain_filter"`
			IncludeLocal bool   `toml:"include_local"`
			MaxRedirects int    `toml:"max_redirects"`
			UserAgent    string `toml:"user_agent"`
		} `toml:"Internet"`
	} `toml:"access"`
	AllowMethods   []string          `toml:"allow_methods"`
	DefaultHeaders map[string]string `toml:"default_headers"`
}

// NetworkConfig is the raw TOML shape of the network sub-policy.
type NetworkConfig struct {
	AllowPorts   []int `toml:"allow_ports"`
	DenyPorts    []int `toml:"deny_ports"`
	TTLSeconds   int64 `toml:"ttl_seconds"`
	AllowPrivate bool  `toml:"allow_private"`
}

// ResourcesConfig is the raw TOML shape of resource limits.
type ResourcesConfig struct {
	MaxMemoryMB         uint64  `toml:"max_memory_mb"`
	MaxCPUPercent       float64 `toml:"max_cpu_percent"`
	MaxExecutionSeconds int64   `toml:"max_execution_seconds"`
	MaxConcurrentOps    int     `toml:"max_concurrent_operations"`
	MaxOpenFiles        int     `toml:"max_open_files"`
	MaxDiskUsageMB      uint64  `toml:"max_disk_usage_mb"`
	GlobalMaxConcurrent int     `toml:"global_max_concurrent"`
}

// AuditConfig controls the audit pipeline's minimum emitted severity
// and output format.
type AuditConfig struct {
	MinSeverity string `toml:"min_severity"`
	Format      string `toml:"format"`
}

// SecretsConfig bounds the credential/auth layer.
type SecretsConfig struct {
	MinSecretLength int `toml:"min_secret_length"`
}

// ToolOverrideConfig is the raw TOML shape of a `[tools.<name>]` entry.
type ToolOverrideConfig struct {
	FSEnabled          *bool `toml:"fs_enabled"`
	HTTPEnabled        *bool `toml:"http_enabled"`
	NetworkEnabled     *bool `toml:"network_enabled"`
	RateLimitPerMinute *int  `toml:"rate_limit_per_minute"`
}

// AlertingConfig controls whether and to whom alerts are sent.
type AlertingConfig struct {
	Enabled           bool     `toml:"enabled"`
	Recipients        []string `toml:"recipients"`
	ThresholdPerWindow int     `toml:"threshold_per_window"`
}

// DevelopmentConfig, when Enabled, disables selected gates. Its use
// must be prominently logged by the caller of LoadSecurityConfig.
type DevelopmentConfig struct {
	Enabled             bool `toml:"enabled"`
	DisableDomainGate   bool `toml:"disable_domain_gate"`
	DisablePathGate     bool `toml:"disable_path_gate"`
	DisableResourceGate bool `toml:"disable_resource_gate"`
}

// LockdownTrigger is the closed set of conditions that can flip the
// system into emergency lockdown automatically.
type LockdownTrigger string

const (
	TriggerRepeatedViolations LockdownTrigger = "repeated_violations"
	TriggerResourceExhaustion LockdownTrigger = "resource_exhaustion"
	TriggerManualOverride     LockdownTrigger = "manual_override"
)

// EmergencyConfig controls lockdown mode: when enabled, tool
// invocation is restricted to AllowedTools (default: memory only).
type EmergencyConfig struct {
	LockdownEnabled      bool              `toml:"lockdown_enabled"`
	AllowedTools         []string          `toml:"allowed_tools"`
	AutoLockdownTriggers []LockdownTrigger `toml:"auto_lockdown_triggers"`
}

// RawConfig is the top-level TOML document shape. Decoded first into
// this, then translated into the typed Config used by the rest of the
// core.
type RawConfig struct {
	Metadata    Metadata                      `toml:"metadata"`
	FS          FSConfig                      `toml:"fs"`
	HTTP        HTTPConfig                    `toml:"http"`
	Network     NetworkConfig                 `toml:"network"`
	Resources   ResourcesConfig               `toml:"resources"`
	Audit       AuditConfig                   `toml:"audit"`
	Secrets     SecretsConfig                 `toml:"secrets"`
	Tools       map[string]ToolOverrideConfig  `toml:"tools"`
	Alerting    AlertingConfig                 `toml:"alerting"`
	Development DevelopmentConfig             `toml:"development"`
	Emergency   EmergencyConfig                `toml:"emergency"`
}

// Config is the fully validated, typed security configuration the
// rest of the core consumes.
type Config struct {
	Metadata    Metadata
	Policy      secpolicy.SecurityPolicy
	Overrides   map[string]secpolicy.ToolOverride
	Resources   ResourcesConfig
	Audit       AuditConfig
	Secrets     SecretsConfig
	RateLimits  map[string]int // tool name -> per-minute limit override
	Alerting    AlertingConfig
	Development DevelopmentConfig
	Emergency   EmergencyConfig
	ReapInterval time.Duration // admission reaper tick; defaults to 30s
}

// Warning is a non-fatal configuration concern, returned alongside a
// successfully loaded Config rather than only logged, so a CLI can
// surface it distinctly from fatal validation errors.
type Warning struct {
	Field   string
	Message string
}

func (w Warning) String() string { return fmt.Sprintf("%s: %s", w.Field, w.Message) }

// LoadSecurityConfig decodes raw TOML bytes into a validated Config.
// Validation failures are fatal (returned as the error); concerns
// that don't block loading are returned as Warnings for the caller
// (e.g. a CLI) to surface separately.
func LoadSecurityConfig(data []byte) (*Config, []Warning, error) {
	var raw RawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parse security config: %w", err)
	}
	return fromRaw(raw)
}

func fromRaw(raw RawConfig) (*Config, []Warning, error) {
	cfg := &Config{
		Metadata:    raw.Metadata,
		Resources:   raw.Resources,
		Audit:       raw.Audit,
		Secrets:     raw.Secrets,
		Alerting:    raw.Alerting,
		Development: raw.Development,
		Emergency:   raw.Emergency,
		Overrides:   map[string]secpolicy.ToolOverride{},
		RateLimits:  map[string]int{},
		ReapInterval: 30 * time.Second,
	}

	cfg.Policy.FS = fsPolicyFromRaw(raw.FS)
	cfg.Policy.HTTP = httpPolicyFromRaw(raw.HTTP)
	cfg.Policy.Network = secpolicy.NetworkPolicy{
		AllowPorts:   raw.Network.AllowPorts,
		DenyPorts:    raw.Network.DenyPorts,
		TTL:          time.Duration(raw.Network.TTLSeconds) * time.Second,
		AllowPrivate: raw.Network.AllowPrivate,
	}

	for name, ov := range raw.Tools {
		cfg.Overrides[name] = secpolicy.ToolOverride{
			FSEnabled:      ov.FSEnabled,
			HTTPEnabled:    ov.HTTPEnabled,
			NetworkEnabled: ov.NetworkEnabled,
			RateLimitPerMinute: ov.RateLimitPerMinute,
		}
		if ov.RateLimitPerMinute != nil {
			cfg.RateLimits[name] = *ov.RateLimitPerMinute
		}
	}
	if len(raw.Emergency.AllowedTools) == 0 {
		cfg.Emergency.AllowedTools = []string{"memory"}
	}

	warnings := validateWarnings(cfg)
	if err := validateFatal(cfg); err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

func fsPolicyFromRaw(raw FSConfig) secpolicy.FSPolicy {
	access := secpolicy.FSAccess{Disabled: true}
	if raw.Access.Enabled != nil {
		behavior := secpolicy.SymlinkNoFollow
		if strings.EqualFold(raw.Access.Enabled.SymlinkBehavior, "follow") {
			behavior = secpolicy.SymlinkFollow
		}
		access = secpolicy.FSAccess{
			Disabled:        false,
			SymlinkBehavior: behavior,
			ContentScanning: raw.Access.Enabled.ContentScanning,
		}
	}
	return secpolicy.FSPolicy{
		Access:        access,
		AllowPaths:    raw.AllowPaths,
		DenyPatterns:  raw.DenyPatterns,
		MaxFileSizeBy: raw.MaxFileSize,
		MaxFilesPerOp: raw.MaxFilesPerOp,
	}
}

func httpPolicyFromRaw(raw HTTPConfig) secpolicy.HTTPPolicy {
	policy := secpolicy.HTTPPolicy{
		Mode:           secpolicy.HTTPDisabled,
		AllowMethods:   raw.AllowMethods,
		DefaultHeaders: raw.DefaultHeaders,
		MaxRedirects:   5,
		UserAgent:      "gatekeeper/1.0",
	}
	switch {
	case raw.Access.LocalOnly != nil:
		policy.Mode = secpolicy.HTTPLocalOnly
		policy.IncludeLocal = true
	case raw.Access.Internet != nil:
		in := raw.Access.Internet
		policy.Mode = secpolicy.HTTPInternet
		policy.IncludeLocal = in.IncludeLocal
		if in.MaxRedirects > 0 {
			policy.MaxRedirects = in.MaxRedirects
		}
		if in.UserAgent != "" {
			policy.UserAgent = in.UserAgent
		}
		switch {
		case in.DomainFilter.AllowList != nil:
			policy.DomainFilter = secpolicy.DomainFilter{
				Mode:     secpolicy.DomainFilterAllowList,
				AllowSet: in.DomainFilter.AllowList.Allow,
				DenySet:  in.DomainFilter.AllowList.Deny,
			}
		case in.DomainFilter.AllowAll != nil:
			policy.DomainFilter = secpolicy.DomainFilter{
				Mode:    secpolicy.DomainFilterAllowAll,
				DenySet: in.DomainFilter.AllowAll.DenyList,
			}
		default:
			policy.DomainFilter = secpolicy.DomainFilter{Mode: secpolicy.DomainFilterAllowAll}
		}
	}
	return policy
}

// validateFatal holds the fail-fast rules: a config that violates any
// of these is rejected outright, never auto-repaired.
func validateFatal(cfg *Config) error {
	var problems []string

	if cfg.Resources.MaxMemoryMB == 0 {
		problems = append(problems, "resources.max_memory_mb must be non-zero")
	}
	if cfg.Resources.MaxConcurrentOps == 0 {
		problems = append(problems, "resources.max_concurrent_operations must be non-zero")
	}
	if cfg.Resources.MaxExecutionSeconds == 0 {
		problems = append(problems, "resources.max_execution_seconds must be non-zero")
	}
	if !cfg.Policy.FS.Access.Disabled && len(cfg.Policy.FS.AllowPaths) == 0 {
		problems = append(problems, "fs.allow_paths must be non-empty when filesystem access is enabled")
	}
	for _, p := range cfg.Policy.FS.AllowPaths {
		if strings.Contains(p, "..") {
			problems = append(problems, fmt.Sprintf("fs.allow_paths entry %q must not contain \"..\"", p))
		}
	}
	if cfg.Alerting.Enabled && cfg.Alerting.ThresholdPerWindow == 0 {
		problems = append(problems, "alerting.threshold_per_window must be non-zero when alerting is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid security configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// validateWarnings holds the log-only concerns: these never block
// loading but are surfaced distinctly from fatal errors.
func validateWarnings(cfg *Config) []Warning {
	var warnings []Warning

	if cfg.Policy.FS.Access.SymlinkBehavior == secpolicy.SymlinkFollow {
		warnings = append(warnings, Warning{"fs.access.Enabled.symlink_behavior", "symlink following is enabled; TOCTOU protection is weakened"})
	}
	if cfg.Policy.Network.AllowPrivate {
		warnings = append(warnings, Warning{"network.allow_private", "private-network access is enabled"})
	}
	if cfg.Policy.HTTP.IncludeLocal && !cfg.Development.Enabled {
		warnings = append(warnings, Warning{"http.access.Internet.include_local", "include_local is enabled outside development mode"})
	}
	for _, p := range cfg.Policy.Network.AllowPorts {
		if p == 22 || p == 23 || p == 3389 {
			warnings = append(warnings, Warning{"network.allow_ports", fmt.Sprintf("dangerous port %d is in the allow list", p)})
		}
	}
	if cfg.Alerting.Enabled && len(cfg.Alerting.Recipients) == 0 {
		warnings = append(warnings, Warning{"alerting.recipients", "alerting is enabled with no recipients configured"})
	}
	if cfg.Secrets.MinSecretLength > 0 && cfg.Secrets.MinSecretLength < 16 {
		warnings = append(warnings, Warning{"secrets.min_secret_length", "minimum secret length is below the recommended 16 characters"})
	}

	return warnings
}

// HasLockdownTrigger reports whether t is among the configured
// auto-lockdown triggers.
func (c *Config) HasLockdownTrigger(t LockdownTrigger) bool {
	for _, trig := range c.Emergency.AutoLockdownTriggers {
		if trig == t {
			return true
		}
	}
	return false
}

// ToolAllowedInLockdown reports whether tool may still be invoked
// while lockdown is active.
func (c *Config) ToolAllowedInLockdown(tool string) bool {
	for _, t := range c.Emergency.AllowedTools {
		if strings.EqualFold(t, tool) {
			return true
		}
	}
	return false
}
