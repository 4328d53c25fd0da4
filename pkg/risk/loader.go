package risk

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// policyDocument is the YAML shape of a policy pack file: a named
// policy plus its rule configuration.
type policyDocument struct {
	Name   string `yaml:"name"`
	Config Config `yaml:"config"`
}

var validActions = map[Action]bool{
	"":            true, // absent action falls back to the evaluator's defaults
	ActionApprove: true,
	ActionAuto:    true,
	ActionContext: true,
	ActionReject:  true,
}

// ParsePolicyYAML decodes a policy pack document, rejecting unknown
// action values outright rather than letting them silently evaluate as
// "no rule matched".
func ParsePolicyYAML(data []byte) (*Policy, error) {
	var doc policyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy pack: %w", err)
	}
	if doc.Name == "" {
		doc.Name = "policy-pack"
	}

	for category, rule := range doc.Config.Categories {
		if !validActions[rule.Action] {
			return nil, fmt.Errorf("category %q: unknown action %q", category, rule.Action)
		}
	}
	for _, rule := range doc.Config.RiskRules {
		if rule.Condition == "" {
			return nil, fmt.Errorf("risk rule with score %d has no condition", rule.Score)
		}
		if !validActions[rule.Action] {
			return nil, fmt.Errorf("risk rule %q: unknown action %q", rule.Condition, rule.Action)
		}
	}
	if !validActions[doc.Config.Defaults.Action] {
		return nil, fmt.Errorf("defaults: unknown action %q", doc.Config.Defaults.Action)
	}

	now := time.Now()
	return &Policy{
		Name:      doc.Name,
		IsActive:  true,
		Config:    doc.Config,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// LoadPolicyFile reads and parses a YAML policy pack from disk.
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy pack: %w", err)
	}
	return ParsePolicyYAML(data)
}
