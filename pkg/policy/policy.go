// Package policy applies operator-defined CEL rules on top of the
// optimizer's decision, so site-specific constraints (change freezes,
// data-residency, off-hours windows) can veto or force an action
// without recompiling the engine.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Action is what a matched rule does to a scheduling decision.
type Action string

const (
	// ActionAllow accepts the decision as computed.
	ActionAllow Action = "allow"

	// ActionForceRunNow overrides any decision with an immediate start.
	ActionForceRunNow Action = "force_run_now"

	// ActionForbidDefer downgrades a deferral to an immediate start.
	ActionForbidDefer Action = "forbid_defer"

	// ActionForbidRelocate keeps the workload in its current region.
	ActionForbidRelocate Action = "forbid_relocate"
)

// Policy defines a set of rules applied to scheduling decisions.
type Policy struct {
	// Rules are evaluated in priority order (highest first).
	// The first matching rule determines the action.
	Rules []Rule `yaml:"rules"`
}

// Rule defines a single decision rule.
type Rule struct {
	// Name identifies the rule for logging and debugging.
	Name string `yaml:"name"`

	// Condition is a CEL expression evaluated against a 'decision'
	// variable with fields:
	//   - decision.kind (string): RUN_NOW, DEFER, RELOCATE
	//   - decision.region (string): chosen region code
	//   - decision.current_region (string): the workload's home region
	//   - decision.start_at (string): RFC3339 chosen start
	//   - decision.expected_intensity (double): gCO2/kWh
	//   - decision.savings_percent (double)
	//   - decision.portable (bool)
	Condition string `yaml:"condition"`

	// Action applies when this rule matches.
	Action Action `yaml:"action"`

	// Priority determines evaluation order. Higher priority rules are
	// evaluated first. Rules with the same priority are evaluated in
	// definition order.
	Priority int `yaml:"priority"`
}

// Load reads a policy from a YAML file.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data)
}

// Parse parses a policy from YAML data.
func Parse(data []byte) (*Policy, error) {
	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse policy YAML: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("validate policy: %w", err)
	}
	return &policy, nil
}

// Validate checks that the policy is well-formed.
func (p *Policy) Validate() error {
	if len(p.Rules) == 0 {
		return fmt.Errorf("policy must have at least one rule")
	}

	for i, rule := range p.Rules {
		if rule.Name == "" {
			return fmt.Errorf("rule %d: name is required", i)
		}
		if rule.Condition == "" {
			return fmt.Errorf("rule %q: condition is required", rule.Name)
		}
		switch rule.Action {
		case ActionAllow, ActionForceRunNow, ActionForbidDefer, ActionForbidRelocate:
		default:
			return fmt.Errorf("rule %q: invalid action %q", rule.Name, rule.Action)
		}
	}

	return nil
}

// SortedRules returns the rules sorted by priority (highest first),
// with stable ordering for rules with the same priority.
func (p *Policy) SortedRules() []Rule {
	sorted := make([]Rule, len(p.Rules))
	copy(sorted, p.Rules)

	for i := 1; i < len(sorted); i++ {
		j := i
		for j > 0 && sorted[j].Priority > sorted[j-1].Priority {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
			j--
		}
	}

	return sorted
}
