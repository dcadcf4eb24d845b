package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/VerdantProject/verdant/pkg/optimizer"
)

// Evaluator evaluates scheduling decisions against a policy using CEL.
type Evaluator struct {
	policy   *Policy
	env      *cel.Env
	programs map[string]cel.Program
	mu       sync.RWMutex
}

// Verdict is the outcome of evaluating one decision.
type Verdict struct {
	Action Action

	// MatchedRule is the name of the rule that determined the action.
	// Empty when no rule matched and the decision is allowed.
	MatchedRule string
}

// NewEvaluator compiles the policy's rule conditions.
func NewEvaluator(policy *Policy) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("decision", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	programs, err := compileRules(env, policy)
	if err != nil {
		return nil, err
	}

	return &Evaluator{
		policy:   policy,
		env:      env,
		programs: programs,
	}, nil
}

func compileRules(env *cel.Env, policy *Policy) (map[string]cel.Program, error) {
	programs := make(map[string]cel.Program)
	for _, rule := range policy.Rules {
		ast, issues := env.Compile(rule.Condition)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile rule %q: %w", rule.Name, issues.Err())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("create program for rule %q: %w", rule.Name, err)
		}
		programs[rule.Name] = program
	}
	return programs, nil
}

// Evaluate returns the first matching rule's action, walking rules in
// priority order. A rule whose condition errors is skipped rather than
// failing the whole evaluation. No match means the decision stands.
func (e *Evaluator) Evaluate(ctx context.Context, d optimizer.Decision, currentRegion string, portable bool) (Verdict, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	decisionMap := decisionToMap(d, currentRegion, portable)

	for _, rule := range e.policy.SortedRules() {
		program := e.programs[rule.Name]

		out, _, err := program.Eval(map[string]any{
			"decision": decisionMap,
		})
		if err != nil {
			continue
		}

		if out.Type() == types.BoolType && out.Value().(bool) {
			return Verdict{Action: rule.Action, MatchedRule: rule.Name}, nil
		}
	}

	return Verdict{Action: ActionAllow}, nil
}

// UpdatePolicy replaces the current policy, compiling it first so a
// broken policy never displaces a working one.
func (e *Evaluator) UpdatePolicy(policy *Policy) error {
	programs, err := compileRules(e.env, policy)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.policy = policy
	e.programs = programs
	e.mu.Unlock()

	return nil
}

// Policy returns the current policy.
func (e *Evaluator) Policy() *Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// decisionToMap converts a decision for CEL evaluation.
func decisionToMap(d optimizer.Decision, currentRegion string, portable bool) map[string]any {
	return map[string]any{
		"kind":               string(d.Kind),
		"region":             d.Region,
		"current_region":     currentRegion,
		"start_at":           d.StartAt.Format(time.RFC3339),
		"expected_intensity": d.ExpectedIntensity,
		"savings_percent":    d.SavingsPercent,
		"portable":           portable,
	}
}
