//nolint:lll // Long validation messages
package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/amp-labs/wizard/statemachine"
	"github.com/amp-labs/wizard/validate"
)

// Severity defines the severity level of a validation issue.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

// RuleResult contains both errors and warnings from a rule check.
type RuleResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// Rule defines a validation rule that can check a definition for specific issues.
type Rule interface {
	Name() string
	Severity() Severity
	Check(cfg *statemachine.DefinitionConfig) RuleResult
}

// DefaultRules returns the standard set of validation rules. Guard names are checked against reg
// when it is not nil.
func DefaultRules(reg *validate.Registry) []Rule {
	rules := []Rule{
		&endpointsRule{},
		&unknownStepRule{},
		&unreachableStepRule{},
		&missingTransitionRule{},
		&terminalTransitionRule{},
		&duplicateTransitionRule{},
		&requiredActionRule{},
		&conditionRule{},
		&namingConventionRule{},
		&cyclicTransitionRule{},
	}

	if reg != nil {
		rules = append(rules, &guardRule{registry: reg})
	}

	return append(rules, RegisteredRules...)
}

// RegisteredRules stores custom validation rules.
var RegisteredRules []Rule

// RegisterRule adds a custom validation rule.
func RegisterRule(rule Rule) {
	RegisteredRules = append(RegisteredRules, rule)
}

func declared(cfg *statemachine.DefinitionConfig) map[string]bool {
	steps := make(map[string]bool, len(cfg.Steps))
	for _, step := range cfg.Steps {
		steps[step.Name] = true
	}

	return steps
}

// endpointsRule checks that the flow names its initial and terminal steps.
type endpointsRule struct{}

func (r *endpointsRule) Name() string {
	return "Endpoints"
}

func (r *endpointsRule) Severity() Severity {
	return SeverityError
}

func (r *endpointsRule) Check(cfg *statemachine.DefinitionConfig) RuleResult {
	var errors []ValidationError

	steps := declared(cfg)

	if cfg.Name == "" {
		errors = append(errors, ValidationError{
			Code:    "MISSING_NAME",
			Message: "Definition has no name",
		})
	}

	for kind, step := range map[string]string{"initial": cfg.Initial, "terminal": cfg.Terminal} {
		switch {
		case step == "":
			errors = append(errors, ValidationError{
				Code:    "MISSING_" + strings.ToUpper(kind),
				Message: fmt.Sprintf("Definition has no %s step", kind),
			})
		case !steps[step]:
			errors = append(errors, ValidationError{
				Code:     "UNKNOWN_STEP",
				Message:  fmt.Sprintf("The %s step '%s' is not declared", kind, step),
				Location: Location{Step: step},
				Fix:      AddStep(step),
			})
		}
	}

	slices.SortFunc(errors, func(a, b ValidationError) int { return strings.Compare(a.Message, b.Message) })

	return RuleResult{Errors: errors}
}

// unknownStepRule checks transitions and back targets for undeclared steps.
type unknownStepRule struct{}

func (r *unknownStepRule) Name() string {
	return "UnknownStep"
}

func (r *unknownStepRule) Severity() Severity {
	return SeverityError
}

func (r *unknownStepRule) Check(cfg *statemachine.DefinitionConfig) RuleResult {
	var errors []ValidationError

	steps := declared(cfg)

	for i, t := range cfg.Transitions {
		for _, step := range []string{t.From, t.To} {
			if !steps[step] {
				errors = append(errors, ValidationError{
					Code:     "UNKNOWN_STEP",
					Message:  fmt.Sprintf("Transition '%s' -> '%s' refers to undeclared step '%s'", t.From, t.To, step),
					Location: Location{Step: step, Line: i + 1},
					Fix:      AddStep(step),
				})
			}
		}
	}

	for _, step := range cfg.Steps {
		if step.Back != "" && !steps[step.Back] {
			errors = append(errors, ValidationError{
				Code:     "UNKNOWN_STEP",
				Message:  fmt.Sprintf("Step '%s' goes back to undeclared step '%s'", step.Name, step.Back),
				Location: Location{Step: step.Name},
			})
		}
	}

	return RuleResult{Errors: errors}
}

// unreachableStepRule checks for steps that cannot be reached from the initial step.
type unreachableStepRule struct{}

func (r *unreachableStepRule) Name() string {
	return "UnreachableStep"
}

func (r *unreachableStepRule) Severity() Severity {
	return SeverityError
}

func (r *unreachableStepRule) Check(cfg *statemachine.DefinitionConfig) RuleResult {
	var errors []ValidationError

	reachable := map[string]bool{cfg.Initial: true}

	queue := []string{cfg.Initial}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, t := range cfg.Transitions {
			if t.From == current && !reachable[t.To] {
				reachable[t.To] = true
				queue = append(queue, t.To)
			}
		}
	}

	for _, step := range cfg.Steps {
		if !reachable[step.Name] {
			errors = append(errors, ValidationError{
				Code:     "UNREACHABLE_STEP",
				Message:  fmt.Sprintf("Step '%s' cannot be reached from initial step '%s'", step.Name, cfg.Initial),
				Location: Location{Step: step.Name},
				Fix:      RemoveUnreachableStep(step.Name),
			})
		}
	}

	return RuleResult{Errors: errors}
}

// missingTransitionRule checks for non-terminal steps without outgoing transitions.
type missingTransitionRule struct{}

func (r *missingTransitionRule) Name() string {
	return "MissingTransition"
}

func (r *missingTransitionRule) Severity() Severity {
	return SeverityError
}

func (r *missingTransitionRule) Check(cfg *statemachine.DefinitionConfig) RuleResult {
	var errors []ValidationError

	hasOutgoing := make(map[string]bool)
	for _, t := range cfg.Transitions {
		hasOutgoing[t.From] = true
	}

	for _, step := range cfg.Steps {
		if step.Name != cfg.Terminal && !hasOutgoing[step.Name] {
			var fix *Fix
			if cfg.Terminal != "" {
				fix = AddMissingTransition(step.Name, cfg.Terminal)
			}

			errors = append(errors, ValidationError{
				Code:     "MISSING_TRANSITION",
				Message:  fmt.Sprintf("Non-terminal step '%s' has no outgoing transitions", step.Name),
				Location: Location{Step: step.Name},
				Fix:      fix,
			})
		}
	}

	return RuleResult{Errors: errors}
}

// terminalTransitionRule checks that nothing leaves the terminal step.
type terminalTransitionRule struct{}

func (r *terminalTransitionRule) Name() string {
	return "TerminalTransition"
}

func (r *terminalTransitionRule) Severity() Severity {
	return SeverityError
}

func (r *terminalTransitionRule) Check(cfg *statemachine.DefinitionConfig) RuleResult {
	var errors []ValidationError

	for i, t := range cfg.Transitions {
		if t.From == cfg.Terminal {
			errors = append(errors, ValidationError{
				Code:     "TERMINAL_TRANSITION",
				Message:  fmt.Sprintf("Terminal step '%s' has an outgoing transition to '%s'", t.From, t.To),
				Location: Location{Step: t.From, Line: i + 1},
				Fix:      RemoveTransition(t.From, t.To),
			})
		}
	}

	return RuleResult{Errors: errors}
}

// duplicateTransitionRule checks for more than one transition between the same two steps.
type duplicateTransitionRule struct{}

func (r *duplicateTransitionRule) Name() string {
	return "DuplicateTransition"
}

func (r *duplicateTransitionRule) Severity() Severity {
	return SeverityError
}

func (r *duplicateTransitionRule) Check(cfg *statemachine.DefinitionConfig) RuleResult {
	var errors []ValidationError

	seen := make(map[string]bool)

	for i, t := range cfg.Transitions {
		key := t.From + "->" + t.To
		if seen[key] {
			errors = append(errors, ValidationError{
				Code:     "DUPLICATE_TRANSITION",
				Message:  fmt.Sprintf("Duplicate transition from '%s' to '%s'; combine their guards into one", t.From, t.To),
				Location: Location{Step: t.From, Line: i + 1},
				Fix:      RemoveDuplicateTransition(t.From, t.To),
			})
		}

		seen[key] = true
	}

	return RuleResult{Errors: errors}
}

// requiredActionRule checks that "requires" names an action declared on the source step.
type requiredActionRule struct{}

func (r *requiredActionRule) Name() string {
	return "RequiredAction"
}

func (r *requiredActionRule) Severity() Severity {
	return SeverityError
}

func (r *requiredActionRule) Check(cfg *statemachine.DefinitionConfig) RuleResult {
	var errors []ValidationError

	for i, t := range cfg.Transitions {
		if t.Requires == "" {
			continue
		}

		step, ok := cfg.Step(t.From)
		if ok && slices.Contains(step.Actions, t.Requires) {
			continue
		}

		errors = append(errors, ValidationError{
			Code:     "UNDECLARED_ACTION",
			Message:  fmt.Sprintf("Transition '%s' -> '%s' requires action '%s', which step '%s' does not declare", t.From, t.To, t.Requires, t.From),
			Location: Location{Step: t.From, Line: i + 1},
			Fix:      DeclareAction(t.From, t.Requires),
		})
	}

	return RuleResult{Errors: errors}
}

// conditionRule checks that every "when" expression compiles.
type conditionRule struct{}

func (r *conditionRule) Name() string {
	return "Condition"
}

func (r *conditionRule) Severity() Severity {
	return SeverityError
}

func (r *conditionRule) Check(cfg *statemachine.DefinitionConfig) RuleResult {
	var errors []ValidationError

	for i, t := range cfg.Transitions {
		if t.When == "" {
			continue
		}

		_, err := statemachine.CompileCondition(t.When)
		if err != nil {
			errors = append(errors, ValidationError{
				Code:     "INVALID_CONDITION",
				Message:  fmt.Sprintf("Transition '%s' -> '%s': %v", t.From, t.To, err),
				Location: Location{Step: t.From, Line: i + 1},
			})
		}
	}

	return RuleResult{Errors: errors}
}

// guardRule checks guard names against the registry.
type guardRule struct {
	registry *validate.Registry
}

func (r *guardRule) Name() string {
	return "Guard"
}

func (r *guardRule) Severity() Severity {
	return SeverityError
}

func (r *guardRule) Check(cfg *statemachine.DefinitionConfig) RuleResult {
	var errors []ValidationError

	for i, t := range cfg.Transitions {
		for _, spec := range t.Guards {
			_, err := r.registry.Build(spec)
			if err != nil {
				errors = append(errors, ValidationError{
					Code:     "INVALID_GUARD",
					Message:  fmt.Sprintf("Transition '%s' -> '%s': %v (known rules: %s)", t.From, t.To, err, strings.Join(r.registry.Names(), ", ")),
					Location: Location{Step: t.From, Line: i + 1},
				})
			}
		}
	}

	return RuleResult{Errors: errors}
}

// namingConventionRule warns about step and action names that are not kebab-case. Names end up
// in URLs, span names and metric labels.
type namingConventionRule struct{}

func (r *namingConventionRule) Name() string {
	return "NamingConvention"
}

func (r *namingConventionRule) Severity() Severity {
	return SeverityWarning
}

func (r *namingConventionRule) Check(cfg *statemachine.DefinitionConfig) RuleResult {
	var warnings []ValidationWarning

	for _, step := range cfg.Steps {
		if !isKebabCase(step.Name) {
			warnings = append(warnings, ValidationWarning{
				Code:     "NAMING_CONVENTION",
				Message:  fmt.Sprintf("Step '%s' should use kebab-case naming (suggested: '%s')", step.Name, toKebabCase(step.Name)),
				Location: Location{Step: step.Name},
			})
		}

		for _, action := range step.Actions {
			if !isKebabCase(action) {
				warnings = append(warnings, ValidationWarning{
					Code:     "NAMING_CONVENTION",
					Message:  fmt.Sprintf("Action '%s' should use kebab-case naming (suggested: '%s')", action, toKebabCase(action)),
					Location: Location{Step: step.Name},
				})
			}
		}
	}

	return RuleResult{Warnings: warnings}
}

// cyclicTransitionRule warns about forward cycles. Going back is GoBack's job, so a cycle in
// the transition table usually means a rule was written the wrong way round.
type cyclicTransitionRule struct{}

func (r *cyclicTransitionRule) Name() string {
	return "CyclicTransition"
}

func (r *cyclicTransitionRule) Severity() Severity {
	return SeverityWarning
}

func (r *cyclicTransitionRule) Check(cfg *statemachine.DefinitionConfig) RuleResult {
	var warnings []ValidationWarning

	graph := make(map[string][]string)
	for _, t := range cfg.Transitions {
		graph[t.From] = append(graph[t.From], t.To)
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var dfs func(string)

	dfs = func(step string) {
		visited[step] = true
		recStack[step] = true

		for _, next := range graph[step] {
			if !visited[next] {
				dfs(next)
			} else if recStack[next] {
				warnings = append(warnings, ValidationWarning{
					Code:     "CYCLIC_TRANSITION",
					Message:  fmt.Sprintf("Transition '%s' -> '%s' closes a cycle; use a back target instead", step, next),
					Location: Location{Step: step},
				})
			}
		}

		recStack[step] = false
	}

	for _, step := range cfg.Steps {
		if !visited[step.Name] {
			dfs(step.Name)
		}
	}

	return RuleResult{Warnings: warnings}
}

func isKebabCase(s string) bool {
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || r == '_' || r == ' ' {
			return false
		}
	}

	return true
}

func toKebabCase(s string) string {
	var result []rune

	for i, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				result = append(result, '-')
			}

			result = append(result, r+'a'-'A')
		case r == '_' || r == ' ':
			result = append(result, '-')
		default:
			result = append(result, r)
		}
	}

	return string(result)
}
