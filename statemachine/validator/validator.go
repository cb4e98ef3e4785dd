// Package validator lints flow definition files: structural errors that would stop a definition
// from loading, plus warnings and suggestions a reviewer would raise.
package validator

import (
	"fmt"
	"strings"

	"github.com/amp-labs/wizard/statemachine"
	"github.com/amp-labs/wizard/validate"
	"github.com/spf13/afero"
)

// ValidationResult contains the results of validating a flow definition.
type ValidationResult struct {
	Valid       bool
	Errors      []ValidationError
	Warnings    []ValidationWarning
	Suggestions []Suggestion
}

// ValidationError represents a validation error with fix suggestions.
type ValidationError struct {
	Code     string   // Error code like "UNREACHABLE_STEP", "MISSING_TRANSITION"
	Message  string   // Human-readable error message
	Location Location // Where the error occurred
	Fix      *Fix     // Optional auto-fix suggestion
}

// ValidationWarning represents a non-critical issue.
type ValidationWarning struct {
	Code     string
	Message  string
	Location Location
}

// Suggestion provides improvement recommendations.
type Suggestion struct {
	Message string
	Example string
}

// Location identifies where an issue occurred.
type Location struct {
	File string // Definition file path
	Line int    // Transition index + 1 (0 if unknown)
	Step string // Step name if applicable
}

// Validate runs DefaultRules against a definition.
func Validate(cfg *statemachine.DefinitionConfig, reg *validate.Registry) ValidationResult {
	return ValidateWithRules(cfg, DefaultRules(reg))
}

// ValidateFile loads a definition from fsys and validates it. In strict mode warnings count as
// errors.
func ValidateFile(fsys afero.Fs, path string, reg *validate.Registry, strict bool) (ValidationResult, error) {
	data, err := afero.ReadFile(fsys, path)
	if err == nil {
		var cfg *statemachine.DefinitionConfig

		cfg, err = statemachine.ParseDefinitionConfig(data)
		if err == nil {
			rules := DefaultRules(reg)

			var result ValidationResult
			if strict {
				result = ValidateWithRulesStrict(cfg, rules)
			} else {
				result = ValidateWithRules(cfg, rules)
			}

			result.setFile(path)

			return result, nil
		}
	}

	return ValidationResult{
		Valid: false,
		Errors: []ValidationError{
			{
				Code:     "DEFINITION_LOAD_FAILED",
				Message:  fmt.Sprintf("Failed to load definition: %v", err),
				Location: Location{File: path},
			},
		},
	}, err
}

func (r *ValidationResult) setFile(path string) {
	for i := range r.Errors {
		if r.Errors[i].Location.File == "" {
			r.Errors[i].Location.File = path
		}
	}

	for i := range r.Warnings {
		if r.Warnings[i].Location.File == "" {
			r.Warnings[i].Location.File = path
		}
	}
}

// ValidateWithRules validates using custom rules.
func ValidateWithRules(cfg *statemachine.DefinitionConfig, rules []Rule) ValidationResult {
	var result ValidationResult

	for _, rule := range rules {
		ruleResult := rule.Check(cfg)
		result.Errors = append(result.Errors, ruleResult.Errors...)
		result.Warnings = append(result.Warnings, ruleResult.Warnings...)
	}

	result.Valid = len(result.Errors) == 0
	result.Suggestions = generateSuggestions(cfg)

	return result
}

// ValidateWithRulesStrict validates with strict mode (treats warnings as errors).
func ValidateWithRulesStrict(cfg *statemachine.DefinitionConfig, rules []Rule) ValidationResult {
	result := ValidateWithRules(cfg, rules)

	for _, warning := range result.Warnings {
		result.Errors = append(result.Errors, ValidationError{
			Code:     warning.Code,
			Message:  warning.Message,
			Location: warning.Location,
		})
	}

	result.Warnings = nil
	result.Valid = len(result.Errors) == 0

	return result
}

func generateSuggestions(cfg *statemachine.DefinitionConfig) []Suggestion {
	var suggestions []Suggestion

	titled := false

	for _, step := range cfg.Steps {
		if step.Title != "" {
			titled = true

			break
		}
	}

	if !titled && len(cfg.Steps) > 2 {
		suggestions = append(suggestions, Suggestion{
			Message: "Consider giving steps a title for the presentation layer",
			Example: `steps:
  - name: import-wallet
    title: Import your wallet`,
		})
	}

	if cfg.Destination == "" {
		suggestions = append(suggestions, Suggestion{
			Message: "Set a destination so the navigator knows where to go once the flow completes",
			Example: `destination: /dashboard`,
		})
	}

	guarded := false

	for _, t := range cfg.Transitions {
		if len(t.Guards) > 0 || t.When != "" || t.Requires != "" {
			guarded = true

			break
		}
	}

	if !guarded && len(cfg.Transitions) > 1 {
		suggestions = append(suggestions, Suggestion{
			Message: "None of the transitions are guarded; consider validating input before advancing",
			Example: `transitions:
  - from: details
    to: review
    guards:
      - rule: amount
        field: amount`,
		})
	}

	return suggestions
}

// HasErrors returns true if the result has any errors.
func (r ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if the result has any warnings.
func (r ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Fixes returns the fixes attached to the errors.
func (r ValidationResult) Fixes() []*Fix {
	var fixes []*Fix

	for _, err := range r.Errors {
		if err.Fix != nil {
			fixes = append(fixes, err.Fix)
		}
	}

	return fixes
}

// String returns a human-readable summary of validation results.
func (r ValidationResult) String() string {
	var sb strings.Builder

	if r.Valid {
		sb.WriteString("✓ Definition is valid\n")
	} else {
		fmt.Fprintf(&sb, "✗ Definition has %d error(s)\n", len(r.Errors))

		for _, err := range r.Errors {
			fmt.Fprintf(&sb, "  [%s] %s", err.Code, err.Message)

			if err.Location.Step != "" {
				fmt.Fprintf(&sb, " (step: %s)", err.Location.Step)
			}

			sb.WriteString("\n")

			if err.Fix != nil {
				fmt.Fprintf(&sb, "    Fix: %s\n", err.Fix.Description)
			}
		}
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(&sb, "\n⚠ %d warning(s):\n", len(r.Warnings))

		for _, warn := range r.Warnings {
			fmt.Fprintf(&sb, "  [%s] %s\n", warn.Code, warn.Message)
		}
	}

	if len(r.Suggestions) > 0 {
		fmt.Fprintf(&sb, "\n💡 %d suggestion(s) for improvement\n", len(r.Suggestions))

		for _, s := range r.Suggestions {
			fmt.Fprintf(&sb, "  - %s\n", s.Message)
		}
	}

	return sb.String()
}
