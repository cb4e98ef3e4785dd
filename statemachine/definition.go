package statemachine

import (
	"fmt"
	"slices"
)

// Definition is the immutable transition table of one flow. Build one with NewBuilder or load it
// from YAML with LoadDefinition, then share it between any number of machines.
type Definition struct {
	Name     string
	Initial  Step
	Terminal Step

	// Destination is handed to the Navigator when the terminal step is reached.
	Destination string

	Steps []Step
	Rules []Rule

	// Back overrides the previous step GoBack returns to. Steps without an entry go back along
	// the path actually walked.
	Back map[Step]Step

	// Actions lists the actions that may run on each step.
	Actions map[Step][]string
}

// Validate checks the definition for unknown steps, duplicate rules, dead ends, forward cycles
// and unreachable steps. Returning to an earlier step is GoBack's job, so a rule that leads back
// to a step already on the path is rejected.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return ErrDefinitionNameRequired
	}

	if d.Initial == "" {
		return ErrInitialStepRequired
	}

	if d.Terminal == "" {
		return ErrTerminalStepRequired
	}

	seen := make(map[Step]bool, len(d.Steps))

	for _, step := range d.Steps {
		if seen[step] {
			return fmt.Errorf("%w: %s", ErrDuplicateStep, step)
		}

		seen[step] = true
	}

	for _, step := range []Step{d.Initial, d.Terminal} {
		if !seen[step] {
			return fmt.Errorf("%w: %s", ErrUnknownStep, step)
		}
	}

	type edge struct{ from, to Step }

	edges := make(map[edge]bool, len(d.Rules))
	outgoing := make(map[Step]int, len(d.Steps))

	for i, rule := range d.Rules {
		if !seen[rule.From] {
			return fmt.Errorf("rule %d: %w: %s", i, ErrUnknownStep, rule.From)
		}

		if !seen[rule.To] {
			return fmt.Errorf("rule %d: %w: %s", i, ErrUnknownStep, rule.To)
		}

		if rule.From == d.Terminal {
			return fmt.Errorf("rule %d: %w: %s", i, ErrTerminalHasRules, rule.From)
		}

		e := edge{rule.From, rule.To}
		if edges[e] {
			return fmt.Errorf("%w: %s -> %s", ErrDuplicateRule, rule.From, rule.To)
		}

		edges[e] = true
		outgoing[rule.From]++

		if rule.Requires != "" && !slices.Contains(d.Actions[rule.From], rule.Requires) {
			return fmt.Errorf("rule %s -> %s: %w: %s", rule.From, rule.To, ErrUnknownAction, rule.Requires)
		}
	}

	for _, step := range d.Steps {
		if step != d.Terminal && outgoing[step] == 0 {
			return fmt.Errorf("%w: %s", ErrDeadEndStep, step)
		}
	}

	if from, to, ok := d.backEdge(); ok {
		return fmt.Errorf("%w: %s -> %s", ErrCyclicRules, from, to)
	}

	for step, prev := range d.Back {
		if !seen[step] || !seen[prev] {
			return fmt.Errorf("back %s -> %s: %w", step, prev, ErrUnknownStep)
		}
	}

	for step := range d.Actions {
		if !seen[step] {
			return fmt.Errorf("actions: %w: %s", ErrUnknownStep, step)
		}
	}

	reachable := d.Reachable()
	for _, step := range d.Steps {
		if !reachable[step] {
			return fmt.Errorf("%w: %s", ErrUnreachableStep, step)
		}
	}

	return nil
}

// backEdge returns the first rule that closes a cycle, walking steps in declaration order.
func (d *Definition) backEdge() (Step, Step, bool) {
	const (
		unvisited = iota
		onPath
		done
	)

	graph := make(map[Step][]Step, len(d.Steps))
	for _, rule := range d.Rules {
		graph[rule.From] = append(graph[rule.From], rule.To)
	}

	state := make(map[Step]int, len(d.Steps))

	var (
		from, to Step
		visit    func(Step) bool
	)

	visit = func(step Step) bool {
		state[step] = onPath

		for _, next := range graph[step] {
			switch state[next] {
			case onPath:
				from, to = step, next

				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}

		state[step] = done

		return false
	}

	for _, step := range d.Steps {
		if state[step] == unvisited && visit(step) {
			return from, to, true
		}
	}

	return "", "", false
}

// Reachable returns every step reachable from the initial step.
func (d *Definition) Reachable() map[Step]bool {
	reachable := map[Step]bool{d.Initial: true}

	queue := []Step{d.Initial}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, rule := range d.Rules {
			if rule.From == current && !reachable[rule.To] {
				reachable[rule.To] = true
				queue = append(queue, rule.To)
			}
		}
	}

	return reachable
}

// Rule returns the rule from one step to another.
func (d *Definition) Rule(from, to Step) (Rule, bool) {
	for _, rule := range d.Rules {
		if rule.From == from && rule.To == to {
			return rule, true
		}
	}

	return Rule{}, false
}

// RulesFrom returns the outgoing rules of a step in declaration order.
func (d *Definition) RulesFrom(from Step) []Rule {
	var out []Rule

	for _, rule := range d.Rules {
		if rule.From == from {
			out = append(out, rule)
		}
	}

	return out
}

// HasAction reports whether the action is declared on the step.
func (d *Definition) HasAction(step Step, action string) bool {
	return slices.Contains(d.Actions[step], action)
}

// HasStep reports whether the step belongs to the flow.
func (d *Definition) HasStep(step Step) bool {
	return slices.Contains(d.Steps, step)
}

// ActionNames returns every declared action once, in step order.
func (d *Definition) ActionNames() []string {
	var names []string

	for _, step := range d.Steps {
		for _, name := range d.Actions[step] {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}

	return names
}
