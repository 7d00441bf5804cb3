package onboarding

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"onboardflow/backend/pkg/models"
)

// Definition is a complete, validated workflow definition. Step transitions
// are data loaded from configuration, not compiled code; the workflow
// interprets them at runtime.
type Definition struct {
	Name        string                  `json:"name" yaml:"name"`
	InitialStep string                  `json:"initial_step,omitempty" yaml:"initial_step,omitempty"`
	Steps       []models.StepDefinition `json:"steps" yaml:"steps"`
}

// LoadDefinition reads and validates a workflow definition from a YAML file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow definition: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing workflow definition: %w", err)
	}

	if def.InitialStep == "" && len(def.Steps) > 0 {
		def.InitialStep = def.Steps[0].Name
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return &def, nil
}

// Validate checks the structural invariants of the definition: unique step
// names, resolvable transitions, an initial step that exists, and termination
// of every transition chain.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow definition has no name")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %q has no steps", d.Name)
	}

	byName := make(map[string]models.StepDefinition, len(d.Steps))
	for _, s := range d.Steps {
		if s.Name == "" {
			return fmt.Errorf("workflow %q has a step with no name", d.Name)
		}
		if _, dup := byName[s.Name]; dup {
			return fmt.Errorf("workflow %q has duplicate step %q", d.Name, s.Name)
		}
		if s.Agent == "" {
			return fmt.Errorf("step %q has no agent", s.Name)
		}
		if s.MaxMessages > 0 && s.MinMessages > s.MaxMessages {
			return fmt.Errorf("step %q: min_messages %d exceeds max_messages %d", s.Name, s.MinMessages, s.MaxMessages)
		}
		byName[s.Name] = s
	}

	if _, ok := byName[d.InitialStep]; !ok {
		return fmt.Errorf("workflow %q: initial step %q not defined", d.Name, d.InitialStep)
	}

	for _, s := range d.Steps {
		if s.NextStep != "" {
			if _, ok := byName[s.NextStep]; !ok {
				return fmt.Errorf("step %q: next step %q not defined", s.Name, s.NextStep)
			}
		}
	}

	// Walking next pointers from any step must reach a terminal step. Each
	// step has a single successor, so a walk longer than the step count is
	// a cycle.
	for _, s := range d.Steps {
		cur := s
		for hops := 0; !cur.Terminal(); hops++ {
			if hops > len(d.Steps) {
				return fmt.Errorf("step %q: transition chain never reaches a terminal step", s.Name)
			}
			cur = byName[cur.NextStep]
		}
	}

	return nil
}

// Step returns the definition of the named step.
func (d *Definition) Step(name string) (models.StepDefinition, bool) {
	for _, s := range d.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return models.StepDefinition{}, false
}

// TotalSteps reports the number of steps in the definition.
func (d *Definition) TotalSteps() int {
	return len(d.Steps)
}
