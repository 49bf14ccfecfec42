package sequences

import (
	_ "embed"
	"fmt"
	"io"

	"nurture_backend/internal/followup/domain"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Definition is a sequence template with its steps, as written in YAML.
type Definition struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Trigger     string           `yaml:"trigger"`
	Steps       []StepDefinition `yaml:"steps"`
}

// StepDefinition is one step of a Definition.
type StepDefinition struct {
	StepNumber            int            `yaml:"step_number"`
	Type                  string         `yaml:"type"`
	DelayDays             int            `yaml:"delay_days"`
	DelayHours            int            `yaml:"delay_hours"`
	Subject               string         `yaml:"subject"`
	Template              string         `yaml:"template"`
	AIPrompt              string         `yaml:"ai_prompt"`
	PersonalizationFields []string       `yaml:"personalization_fields"`
	Conditions            map[string]any `yaml:"conditions"`
}

type definitionFile struct {
	Sequences []Definition `yaml:"sequences"`
}

// DefaultDefinitions returns the built-in starter sequences.
func DefaultDefinitions() ([]Definition, error) {
	var file definitionFile
	if err := yaml.Unmarshal(defaultsYAML, &file); err != nil {
		return nil, fmt.Errorf("parse default sequences: %w", err)
	}
	return file.Sequences, validateDefinitions(file.Sequences)
}

// LoadDefinitions reads sequence definitions from r.
func LoadDefinitions(r io.Reader) ([]Definition, error) {
	var file definitionFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse sequence definitions: %w", err)
	}
	return file.Sequences, validateDefinitions(file.Sequences)
}

func validateDefinitions(defs []Definition) error {
	for _, def := range defs {
		if def.Name == "" {
			return fmt.Errorf("sequence definition without a name")
		}
		if !domain.TriggerType(def.Trigger).Valid() {
			return fmt.Errorf("sequence %q: unknown trigger %q", def.Name, def.Trigger)
		}
		seen := map[int]bool{}
		for _, step := range def.Steps {
			if !domain.StepType(step.Type).Valid() {
				return fmt.Errorf("sequence %q: unknown step type %q", def.Name, step.Type)
			}
			if err := domain.ValidateStepTiming(step.StepNumber, step.DelayDays, step.DelayHours); err != nil {
				return fmt.Errorf("sequence %q step %d: %w", def.Name, step.StepNumber, err)
			}
			if seen[step.StepNumber] {
				return fmt.Errorf("sequence %q: duplicate step %d", def.Name, step.StepNumber)
			}
			seen[step.StepNumber] = true
		}
	}
	return nil
}
