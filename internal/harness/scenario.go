package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultDocument is used when a scenario does not set one.
const DefaultDocument = `<div id="app"></div>`

// Scenario is a scripted client session with expectations.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description is a human-readable summary.
	Description string `yaml:"description"`

	// Document is the HTML body the client starts from.
	Document string `yaml:"document,omitempty"`

	// Location is the URL reported on start.
	Location string `yaml:"location,omitempty"`

	// ClientFuncs maps outbound call identifiers to canned results.
	ClientFuncs map[string]any `yaml:"client_funcs,omitempty"`

	// Steps run in order after start.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one client action. Exactly one of Click, Change, Navigate and
// Invoke is set.
type Step struct {
	Click    string `yaml:"click,omitempty"`
	Change   string `yaml:"change,omitempty"`
	Value    string `yaml:"value,omitempty"`
	Index    int    `yaml:"index,omitempty"`
	Navigate string `yaml:"navigate,omitempty"`
	Invoke   string `yaml:"invoke,omitempty"`
	Args     []any  `yaml:"args,omitempty"`
}

// Kind names the action the step performs.
func (s Step) Kind() string {
	switch {
	case s.Click != "":
		return "click"
	case s.Change != "":
		return "change"
	case s.Navigate != "":
		return "navigate"
	case s.Invoke != "":
		return "invoke"
	default:
		return ""
	}
}

// Assertion is a check against the result.
type Assertion struct {
	Type       string   `yaml:"type"`
	Value      string   `yaml:"value,omitempty"`
	Selector   string   `yaml:"selector,omitempty"`
	Index      int      `yaml:"index,omitempty"`
	Path       string   `yaml:"path,omitempty"`
	Paths      []string `yaml:"paths,omitempty"`
	Count      int      `yaml:"count,omitempty"`
	Identifier string   `yaml:"identifier,omitempty"`
}

// Assertion types.
const (
	AssertHTMLContains    = "html_contains"
	AssertHTMLNotContains = "html_not_contains"
	AssertTextEquals      = "text_equals"
	AssertTraceContains   = "trace_contains"
	AssertTraceCount      = "trace_count"
	AssertTraceOrder      = "trace_order"
	AssertOutboundCall    = "outbound_call"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected to catch typos.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if scenario.Document == "" {
		scenario.Document = DefaultDocument
	}
	if scenario.Location == "" {
		scenario.Location = "http://localhost/"
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		set := 0
		for _, v := range []string{step.Click, step.Change, step.Navigate, step.Invoke} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("steps[%d]: exactly one of click, change, navigate, invoke is required", i)
		}
		if step.Index < 0 {
			return fmt.Errorf("steps[%d]: index must be non-negative", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertHTMLContains, AssertHTMLNotContains:
		if a.Value == "" {
			return fmt.Errorf("assertions[%d]: value is required for %s", index, a.Type)
		}
	case AssertTextEquals:
		if a.Selector == "" {
			return fmt.Errorf("assertions[%d]: selector is required for text_equals", index)
		}
	case AssertTraceContains:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Paths) == 0 {
			return fmt.Errorf("assertions[%d]: paths list is required for trace_order", index)
		}
	case AssertOutboundCall:
		if a.Identifier == "" {
			return fmt.Errorf("assertions[%d]: identifier is required for outbound_call", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
