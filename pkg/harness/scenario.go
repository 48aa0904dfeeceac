package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
	"github.com/ajitpratap0/mcp-conformance/pkg/protocol"
)

// Scenario is the fixed script a run executes after the handshake and tool
// discovery
type Scenario struct {
	Name            string     `yaml:"name" json:"name"`
	Description     string     `yaml:"description,omitempty" json:"description,omitempty"`
	ProtocolVersion string     `yaml:"protocol_version,omitempty" json:"protocol_version,omitempty"`
	Client          ClientInfo `yaml:"client,omitempty" json:"client"`
	Steps           []ToolStep `yaml:"steps" json:"steps"`
}

// ClientInfo is the identity announced in the handshake
type ClientInfo struct {
	Name    string `yaml:"name,omitempty" json:"name"`
	Version string `yaml:"version,omitempty" json:"version"`
}

// ToolStep is one scripted tools/call
type ToolStep struct {
	Name      string                 `yaml:"name" json:"name"`
	Tool      string                 `yaml:"tool" json:"tool"`
	Arguments map[string]interface{} `yaml:"arguments,omitempty" json:"arguments,omitempty"`
	Expect    Expectation            `yaml:"expect,omitempty" json:"expect"`
	// Validate checks Arguments against the tool's advertised inputSchema
	Validate bool `yaml:"validate,omitempty" json:"validate,omitempty"`
}

// Expectation lists keywords of which at least one should appear in a tool's
// result text. A miss is reported as a warning, never as a failure.
type Expectation struct {
	Contains     []string `yaml:"contains,omitempty" json:"contains,omitempty"`
	ContainsFold []string `yaml:"contains_fold,omitempty" json:"contains_fold,omitempty"`
}

// Empty reports whether the expectation accepts any text
func (e Expectation) Empty() bool {
	return len(e.Contains) == 0 && len(e.ContainsFold) == 0
}

// Match reports whether text contains any keyword. Contains is case
// sensitive; ContainsFold is not.
func (e Expectation) Match(text string) bool {
	if e.Empty() {
		return true
	}
	for _, keyword := range e.Contains {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	lower := strings.ToLower(text)
	for _, keyword := range e.ContainsFold {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// Keywords returns every keyword, for reporting
func (e Expectation) Keywords() []string {
	keywords := make([]string, 0, len(e.Contains)+len(e.ContainsFold))
	keywords = append(keywords, e.Contains...)
	for _, keyword := range e.ContainsFold {
		keywords = append(keywords, strings.ToLower(keyword))
	}
	return keywords
}

// DefaultScenario returns the BrewSource script: a style lookup, a beer
// search and a brewery search.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name:            "brewsource",
		Description:     "BrewSource MCP server phase 1 tools",
		ProtocolVersion: protocol.ProtocolRevision,
		Client: ClientInfo{
			Name:    "brewsource-test-client",
			Version: "1.0.0",
		},
		Steps: []ToolStep{
			{
				Name:      "bjcp lookup",
				Tool:      "bjcp_lookup",
				Arguments: map[string]interface{}{"style_code": "21A"},
				Expect:    Expectation{Contains: []string{"American IPA", "21A"}},
				Validate:  true,
			},
			{
				Name:      "beer search",
				Tool:      "search_beers",
				Arguments: map[string]interface{}{"query": "IPA"},
				Expect:    Expectation{Contains: []string{"IPA"}, ContainsFold: []string{"beer"}},
				Validate:  true,
			},
			{
				Name:      "brewery search",
				Tool:      "find_breweries",
				Arguments: map[string]interface{}{"location": "California"},
				Expect:    Expectation{ContainsFold: []string{"brewery", "california"}},
				Validate:  true,
			},
		},
	}
}

// LoadScenario reads and validates a YAML scenario file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenario, nil
}

// ParseScenario decodes and validates a YAML scenario. Unknown keys are
// rejected so a misspelt field does not silently drop a check.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, mcperrors.ValidationError(fmt.Sprintf("invalid scenario: %v", err))
	}

	scenario.applyDefaults()
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

func (s *Scenario) applyDefaults() {
	if s.ProtocolVersion == "" {
		s.ProtocolVersion = protocol.ProtocolRevision
	}
	if s.Client.Name == "" {
		s.Client.Name = "brewsource-test-client"
	}
	if s.Client.Version == "" {
		s.Client.Version = "1.0.0"
	}
}

// Validate requires a name, at least one step, and unique named steps that
// each name a tool
func (s *Scenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return mcperrors.ValidationError("scenario has no name")
	}
	if len(s.Steps) == 0 {
		return mcperrors.ValidationError(fmt.Sprintf("scenario %q has no steps", s.Name))
	}

	seen := make(map[string]struct{}, len(s.Steps))
	for i, step := range s.Steps {
		if strings.TrimSpace(step.Name) == "" {
			return mcperrors.ValidationError(fmt.Sprintf("step %d has no name", i+1))
		}
		if strings.TrimSpace(step.Tool) == "" {
			return mcperrors.ValidationError(fmt.Sprintf("step %q has no tool", step.Name))
		}
		if _, dup := seen[step.Name]; dup {
			return mcperrors.ValidationError(fmt.Sprintf("duplicate step name %q", step.Name))
		}
		seen[step.Name] = struct{}{}
	}
	return nil
}
