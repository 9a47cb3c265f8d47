package agents

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fentz26/baton/internal/models"
	"gopkg.in/yaml.v3"
)

// Overlay customizes the built-in role table. Roles listed here replace
// the built-in entry with the same name field by field; unknown names
// are added as new roles.
type Overlay struct {
	// DefaultAgent overrides the agent used when a handoff target cannot be resolved.
	DefaultAgent string `yaml:"default_agent"`
	// InstructionBaseURL rewrites instruction URLs for roles that do not set one.
	InstructionBaseURL string `yaml:"instruction_base_url"`
	// Roles holds per-agent overrides.
	Roles []RoleOverride `yaml:"roles"`
}

// RoleOverride is a partial role definition.
type RoleOverride struct {
	Name           string   `yaml:"name"`
	DisplayName    string   `yaml:"display_name"`
	InstructionURL string   `yaml:"instruction_url"`
	Role           string   `yaml:"role"`
	Capabilities   []string `yaml:"capabilities"`
	// ReplaceRules discards the built-in rules before appending these.
	ReplaceRules     bool     `yaml:"replace_rules"`
	RequiredMarkers  []Marker `yaml:"required_markers"`
	ForbiddenPhrases []Phrase `yaml:"forbidden_phrases"`
}

// LoadOverlay reads an overlay from a YAML file. A missing file yields an
// empty overlay.
func LoadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Overlay{}, nil
		}
		return nil, fmt.Errorf("reading agents file: %w", err)
	}

	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parsing agents file: %w", err)
	}
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agents file: %w", err)
	}
	return &o, nil
}

// DefaultOverlayPath returns ~/.baton/agents.yaml.
func DefaultOverlayPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".baton", "agents.yaml")
}

// Validate checks that every override names an agent and carries
// non-empty rule text.
func (o *Overlay) Validate() error {
	seen := make(map[string]bool)
	for i, r := range o.Roles {
		name := strings.ToLower(strings.TrimSpace(r.Name))
		if name == "" {
			return fmt.Errorf("roles[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("roles[%d]: duplicate role %q", i, name)
		}
		seen[name] = true
		for j, m := range r.RequiredMarkers {
			if m.Text == "" || m.Rule == "" {
				return fmt.Errorf("roles[%d].required_markers[%d]: text and rule are required", i, j)
			}
		}
		for j, p := range r.ForbiddenPhrases {
			if p.Text == "" || p.Rule == "" {
				return fmt.Errorf("roles[%d].forbidden_phrases[%d]: text and rule are required", i, j)
			}
		}
	}
	return nil
}

// Apply merges the overlay into a role table and returns the result
// together with the default agent.
func (o *Overlay) Apply(roles []Role, defaultAgent models.AgentName) ([]Role, models.AgentName) {
	out := make([]Role, len(roles))
	copy(out, roles)

	index := make(map[models.AgentName]int, len(out))
	for i, r := range out {
		index[r.Agent.Name] = i
	}

	for _, ov := range o.Roles {
		name := models.AgentName(strings.ToLower(strings.TrimSpace(ov.Name)))
		i, ok := index[name]
		if !ok {
			out = append(out, Role{Agent: models.Agent{Name: name}})
			i = len(out) - 1
			index[name] = i
		}
		r := out[i]
		if ov.DisplayName != "" {
			r.Agent.DisplayName = ov.DisplayName
		}
		if ov.InstructionURL != "" {
			r.Agent.InstructionURL = ov.InstructionURL
		}
		if ov.Role != "" {
			r.Agent.Role = ov.Role
		}
		if len(ov.Capabilities) > 0 {
			r.Agent.Capabilities = ov.Capabilities
		}
		if ov.ReplaceRules {
			r.Rules = RuleSet{}
		}
		r.Rules.RequiredMarkers = append(append([]Marker(nil), r.Rules.RequiredMarkers...), ov.RequiredMarkers...)
		r.Rules.ForbiddenPhrases = append(append([]Phrase(nil), r.Rules.ForbiddenPhrases...), ov.ForbiddenPhrases...)
		out[i] = r
	}

	if o.InstructionBaseURL != "" {
		base := strings.TrimSuffix(o.InstructionBaseURL, "/") + "/"
		for i := range out {
			if out[i].Agent.InstructionURL == "" || strings.HasPrefix(out[i].Agent.InstructionURL, InstructionBaseURL) {
				out[i].Agent.InstructionURL = base + "agent_" + string(out[i].Agent.Name) + ".md"
			}
		}
	}
	for i := range out {
		if out[i].Agent.InstructionURL == "" {
			out[i].Agent.InstructionURL = InstructionURL(out[i].Agent.Name)
		}
		if out[i].Agent.DisplayName == "" {
			out[i].Agent.DisplayName = titleCase(string(out[i].Agent.Name))
		}
	}

	if o.DefaultAgent != "" {
		defaultAgent = models.AgentName(strings.ToLower(o.DefaultAgent))
	}
	return out, defaultAgent
}

// Load builds a directory from the built-in roles plus the overlay file
// at path. An empty path uses only the built-in roles.
func Load(path string) (*Directory, error) {
	if path == "" {
		return Default(), nil
	}
	o, err := LoadOverlay(path)
	if err != nil {
		return nil, err
	}
	roles, def := o.Apply(DefaultRoles(), models.AgentCrystal)
	return NewDirectory(roles, def)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
