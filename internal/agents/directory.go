// Package agents provides the directory of pipeline agents and their role rules.
package agents

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fentz26/baton/internal/models"
)

// Marker is text an agent's response must contain.
type Marker struct {
	Text        string `yaml:"text"`
	Rule        string `yaml:"rule"`
	Description string `yaml:"description"`
}

// Phrase is text an agent's response must not contain because the
// responsibility belongs to another role.
type Phrase struct {
	Text        string `yaml:"text"`
	Rule        string `yaml:"rule"`
	Description string `yaml:"description"`
}

// RuleSet holds the validation rules for a single role.
type RuleSet struct {
	RequiredMarkers  []Marker `yaml:"required_markers"`
	ForbiddenPhrases []Phrase `yaml:"forbidden_phrases"`
}

// Role pairs agent metadata with its rule set.
type Role struct {
	Agent models.Agent `yaml:",inline"`
	Rules RuleSet      `yaml:"rules"`
}

// Directory is an immutable registry of agents keyed by name.
type Directory struct {
	roles        map[models.AgentName]Role
	order        []models.AgentName
	defaultAgent models.AgentName
}

// NewDirectory builds a directory from a role table. The default agent
// must be one of the roles.
func NewDirectory(roles []Role, defaultAgent models.AgentName) (*Directory, error) {
	d := &Directory{
		roles:        make(map[models.AgentName]Role, len(roles)),
		defaultAgent: defaultAgent,
	}
	for _, r := range roles {
		name := models.AgentName(strings.ToLower(string(r.Agent.Name)))
		if name == "" {
			return nil, fmt.Errorf("role with empty agent name")
		}
		if _, dup := d.roles[name]; dup {
			return nil, fmt.Errorf("duplicate agent %q", name)
		}
		r.Agent.Name = name
		r.Agent.Capabilities = append([]string(nil), r.Agent.Capabilities...)
		d.roles[name] = r
		d.order = append(d.order, name)
	}
	if _, ok := d.roles[defaultAgent]; !ok {
		return nil, fmt.Errorf("default agent %q is not registered", defaultAgent)
	}
	return d, nil
}

// Default returns a directory holding the built-in roles.
func Default() *Directory {
	d, err := NewDirectory(DefaultRoles(), models.AgentCrystal)
	if err != nil {
		panic(err)
	}
	return d
}

// Get returns the agent registered under name.
func (d *Directory) Get(name models.AgentName) (models.Agent, bool) {
	r, ok := d.roles[normalize(name)]
	if !ok {
		return models.Agent{}, false
	}
	a := r.Agent
	a.Capabilities = append([]string(nil), a.Capabilities...)
	return a, true
}

// Has reports whether name is a registered agent.
func (d *Directory) Has(name models.AgentName) bool {
	_, ok := d.roles[normalize(name)]
	return ok
}

// Lookup resolves a free-text word to an agent name.
func (d *Directory) Lookup(word string) (models.AgentName, bool) {
	name := models.AgentName(strings.ToLower(strings.TrimSpace(word)))
	if _, ok := d.roles[name]; ok {
		return name, true
	}
	return "", false
}

// All returns every agent in registration order.
func (d *Directory) All() []models.Agent {
	out := make([]models.Agent, 0, len(d.order))
	for _, name := range d.order {
		a, _ := d.Get(name)
		out = append(out, a)
	}
	return out
}

// FindByCapability returns agents advertising the capability.
func (d *Directory) FindByCapability(capability string) []models.Agent {
	var out []models.Agent
	for _, a := range d.All() {
		for _, c := range a.Capabilities {
			if strings.EqualFold(c, capability) {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// Default returns the agent used when no other can be determined.
func (d *Directory) Default() models.Agent {
	a, _ := d.Get(d.defaultAgent)
	return a
}

// DefaultName returns the default agent's name.
func (d *Directory) DefaultName() models.AgentName {
	return d.defaultAgent
}

// Rules returns the rule set for an agent. Unknown agents have no rules.
func (d *Directory) Rules(name models.AgentName) RuleSet {
	return d.roles[normalize(name)].Rules
}

// DisplayName returns the agent's display name, falling back to its id.
func (d *Directory) DisplayName(name models.AgentName) string {
	if a, ok := d.Get(name); ok && a.DisplayName != "" {
		return a.DisplayName
	}
	return string(name)
}

// Capabilities lists every capability tag in the directory, sorted.
func (d *Directory) Capabilities() []string {
	seen := make(map[string]struct{})
	for _, r := range d.roles {
		for _, c := range r.Agent.Capabilities {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func normalize(name models.AgentName) models.AgentName {
	return models.AgentName(strings.ToLower(string(name)))
}
