package agents

import "github.com/fentz26/baton/internal/models"

// InstructionBaseURL hosts the per-agent instruction files.
const InstructionBaseURL = "https://github.com/amfiggins/vader-ai-agents/blob/main/docs/agents/"

// InstructionURL returns the conventional instruction file location.
func InstructionURL(name models.AgentName) string {
	return InstructionBaseURL + "agent_" + string(name) + ".md"
}

// DefaultRoles returns the built-in role table.
func DefaultRoles() []Role {
	return []Role{
		{
			Agent: models.Agent{
				Name:           models.AgentCrystal,
				DisplayName:    "Crystal",
				InstructionURL: InstructionURL(models.AgentCrystal),
				Role:           "Architect",
				Capabilities:   []string{"architecture", "diagnostics", "planning", "coordination"},
			},
			Rules: RuleSet{
				ForbiddenPhrases: []Phrase{
					{Text: "I will create", Rule: "Crystal does not write code - that is Chloe's responsibility", Description: "Crystal attempted to write code"},
					{Text: "I will add code", Rule: "Crystal does not write code - that is Chloe's responsibility", Description: "Crystal attempted to write code"},
				},
			},
		},
		{
			Agent: models.Agent{
				Name:           models.AgentChloe,
				DisplayName:    "Chloe",
				InstructionURL: InstructionURL(models.AgentChloe),
				Role:           "Implementation Engineer",
				Capabilities:   []string{"implementation", "testing", "aws", "api"},
			},
			Rules: RuleSet{
				RequiredMarkers: []Marker{
					{Text: "Implementation Summary", Rule: "Chloe must include Implementation Summary in every response", Description: `Missing "Implementation Summary for Crystal"`},
				},
				ForbiddenPhrases: []Phrase{
					{Text: "git push", Rule: "Chloe can only commit locally - Preston handles remote operations", Description: "Chloe attempted to push to remote"},
					{Text: "push to remote", Rule: "Chloe can only commit locally - Preston handles remote operations", Description: "Chloe attempted to push to remote"},
				},
			},
		},
		{
			Agent: models.Agent{
				Name:           models.AgentPreston,
				DisplayName:    "Preston",
				InstructionURL: InstructionURL(models.AgentPreston),
				Role:           "Git Manager",
				Capabilities:   []string{"git", "branching", "merging", "commits"},
			},
			Rules: RuleSet{
				ForbiddenPhrases: []Phrase{
					{Text: "I will implement", Rule: "Preston only handles git operations - Chloe writes code", Description: "Preston attempted to write code"},
					{Text: "I will add", Rule: "Preston only handles git operations - Chloe writes code", Description: "Preston attempted to write code"},
				},
			},
		},
		{
			Agent: models.Agent{
				Name:           models.AgentWinsley,
				DisplayName:    "Winsley",
				InstructionURL: InstructionURL(models.AgentWinsley),
				Role:           "Documentation Manager",
				Capabilities:   []string{"documentation", "review", "organization", "consolidation"},
			},
			Rules: RuleSet{
				RequiredMarkers: []Marker{
					{Text: "Documentation Review Summary", Rule: "Winsley must include Documentation Review Summary", Description: `Missing "Documentation Review Summary"`},
				},
			},
		},
		{
			Agent: models.Agent{
				Name:           models.AgentJude,
				DisplayName:    "Jude",
				InstructionURL: InstructionURL(models.AgentJude),
				Role:           "Validator",
				Capabilities:   []string{"validation", "compliance", "correction"},
			},
		},
	}
}
