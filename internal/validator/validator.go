// Package validator checks agent responses against their role rules.
package validator

import (
	"fmt"
	"strings"

	"github.com/fentz26/baton/internal/agents"
	"github.com/fentz26/baton/internal/models"
	"github.com/fentz26/baton/internal/violations"
	"go.uber.org/zap"
)

// Rule texts shared by every role.
const (
	RuleHumanSection     = `All agents must include "For Vader" section`
	RuleHandoffNoActions = "Handoff should only be created when no blocking actions exist"
	RuleHandoffReference = "All handoffs must reference the next agent's instruction file"
)

// Verdict is the outcome of validating one response.
type Verdict struct {
	Valid            bool               `json:"valid"`
	Violations       []models.Violation `json:"violations"`
	ShouldStop       bool               `json:"should_stop"`
	CorrectionNeeded bool               `json:"correction_needed"`
	CorrectionPrompt string             `json:"correction_prompt,omitempty"`
	// Repeated is set when a violation matched one already in the window
	// before this response was recorded.
	Repeated bool `json:"repeated"`
}

// Validator runs format, boundary and rule checks and records
// violations in the tracker.
type Validator struct {
	dir     *agents.Directory
	tracker *violations.Tracker
	logger  *zap.Logger
}

// New creates a validator.
func New(dir *agents.Directory, tracker *violations.Tracker, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		dir:     dir,
		tracker: tracker,
		logger:  logger.Named("validator"),
	}
}

// Validate checks resp, produced by agent for prompt.
func (v *Validator) Validate(agent models.AgentName, resp models.AgentResponse, prompt string) Verdict {
	var found []models.Violation
	found = append(found, v.checkFormat(agent, resp)...)
	found = append(found, v.checkBoundaries(agent, resp)...)
	found = append(found, v.checkRules(resp)...)

	repeated := false
	for _, vi := range found {
		if v.tracker.IsRepeated(agent, vi.Type, vi.Rule) {
			repeated = true
			break
		}
	}

	for i := range found {
		found[i].Agent = agent
		found[i].Context = resp.Raw
		found[i].ID = v.tracker.RecordViolation(found[i])
	}

	shouldStop := v.tracker.HasThreeInWindow(agent)
	verdict := Verdict{
		Valid:            len(found) == 0,
		Violations:       found,
		ShouldStop:       shouldStop,
		CorrectionNeeded: len(found) > 0 && !shouldStop,
		Repeated:         repeated,
	}
	if verdict.CorrectionNeeded {
		verdict.CorrectionPrompt = v.CorrectionPrompt(agent, found, prompt)
	}

	if len(found) > 0 {
		v.logger.Info("response violated rules",
			zap.String("agent", string(agent)),
			zap.Int("violations", len(found)),
			zap.Bool("should_stop", shouldStop),
			zap.Bool("repeated", repeated),
		)
	}
	return verdict
}

func (v *Validator) checkFormat(agent models.AgentName, resp models.AgentResponse) []models.Violation {
	var out []models.Violation
	parsed := resp.Parsed

	if parsed.ForHuman == nil {
		out = append(out, models.Violation{
			Type:        models.ViolationFormat,
			Description: `Missing "For Vader" section`,
			Rule:        RuleHumanSection,
			Severity:    models.PriorityHigh,
		})
	}

	if parsed.ForHuman != nil && parsed.ForHuman.HasActions && parsed.ForNextAgent != nil {
		out = append(out, models.Violation{
			Type:        models.ViolationFormat,
			Description: "Handoff created when actions are required",
			Rule:        RuleHandoffNoActions,
			Severity:    models.PriorityMedium,
		})
	}

	for _, m := range v.dir.Rules(agent).RequiredMarkers {
		if parsed.ForHuman == nil || !strings.Contains(resp.Raw, m.Text) {
			out = append(out, models.Violation{
				Type:        models.ViolationFormat,
				Description: describe(m.Description, fmt.Sprintf("Missing %q", m.Text)),
				Rule:        m.Rule,
				Severity:    models.PriorityHigh,
			})
		}
	}
	return out
}

// checkBoundaries reports at most one violation per distinct rule so
// that two phrases for the same responsibility count once.
func (v *Validator) checkBoundaries(agent models.AgentName, resp models.AgentResponse) []models.Violation {
	var out []models.Violation
	seen := make(map[string]bool)
	for _, p := range v.dir.Rules(agent).ForbiddenPhrases {
		if seen[p.Rule] || !strings.Contains(resp.Raw, p.Text) {
			continue
		}
		seen[p.Rule] = true
		out = append(out, models.Violation{
			Type:        models.ViolationBoundary,
			Description: describe(p.Description, fmt.Sprintf("Used forbidden phrase %q", p.Text)),
			Rule:        p.Rule,
			Severity:    models.PriorityHigh,
		})
	}
	return out
}

func (v *Validator) checkRules(resp models.AgentResponse) []models.Violation {
	handoff := resp.Parsed.ForNextAgent
	if handoff == nil {
		return nil
	}
	if strings.Contains(handoff.Prompt, "instruction") || strings.Contains(handoff.Prompt, "agent_") {
		return nil
	}
	return []models.Violation{{
		Type:        models.ViolationRule,
		Description: "Handoff missing instruction file reference",
		Rule:        RuleHandoffReference,
		Severity:    models.PriorityMedium,
	}}
}

// MarkCorrected flags found as fixed by a later response.
func (v *Validator) MarkCorrected(agent models.AgentName, found []models.Violation) {
	for _, vi := range found {
		v.tracker.MarkCorrected(agent, vi.ID)
	}
}

// CorrectionPrompt asks the agent to redo its response, listing each
// violation and restating the original request.
func (v *Validator) CorrectionPrompt(agent models.AgentName, found []models.Violation, prompt string) string {
	var b strings.Builder
	url := ""
	if a, ok := v.dir.Get(agent); ok {
		url = a.InstructionURL
	}
	fmt.Fprintf(&b, "Please read your agent instructions at %s\n\n", url)
	b.WriteString("Your previous response had the following issue(s):\n\n")
	for i, vi := range found {
		fmt.Fprintf(&b, "%d. **%s Violation:** %s\n", i+1, strings.ToUpper(string(vi.Type)), vi.Description)
		fmt.Fprintf(&b, "   Rule violated: %s\n\n", vi.Rule)
	}
	b.WriteString("Please redo your response following your instruction file rules.\n\n")
	b.WriteString("Original request context:\n")
	b.WriteString(prompt)
	return b.String()
}

func describe(desc, fallback string) string {
	if desc != "" {
		return desc
	}
	return fallback
}
