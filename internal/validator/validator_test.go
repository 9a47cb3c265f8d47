package validator

import (
	"testing"

	"github.com/fentz26/baton/internal/agents"
	"github.com/fentz26/baton/internal/models"
	"github.com/fentz26/baton/internal/parser"
	"github.com/fentz26/baton/internal/violations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir     *agents.Directory
	parser  *parser.Parser
	tracker *violations.Tracker
	v       *Validator
}

func newFixture() *fixture {
	dir := agents.Default()
	tr := violations.New()
	return &fixture{
		dir:     dir,
		parser:  parser.New(dir),
		tracker: tr,
		v:       New(dir, tr, nil),
	}
}

func (f *fixture) response(agent models.AgentName, raw string) models.AgentResponse {
	return models.AgentResponse{Agent: agent, Raw: raw, Parsed: f.parser.Parse(raw)}
}

const cleanArchitect = "Plan drafted.\n\n🔵 For Vader\n✅ No Action\n"

func TestValidResponse(t *testing.T) {
	f := newFixture()
	verdict := f.v.Validate(models.AgentCrystal, f.response(models.AgentCrystal, cleanArchitect), "plan it")

	assert.True(t, verdict.Valid)
	assert.Empty(t, verdict.Violations)
	assert.False(t, verdict.ShouldStop)
	assert.False(t, verdict.CorrectionNeeded)
	assert.Empty(t, verdict.CorrectionPrompt)
	assert.Equal(t, 0, f.tracker.Count(models.AgentCrystal))
}

func TestMissingHumanSection(t *testing.T) {
	f := newFixture()
	verdict := f.v.Validate(models.AgentCrystal, f.response(models.AgentCrystal, "no markers here"), "plan it")

	require.Len(t, verdict.Violations, 1)
	vi := verdict.Violations[0]
	assert.Equal(t, models.ViolationFormat, vi.Type)
	assert.Equal(t, RuleHumanSection, vi.Rule)
	assert.Equal(t, models.PriorityHigh, vi.Severity)
	assert.Equal(t, models.AgentCrystal, vi.Agent)
	assert.NotEmpty(t, vi.ID)
	assert.True(t, verdict.CorrectionNeeded)
	assert.Equal(t, 1, f.tracker.Count(models.AgentCrystal))
}

func TestRequiredMarker(t *testing.T) {
	f := newFixture()
	raw := "Done.\n🔵 For Vader\n✅ No Action\n"

	verdict := f.v.Validate(models.AgentChloe, f.response(models.AgentChloe, raw), "build it")
	require.Len(t, verdict.Violations, 1)
	assert.Equal(t, "Chloe must include Implementation Summary in every response", verdict.Violations[0].Rule)

	raw = "## Implementation Summary\nAdded middleware.\n🔵 For Vader\n✅ No Action\n"
	verdict = f.v.Validate(models.AgentChloe, f.response(models.AgentChloe, raw), "build it")
	assert.True(t, verdict.Valid)
}

func TestBoundaryViolationCountsOncePerRule(t *testing.T) {
	f := newFixture()
	raw := "## Implementation Summary\nI will git push and push to remote.\n🔵 For Vader\n✅ No Action\n"

	verdict := f.v.Validate(models.AgentChloe, f.response(models.AgentChloe, raw), "build it")
	require.Len(t, verdict.Violations, 1)
	assert.Equal(t, models.ViolationBoundary, verdict.Violations[0].Type)
	assert.Equal(t, models.PriorityHigh, verdict.Violations[0].Severity)
}

func TestHandoffRules(t *testing.T) {
	f := newFixture()
	raw := "🔵 For Vader\n✅ Action Required:\n- Approve\n\n🟢 For the Next Agent\nChloe, please build it.\n"

	verdict := f.v.Validate(models.AgentCrystal, f.response(models.AgentCrystal, raw), "plan")
	require.Len(t, verdict.Violations, 2)
	assert.Equal(t, RuleHandoffNoActions, verdict.Violations[0].Rule)
	assert.Equal(t, models.PriorityMedium, verdict.Violations[0].Severity)
	assert.Equal(t, RuleHandoffReference, verdict.Violations[1].Rule)
	assert.Equal(t, models.ViolationRule, verdict.Violations[1].Type)
}

func TestShouldStopAfterThirdViolation(t *testing.T) {
	f := newFixture()
	bad := f.response(models.AgentPreston, "I will implement the feature myself.\n🔵 For Vader\n✅ No Action\n")

	first := f.v.Validate(models.AgentPreston, bad, "merge")
	assert.True(t, first.CorrectionNeeded)
	assert.False(t, first.Repeated)

	second := f.v.Validate(models.AgentPreston, bad, "merge")
	assert.True(t, second.CorrectionNeeded)
	assert.True(t, second.Repeated)

	third := f.v.Validate(models.AgentPreston, bad, "merge")
	assert.True(t, third.ShouldStop)
	assert.False(t, third.CorrectionNeeded)
	assert.Empty(t, third.CorrectionPrompt)
}

func TestCorrectionPrompt(t *testing.T) {
	f := newFixture()
	verdict := f.v.Validate(models.AgentCrystal, f.response(models.AgentCrystal, "I will create the files."), "Add auth middleware")

	want := "Please read your agent instructions at https://github.com/amfiggins/vader-ai-agents/blob/main/docs/agents/agent_crystal.md\n\n" +
		"Your previous response had the following issue(s):\n\n" +
		"1. **FORMAT Violation:** Missing \"For Vader\" section\n" +
		"   Rule violated: All agents must include \"For Vader\" section\n\n" +
		"2. **BOUNDARY Violation:** Crystal attempted to write code\n" +
		"   Rule violated: Crystal does not write code - that is Chloe's responsibility\n\n" +
		"Please redo your response following your instruction file rules.\n\n" +
		"Original request context:\nAdd auth middleware"
	assert.Equal(t, want, verdict.CorrectionPrompt)
}
