package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/fentz26/baton/internal/agents"
	"github.com/fentz26/baton/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser() *Parser {
	return New(agents.Default())
}

const fullResponse = `Here is my analysis of the auth work.

🔵 For Vader
✅ Action Required:
- Review the middleware design
- [high] Rotate the staging signing key
❓ Decision Needed:
- Choose between JWT and opaque sessions
🧪 Testing:
- Log in with an expired token
📦 Git:
- Merge feature/auth into main
- Create branch hotfix/session
- Tag the release
➡️ Next Agent: Chloe

🟢 For the Next Agent
` + "```text" + `
Chloe, please read your instructions at agent_chloe.md and implement the middleware.
Repository: acme/api
Branch: feature/auth
` + "```" + `
`

func TestParseFullResponse(t *testing.T) {
	p := newTestParser()
	got := p.Parse(fullResponse)

	require.NotNil(t, got.ForHuman)
	h := got.ForHuman
	require.Len(t, h.Actions, 2)
	assert.Equal(t, "Review the middleware design", h.Actions[0].Description)
	assert.True(t, h.Actions[0].Blocking)
	assert.Equal(t, models.PriorityHigh, h.Actions[1].Priority)
	assert.Equal(t, "Rotate the staging signing key", h.Actions[1].Description)

	require.Len(t, h.Decisions, 1)
	assert.True(t, h.Decisions[0].Required)
	require.Len(t, h.Testing, 1)

	require.Len(t, h.GitOperations, 3)
	assert.Equal(t, models.GitMerge, h.GitOperations[0].Type)
	assert.Equal(t, models.GitBranch, h.GitOperations[1].Type)
	assert.Equal(t, models.GitCommit, h.GitOperations[2].Type)

	assert.Equal(t, models.AgentChloe, h.NextAgent)
	assert.True(t, h.HasActions)
	assert.False(t, h.NoAction)

	require.NotNil(t, got.ForNextAgent)
	n := got.ForNextAgent
	assert.Equal(t, models.AgentChloe, n.TargetAgent)
	assert.True(t, strings.HasPrefix(n.Prompt, "Chloe, please read"))
	assert.NotContains(t, n.Prompt, "```")
	assert.Equal(t, "acme/api", n.Repo)
	assert.Equal(t, "feature/auth", n.Branch)

	assert.True(t, RequiresApproval(got))
	assert.True(t, HasHandoff(got))
}

func TestParseActionCountRoundTrip(t *testing.T) {
	p := newTestParser()
	for n := 0; n <= 6; n++ {
		var b strings.Builder
		b.WriteString("🔵 For Vader\n✅ Action Required:\n")
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "- action number %d\n", i)
		}

		got := p.Parse(b.String())
		require.NotNil(t, got.ForHuman, "n=%d", n)
		assert.Len(t, got.ForHuman.Actions, n)
		assert.Equal(t, n > 0, RequiresApproval(got), "n=%d", n)
	}
}

func TestParseNoMarkers(t *testing.T) {
	p := newTestParser()
	for _, text := range []string{
		"",
		"Just some prose without any structure.",
		"- a dash item\n- another",
		"For the next agent, I think we should refactor.",
	} {
		got := p.Parse(text)
		assert.Nil(t, got.ForHuman, text)
		assert.Nil(t, got.ForNextAgent, text)
		assert.False(t, HasHandoff(got))
		assert.False(t, RequiresApproval(got))
	}
}

func TestParseNoAction(t *testing.T) {
	p := newTestParser()
	text := "🔵 For Vader\n🧪 Testing:\n- Smoke test login\n✅ No Action Required\n"

	got := p.Parse(text)
	require.NotNil(t, got.ForHuman)
	assert.True(t, got.ForHuman.NoAction)
	assert.True(t, got.ForHuman.HasActions)
	assert.False(t, RequiresApproval(got))
}

func TestParseDecisionsOnlyRequireApproval(t *testing.T) {
	p := newTestParser()
	got := p.Parse("🔵 For Vader\n❓ Decision Needed:\n- Which region?\n")
	assert.True(t, RequiresApproval(got))
}

func TestParseMarkdownDecoratedMarkers(t *testing.T) {
	p := newTestParser()
	text := `## For Vader
**Action Required:**
- Approve the schema change

## For the Next Agent
Please hand this to agent preston for the merge.`

	got := p.Parse(text)
	require.NotNil(t, got.ForHuman)
	assert.Len(t, got.ForHuman.Actions, 1)
	require.NotNil(t, got.ForNextAgent)
	assert.Equal(t, models.AgentPreston, got.ForNextAgent.TargetAgent)
	assert.Equal(t, "Please hand this to agent preston for the merge.", got.ForNextAgent.Prompt)
}

func TestSectionsStopAtOtherMarker(t *testing.T) {
	p := newTestParser()
	text := "🟢 For the Next Agent\nWinsley, please review agent_winsley.md\n🔵 For Vader\n✅ No Action\n"

	got := p.Parse(text)
	require.NotNil(t, got.ForNextAgent)
	assert.Equal(t, "Winsley, please review agent_winsley.md", got.ForNextAgent.Prompt)
	assert.Equal(t, models.AgentWinsley, got.ForNextAgent.TargetAgent)
	require.NotNil(t, got.ForHuman)
	assert.True(t, got.ForHuman.NoAction)
}

func TestResolveTarget(t *testing.T) {
	p := newTestParser()
	tests := []struct {
		name   string
		prompt string
		want   models.AgentName
	}{
		{"agent X", "Hand over to agent preston now", models.AgentPreston},
		{"X agent", "The winsley agent should tidy the docs", models.AgentWinsley},
		{"to X", "Send this to chloe for implementation", models.AgentChloe},
		{"X please", "Jude, please check this", models.AgentJude},
		{"instruction file", "Read https://example.com/docs/agents/agent_preston.md first", models.AgentPreston},
		{"skips unknown words", "Pass to the team, then to chloe", models.AgentChloe},
		{"default", "Carry on with the plan", models.AgentCrystal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.resolveTarget(tt.prompt))
		})
	}
}

func TestFenceLanguageFiltering(t *testing.T) {
	p := newTestParser()
	text := "🟢 For the Next Agent\n```go\nfunc main() {}\n```\n```markdown\nPreston, please merge. See agent_preston.md\n```\n"

	got := p.Parse(text)
	require.NotNil(t, got.ForNextAgent)
	assert.Equal(t, "Preston, please merge. See agent_preston.md", got.ForNextAgent.Prompt)
}

func TestInferGitOperation(t *testing.T) {
	assert.Equal(t, models.GitMerge, InferGitOperation("merge and push"))
	assert.Equal(t, models.GitPush, InferGitOperation("Push to origin"))
	assert.Equal(t, models.GitBranch, InferGitOperation("new branch"))
	assert.Equal(t, models.GitCommit, InferGitOperation("commit the fix"))
	assert.Equal(t, models.GitCommit, InferGitOperation("tag v1"))
}

func TestParseMalformedInputDoesNotPanic(t *testing.T) {
	p := newTestParser()
	inputs := []string{
		"🔵",
		"🔵 For Vader",
		"🟢 For the Next Agent\n```text\nunterminated fence",
		"➡️ Next Agent:",
		strings.Repeat("🔵 For Vader\n🟢 For the Next Agent\n", 50),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { p.Parse(in) })
	}
}
