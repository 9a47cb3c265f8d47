package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fentz26/baton/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDirectory(t *testing.T) {
	d := Default()

	all := d.All()
	require.Len(t, all, 5)
	assert.Equal(t, models.AgentCrystal, all[0].Name)
	assert.Equal(t, models.AgentCrystal, d.DefaultName())
	assert.Equal(t, "Architect", d.Default().Role)

	chloe, ok := d.Get("Chloe")
	require.True(t, ok)
	assert.Equal(t, "Implementation Engineer", chloe.Role)
	assert.Equal(t, "https://github.com/amfiggins/vader-ai-agents/blob/main/docs/agents/agent_chloe.md", chloe.InstructionURL)

	assert.True(t, d.Has(models.AgentJude))
	assert.False(t, d.Has("vader"))

	_, ok = d.Get("nobody")
	assert.False(t, ok)
}

func TestDirectoryGetReturnsCopy(t *testing.T) {
	d := Default()
	a, _ := d.Get(models.AgentPreston)
	a.Capabilities[0] = "mutated"

	again, _ := d.Get(models.AgentPreston)
	assert.Equal(t, "git", again.Capabilities[0])
}

func TestFindByCapability(t *testing.T) {
	d := Default()

	found := d.FindByCapability("git")
	require.Len(t, found, 1)
	assert.Equal(t, models.AgentPreston, found[0].Name)

	assert.Empty(t, d.FindByCapability("cooking"))
	assert.Contains(t, d.Capabilities(), "documentation")
}

func TestRules(t *testing.T) {
	d := Default()

	chloe := d.Rules(models.AgentChloe)
	require.Len(t, chloe.RequiredMarkers, 1)
	assert.Equal(t, "Implementation Summary", chloe.RequiredMarkers[0].Text)
	assert.Len(t, chloe.ForbiddenPhrases, 2)

	assert.Empty(t, d.Rules(models.AgentJude).ForbiddenPhrases)
	assert.Empty(t, d.Rules("unknown").RequiredMarkers)
}

func TestNewDirectoryErrors(t *testing.T) {
	_, err := NewDirectory(DefaultRoles(), "nobody")
	assert.Error(t, err)

	roles := append(DefaultRoles(), DefaultRoles()[0])
	_, err = NewDirectory(roles, models.AgentCrystal)
	assert.ErrorContains(t, err, "duplicate")
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	content := `
default_agent: jude
roles:
  - name: preston
    replace_rules: true
    forbidden_phrases:
      - text: "I will refactor"
        rule: "Preston never edits code"
  - name: nadia
    role: Security Reviewer
    capabilities: [security]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	d, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, models.AgentJude, d.DefaultName())

	preston := d.Rules(models.AgentPreston)
	require.Len(t, preston.ForbiddenPhrases, 1)
	assert.Equal(t, "I will refactor", preston.ForbiddenPhrases[0].Text)

	nadia, ok := d.Get("nadia")
	require.True(t, ok)
	assert.Equal(t, "Nadia", nadia.DisplayName)
	assert.Equal(t, InstructionURL("nadia"), nadia.InstructionURL)
	assert.Len(t, d.FindByCapability("security"), 1)
}

func TestLoadOverlayMissingFile(t *testing.T) {
	d, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Len(t, d.All(), 5)
}

func TestLoadOverlayInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  - role: nameless\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "name is required")
}
