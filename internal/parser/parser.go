// Package parser extracts structured sections from free-text agent responses.
//
// A response may carry two sections. The human section starts at a
// "For Vader" marker and the handoff section at a "For the Next Agent"
// marker; each runs until the other marker or the end of the text.
// Inside the human section, sub-markers open lists of dash items:
//
//	🔵 For Vader
//	✅ Action Required:
//	- Review the migration plan
//	❓ Decision Needed:
//	- Pick a session store
//	➡️ Next Agent: chloe
//
//	🟢 For the Next Agent
//	```text
//	Chloe, please read agent_chloe.md and implement the plan.
//	```
//
// Parsing never fails. Text without markers yields an empty result.
package parser

import (
	"regexp"
	"strings"

	"github.com/fentz26/baton/internal/agents"
	"github.com/fentz26/baton/internal/models"
	"github.com/yuin/goldmark"
)

// Parser turns raw responses into models.ParsedResponse values. It is
// safe for concurrent use.
type Parser struct {
	dir *agents.Directory
	md  goldmark.Markdown
}

// New creates a parser that resolves agent names against dir.
func New(dir *agents.Directory) *Parser {
	return &Parser{
		dir: dir,
		md:  goldmark.New(),
	}
}

// Parse extracts both sections from text.
func (p *Parser) Parse(text string) models.ParsedResponse {
	tokens := lex(text)
	var out models.ParsedResponse

	if body, ok := sectionBody(tokens, tokHumanSection, tokAgentSection); ok {
		out.ForHuman = p.parseHuman(body)
	}
	if body, ok := sectionBody(tokens, tokAgentSection, tokHumanSection); ok {
		out.ForNextAgent = p.parseHandoff(body)
	}
	return out
}

// RequiresApproval reports whether the human section has actionable
// items and is not flagged "no action".
func RequiresApproval(p models.ParsedResponse) bool {
	if p.ForHuman == nil {
		return false
	}
	return p.ForHuman.HasActions && !p.ForHuman.NoAction
}

// HasHandoff reports whether a next-agent section was extracted.
func HasHandoff(p models.ParsedResponse) bool {
	return p.ForNextAgent != nil
}

// sectionBody returns the tokens after the first start marker up to the
// first stop marker that follows it.
func sectionBody(tokens []token, start, stop tokenKind) ([]token, bool) {
	from := -1
	for i, t := range tokens {
		if t.kind == start {
			from = i + 1
			break
		}
	}
	if from < 0 {
		return nil, false
	}
	to := len(tokens)
	for i := from; i < len(tokens); i++ {
		if tokens[i].kind == stop {
			to = i
			break
		}
	}
	return tokens[from:to], true
}

var priorityPrefix = regexp.MustCompile(`(?i)^[\[(](low|medium|high|critical)(?:\s+priority)?[\])]\s*`)

func (p *Parser) parseHuman(body []token) *models.HumanSection {
	h := &models.HumanSection{
		Actions:   []models.ActionItem{},
		Decisions: []models.DecisionItem{},
		Testing:   []models.TestingItem{},
	}

	block := tokText
	for _, t := range body {
		switch t.kind {
		case tokActions, tokDecisions, tokTesting, tokGit:
			block = t.kind
		case tokNoAction:
			h.NoAction = true
			block = tokText
		case tokNextAgent:
			if name, ok := p.dir.Lookup(t.value); ok {
				h.NextAgent = name
			}
			block = tokText
		case tokItem:
			if t.value == "" {
				continue
			}
			switch block {
			case tokActions:
				item := models.ActionItem{Description: t.value, Blocking: true}
				if m := priorityPrefix.FindStringSubmatch(t.value); m != nil {
					item.Priority = models.Priority(strings.ToLower(m[1]))
					item.Description = strings.TrimSpace(t.value[len(m[0]):])
				}
				h.Actions = append(h.Actions, item)
			case tokDecisions:
				h.Decisions = append(h.Decisions, models.DecisionItem{Description: t.value, Required: true})
			case tokTesting:
				h.Testing = append(h.Testing, models.TestingItem{Description: t.value})
			case tokGit:
				h.GitOperations = append(h.GitOperations, models.GitOperation{
					Type:        InferGitOperation(t.value),
					Description: t.value,
				})
			}
		}
	}

	h.HasActions = len(h.Actions) > 0 || len(h.Decisions) > 0 || len(h.Testing) > 0
	return h
}

// InferGitOperation classifies a git request by keyword.
func InferGitOperation(description string) models.GitOperationType {
	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "merge"):
		return models.GitMerge
	case strings.Contains(lower, "push"):
		return models.GitPush
	case strings.Contains(lower, "branch"):
		return models.GitBranch
	default:
		return models.GitCommit
	}
}

var (
	targetPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bagent\s+(\w+)`),
		regexp.MustCompile(`(?i)(\w+)\s+agent\b`),
		regexp.MustCompile(`(?i)\bto\s+(\w+)`),
		regexp.MustCompile(`(?i)(\w+),?\s+please\b`),
		regexp.MustCompile(`(?i)agent[_-]?(\w+)\.md`),
	}
	repoPattern   = regexp.MustCompile(`(?i)\b(?:repo|repository)[:\s]+([^\s,]+)`)
	branchPattern = regexp.MustCompile(`(?i)\bbranch[:\s]+([^\s,]+)`)
)

func (p *Parser) parseHandoff(body []token) *models.HandoffSection {
	lines := make([]string, len(body))
	for i, t := range body {
		lines[i] = t.line
	}
	section := strings.TrimSpace(strings.Join(lines, "\n"))

	prompt := section
	if fenced, ok := firstPromptFence(p.md, section); ok {
		prompt = fenced
	}

	return &models.HandoffSection{
		TargetAgent: p.resolveTarget(prompt),
		Prompt:      prompt,
		Repo:        hint(repoPattern, prompt),
		Branch:      hint(branchPattern, prompt),
	}
}

// resolveTarget tries each pattern in order and returns the first match
// naming a known agent, falling back to the directory default.
func (p *Parser) resolveTarget(prompt string) models.AgentName {
	for _, re := range targetPatterns {
		for _, m := range re.FindAllStringSubmatch(prompt, -1) {
			if name, ok := p.dir.Lookup(m[1]); ok {
				return name
			}
		}
	}
	return p.dir.DefaultName()
}

func hint(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.Trim(m[1], "`'\".;:)")
}
