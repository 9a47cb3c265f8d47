package parser

import (
	"regexp"
	"strings"
)

// tokenKind classifies a single response line.
type tokenKind int

const (
	tokText tokenKind = iota
	tokItem
	tokHumanSection
	tokAgentSection
	tokActions
	tokDecisions
	tokTesting
	tokGit
	tokNextAgent
	tokNoAction
)

// token is one lexed line. For tokItem the value is the item text, for
// tokNextAgent the named agent, for tokText the original line.
type token struct {
	kind  tokenKind
	value string
	line  string
}

// Emoji that introduce markers. The variation selector U+FE0F often
// follows the arrow.
const (
	emojiHuman    = "🔵"
	emojiAgent    = "🟢"
	emojiCheck    = "✅"
	emojiQuestion = "❓"
	emojiTest     = "🧪"
	emojiPackage  = "📦"
	emojiArrow    = "➡"

	variationSelector = "\uFE0F"
)

var markerEmoji = []string{emojiHuman, emojiAgent, emojiCheck, emojiQuestion, emojiTest, emojiPackage, emojiArrow, variationSelector}

type markerRule struct {
	kind tokenKind
	re   *regexp.Regexp
	// flagged rules only apply to lines carrying a marker emoji or
	// markdown decoration, so ordinary prose is not mistaken for a marker.
	flagged bool
}

// markerRules are matched against a normalized line in order.
var markerRules = []markerRule{
	{tokHumanSection, regexp.MustCompile(`^for\s+(?:vader|the\s+human(?:\s+operator)?)\b`), true},
	{tokAgentSection, regexp.MustCompile(`^for\s+the\s+next\s+agent\b`), true},
	{tokNoAction, regexp.MustCompile(`^no\s+action\b`), true},
	{tokActions, regexp.MustCompile(`^actions?\s+required\s*:?\s*$`), false},
	{tokDecisions, regexp.MustCompile(`^decisions?\s+needed\s*:?\s*$`), false},
	{tokTesting, regexp.MustCompile(`^testing\s*:?\s*$`), false},
	{tokGit, regexp.MustCompile(`^git(?:\s+operations?)?\s*:?\s*$`), false},
	{tokNextAgent, regexp.MustCompile(`^next\s+agent\s*:\s*(\w*)`), false},
	{tokNextAgent, regexp.MustCompile(`^next\s+agent\s*(\w*)`), true},
}

// looseMarkerRules relax the end-of-line anchor when the line carried a
// marker emoji, so "✅ Action Required (blocking)" still counts.
var looseMarkerRules = []markerRule{
	{tokActions, regexp.MustCompile(`^actions?\s+required\b`), true},
	{tokDecisions, regexp.MustCompile(`^decisions?\s+needed\b`), true},
	{tokTesting, regexp.MustCompile(`^testing\b`), true},
	{tokGit, regexp.MustCompile(`^git\b`), true},
}

// lex splits text into classified lines. It never fails.
func lex(text string) []token {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	tokens := make([]token, 0, len(lines))
	for _, line := range lines {
		tokens = append(tokens, classify(line))
	}
	return tokens
}

func classify(line string) token {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "-") {
		return token{kind: tokItem, value: strings.TrimSpace(strings.TrimLeft(trimmed, "-")), line: line}
	}

	norm, hadEmoji := normalize(trimmed)
	flagged := hadEmoji || isDecorated(trimmed)
	for _, r := range markerRules {
		if r.flagged && !flagged {
			continue
		}
		m := r.re.FindStringSubmatch(norm)
		if m == nil {
			continue
		}
		t := token{kind: r.kind, line: line}
		if r.kind == tokNextAgent && len(m) > 1 {
			t.value = m[1]
		}
		return t
	}
	if hadEmoji {
		for _, r := range looseMarkerRules {
			if r.re.MatchString(norm) {
				return token{kind: r.kind, line: line}
			}
		}
	}
	return token{kind: tokText, line: line}
}

// normalize strips markdown decoration and marker emoji and lowercases
// the line. It reports whether a marker emoji was present.
func normalize(s string) (string, bool) {
	hadEmoji := false
	for _, e := range markerEmoji {
		if strings.Contains(s, e) {
			if e != variationSelector {
				hadEmoji = true
			}
			s = strings.ReplaceAll(s, e, " ")
		}
	}
	s = strings.TrimLeft(s, "#> \t")
	s = strings.ReplaceAll(s, "*", "")
	s = strings.TrimSpace(s)
	return strings.ToLower(s), hadEmoji
}

func isDecorated(s string) bool {
	return strings.HasPrefix(s, "#") || strings.HasPrefix(s, "*")
}
