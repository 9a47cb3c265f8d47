package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// promptLanguages are the fence info strings treated as a handoff prompt.
var promptLanguages = map[string]bool{
	"":         true,
	"text":     true,
	"markdown": true,
	"md":       true,
}

// firstPromptFence returns the body of the first fenced code block whose
// language marks it as prompt text.
func firstPromptFence(md goldmark.Markdown, section string) (string, bool) {
	if !strings.Contains(section, "```") {
		return "", false
	}
	source := []byte(section)
	doc := md.Parser().Parse(text.NewReader(source))

	var body string
	var found bool
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || found {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lang := strings.ToLower(string(block.Language(source)))
		if !promptLanguages[lang] {
			return ast.WalkSkipChildren, nil
		}
		var buf bytes.Buffer
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		body = strings.TrimSpace(buf.String())
		found = true
		return ast.WalkStop, nil
	})
	return body, found
}
