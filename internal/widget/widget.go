// Package widget turns bracketed tokens in chat text into inline badges.
package widget

import (
	"html/template"
	"regexp"
	"strings"
)

// Kind separates clickable actions from passive commentary labels.
type Kind string

const (
	KindAction     Kind = "action"
	KindCommentary Kind = "commentary"
)

// Badge describes how one recognised token is displayed.
type Badge struct {
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`
	Color string `json:"color"`
	Icon  string `json:"icon,omitempty"`
}

// Segment is either literal text or a badge.
type Segment struct {
	Text  string `json:"text"`
	Badge *Badge `json:"badge,omitempty"`
}

var tokenPattern = regexp.MustCompile(`(\[.*?\]|<.*?>)`)

var aliases = map[string]string{
	"clarifying question": "Clarifying question",
	"roactive question":   "Proactive question",
}

var table = buildTable()

func buildTable() map[string]Badge {
	actions := []Badge{
		{Label: "Connect to Quickbooks", Color: "green", Icon: "list"},
		{Label: "Send Test Report", Color: "blue", Icon: "mail"},
		{Label: "Publish Agent", Color: "coral", Icon: "upload"},
	}
	commentary := []Badge{
		{Label: "Web search, Quickbooks data fetched", Color: "green"},
		{Label: "Integration tests ran", Color: "blue"},
		{Label: "Memory fetched", Color: "purple"},
		{Label: "User memory fetched", Color: "purple"},
		{Label: "Tool tip", Color: "yellow"},
		{Label: "User intent", Color: "indigo"},
		{Label: "Web search, Quickbooks schema fetch, agent asks clarifying questions", Color: "teal"},
		{Label: "User expectation that agent learns from their previous solution", Color: "pink"},
		{Label: "Agent learns from user's previous solution", Color: "pink"},
		{Label: "Learn from user's prior solution", Color: "pink"},
		{Label: "Smart assumption", Color: "emerald"},
		{Label: "Welcome", Color: "emerald"},
		{Label: "Clarifying question", Color: "orange"},
		{Label: "Agent overview", Color: "violet"},
		{Label: "Spreadsheet", Color: "gray"},
		{Label: "Web search", Color: "cyan"},
		{Label: "Quickbooks schema fetch", Color: "lime"},
		{Label: "proactive question", Color: "orange"},
		{Label: "Proactive question", Color: "orange"},
		{Label: "Personalize communication", Color: "teal"},
		{Label: "User acceptance test", Color: "emerald"},
		{Label: "Plan approved", Color: "green"},
		{Label: "Integration test", Color: "blue"},
		{Label: "User guidance", Color: "amber"},
		{Label: "User Intent", Color: "indigo"},
		{Label: "Agent plan", Color: "violet"},
		{Label: "Securely connect to Quickbooks", Color: "red"},
		{Label: "Revokable secure access to Quickbooks", Color: "red"},
	}
	out := make(map[string]Badge, len(actions)+len(commentary))
	for _, b := range actions {
		b.Kind = KindAction
		out[b.Label] = b
	}
	for _, b := range commentary {
		b.Kind = KindCommentary
		if _, taken := out[b.Label]; !taken {
			out[b.Label] = b
		}
	}
	return out
}

// Lookup resolves the inner text of a token, following aliases.
func Lookup(name string) (Badge, bool) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	b, ok := table[name]
	return b, ok
}

// Split cuts text into ordered segments. Unknown tokens stay literal,
// delimiters included. Adjacent literal text is merged.
func Split(text string) []Segment {
	if text == "" {
		return nil
	}
	var segments []Segment
	appendText := func(s string) {
		if s == "" {
			return
		}
		if n := len(segments); n > 0 && segments[n-1].Badge == nil {
			segments[n-1].Text += s
			return
		}
		segments = append(segments, Segment{Text: s})
	}

	last := 0
	for _, loc := range tokenPattern.FindAllStringIndex(text, -1) {
		appendText(text[last:loc[0]])
		token := text[loc[0]:loc[1]]
		if badge, ok := Lookup(token[1 : len(token)-1]); ok {
			b := badge
			segments = append(segments, Segment{Text: b.Label, Badge: &b})
		} else {
			appendText(token)
		}
		last = loc[1]
	}
	appendText(text[last:])
	return segments
}

var icons = map[string]string{
	"list":   `<svg class="badge-icon" fill="currentColor" viewBox="0 0 20 20"><path fill-rule="evenodd" d="M3 4a1 1 0 011-1h12a1 1 0 011 1v2a1 1 0 01-1 1H4a1 1 0 01-1-1V4zm0 4a1 1 0 011-1h12a1 1 0 011 1v2a1 1 0 01-1 1H4a1 1 0 01-1-1V8zm0 4a1 1 0 011-1h12a1 1 0 011 1v2a1 1 0 01-1 1H4a1 1 0 01-1-1v-2z" clip-rule="evenodd"/></svg>`,
	"mail":   `<svg class="badge-icon" fill="currentColor" viewBox="0 0 20 20"><path d="M2.003 5.884L10 9.882l7.997-3.998A2 2 0 0016 4H4a2 2 0 00-1.997 1.884z"/><path d="M18 8.118l-8 4-8-4V14a2 2 0 002 2h12a2 2 0 002-2V8.118z"/></svg>`,
	"upload": `<svg class="badge-icon" fill="currentColor" viewBox="0 0 20 20"><path fill-rule="evenodd" d="M10 18a8 8 0 100-16 8 8 0 000 16zm3.707-8.293l-3-3a1 1 0 00-1.414 0l-3 3a1 1 0 001.414 1.414L9 9.414V13a1 1 0 102 0V9.414l1.293 1.293a1 1 0 001.414-1.414z" clip-rule="evenodd"/></svg>`,
}

// RenderHTML escapes text and replaces recognised tokens with badge buttons.
func RenderHTML(text string) template.HTML {
	var sb strings.Builder
	for _, seg := range Split(text) {
		if seg.Badge == nil {
			sb.WriteString(template.HTMLEscapeString(seg.Text))
			continue
		}
		b := seg.Badge
		sb.WriteString(`<button type="button" class="badge badge-`)
		sb.WriteString(string(b.Kind))
		sb.WriteString(` badge-`)
		sb.WriteString(b.Color)
		sb.WriteString(`" data-badge="`)
		sb.WriteString(template.HTMLEscapeString(b.Label))
		sb.WriteString(`">`)
		sb.WriteString(icons[b.Icon])
		sb.WriteString(template.HTMLEscapeString(b.Label))
		sb.WriteString(`</button>`)
	}
	return template.HTML(sb.String())
}
