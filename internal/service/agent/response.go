package agent

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// textPaths are probed in order for the reply text.
var textPaths = []string{
	"response", "message", "text", "output", "reply", "content", "answer",
	"data.response", "data.message", "result.text",
}

var flowDiagramPaths = []string{"flow_diagram", "flowDiagram", "workflow"}

// FlowDiagramKeys must all be present for an embedded object to count as a diagram.
var FlowDiagramKeys = []string{"nodes", "edges"}

// ParseResponse reduces an arbitrary backend body to a Reply. A JSON string
// is used as is, an object is probed for a text field and otherwise shown
// as raw JSON, and anything else is shown as trimmed text.
func ParseResponse(body []byte) (*Reply, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, ErrEmptyResponse
	}
	reply := &Reply{Text: trimmed}
	if !gjson.Valid(trimmed) {
		return withDiagram(reply), nil
	}

	parsed := gjson.Parse(trimmed)
	switch {
	case parsed.Type == gjson.String:
		reply.Text = parsed.String()
	case parsed.IsObject():
		for _, path := range textPaths {
			if v := parsed.Get(path); v.Type == gjson.String && v.String() != "" {
				reply.Text = v.String()
				break
			}
		}
		if meta := parsed.Get("metadata"); meta.IsObject() {
			var m map[string]any
			if err := json.Unmarshal([]byte(meta.Raw), &m); err == nil {
				reply.Metadata = m
			}
		}
		for _, path := range flowDiagramPaths {
			if v := parsed.Get(path); v.IsObject() {
				reply.FlowDiagram = json.RawMessage(v.Raw)
				break
			}
		}
	}
	if strings.TrimSpace(reply.Text) == "" {
		return nil, ErrEmptyResponse
	}
	return withDiagram(reply), nil
}

func withDiagram(reply *Reply) *Reply {
	if reply.FlowDiagram != nil {
		return reply
	}
	raw, rest, ok := ExtractJSON(reply.Text, FlowDiagramKeys...)
	if !ok {
		return reply
	}
	reply.FlowDiagram = raw
	if rest != "" {
		reply.Text = rest
	}
	return reply
}

// ExtractJSON looks for an object spanning the first '{' to the last '}' of
// text. It reports the object and the text with the object cut out, or false
// when the span is missing, does not parse, is not an object, or lacks any
// of keys.
func ExtractJSON(text string, keys ...string) (json.RawMessage, string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, text, false
	}
	candidate := text[start : end+1]
	if !gjson.Valid(candidate) {
		return nil, text, false
	}
	obj := gjson.Parse(candidate)
	if !obj.IsObject() {
		return nil, text, false
	}
	fields := obj.Map()
	for _, key := range keys {
		if _, ok := fields[key]; !ok {
			return nil, text, false
		}
	}
	rest := strings.TrimSpace(strings.TrimSpace(text[:start]) + "\n" + strings.TrimSpace(text[end+1:]))
	return json.RawMessage(candidate), rest, true
}
