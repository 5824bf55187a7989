package jira

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Node is an Atlassian Document Format node.
type Node struct {
	Type    string         `json:"type"`
	Version int            `json:"version,omitempty"`
	Text    string         `json:"text,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
}

// PlaintextToADF wraps text in a single paragraph. Line breaks become
// hardBreak nodes.
func PlaintextToADF(text string) *Node {
	lines := strings.Split(text, "\n")
	content := make([]Node, 0, 2*len(lines))
	for i, line := range lines {
		if line != "" {
			content = append(content, Node{Type: "text", Text: line})
		}
		if i < len(lines)-1 {
			content = append(content, Node{Type: "hardBreak"})
		}
	}
	if len(content) == 0 {
		content = append(content, Node{Type: "text", Text: ""})
	}
	return &Node{
		Type:    "doc",
		Version: 1,
		Content: []Node{{Type: "paragraph", Content: content}},
	}
}

// ADFToPlaintext flattens a document. Blocks are separated by a blank line
// and list items by a newline.
func ADFToPlaintext(doc *Node) string {
	if doc == nil {
		return ""
	}
	blocks := make([]string, 0, len(doc.Content))
	for _, n := range doc.Content {
		if text := flatten(n); text != "" {
			blocks = append(blocks, strings.Trim(text, "\n"))
		}
	}
	return strings.Join(blocks, "\n\n")
}

func flatten(n Node) string {
	switch n.Type {
	case "text":
		return n.Text
	case "hardBreak":
		return "\n"
	}
	parts := make([]string, 0, len(n.Content))
	for _, child := range n.Content {
		parts = append(parts, flatten(child))
	}
	if n.Type == "bulletList" || n.Type == "orderedList" {
		items := parts[:0]
		for _, p := range parts {
			if p != "" {
				items = append(items, strings.Trim(p, "\n"))
			}
		}
		return strings.Join(items, "\n")
	}
	return strings.Join(parts, "")
}

// DescriptionText renders a description field that is either an ADF
// document, a plain string, or null.
func DescriptionText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	var doc Node
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	return ADFToPlaintext(&doc)
}
