package parser

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/pagegraph/internal/apperr"
)

// interpretedKeys are the frontmatter keys the graph reads. Their values come
// back as string, bool or []string; every other key keeps its source text as
// an opaque string.
var interpretedKeys = map[string]bool{
	"title":   true,
	"tags":    true,
	"public":  true,
	"alias":   true,
	"aliases": true,
}

// decodeFrontmatter decodes the lines between the frontmatter delimiters.
// Input that YAML rejects is retried with a line-oriented "key: value"
// reading, which only fails on a line that has no key at all.
func decodeFrontmatter(lines []string) (map[string]any, error) {
	text := strings.Join(lines, "\n")
	if strings.TrimSpace(text) == "" {
		return map[string]any{}, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err == nil &&
		doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 && doc.Content[0].Kind == yaml.MappingNode {
		return decodeMapping(doc.Content[0]), nil
	}
	return decodeLines(lines)
}

func decodeMapping(n *yaml.Node) map[string]any {
	out := make(map[string]any, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if interpretedKeys[key] {
			out[key] = nodeValue(n.Content[i+1])
		} else {
			out[key] = opaqueValue(n.Content[i+1])
		}
	}
	return out
}

// opaqueValue returns the source text of a value: the literal for scalars and
// the re-encoded YAML for collections.
func opaqueValue(n *yaml.Node) string {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind == yaml.ScalarNode {
		return n.Value
	}
	raw, err := yaml.Marshal(n)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func nodeValue(n *yaml.Node) any {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!bool":
			b, err := strconv.ParseBool(n.Value)
			if err == nil {
				return b
			}
		case "!!null":
			return ""
		}
		return n.Value
	case yaml.SequenceNode:
		return flattenSequence(n, nil)
	case yaml.AliasNode:
		if n.Alias != nil {
			return nodeValue(n.Alias)
		}
		return ""
	default:
		raw, err := yaml.Marshal(n)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(raw))
	}
}

// flattenSequence collects scalar items. Nested sequences are flattened so
// that "alias: [[Foo]]" reads as a single item.
func flattenSequence(n *yaml.Node, out []string) []string {
	if out == nil {
		out = []string{}
	}
	for _, item := range n.Content {
		switch item.Kind {
		case yaml.SequenceNode:
			out = flattenSequence(item, out)
		case yaml.ScalarNode:
			out = append(out, item.Value)
		}
	}
	return out
}

func decodeLines(lines []string) (map[string]any, error) {
	out := make(map[string]any)
	lastKey := ""
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if item, ok := strings.CutPrefix(trimmed, "- "); ok && lastKey != "" {
			if !interpretedKeys[lastKey] {
				raw, _ := out[lastKey].(string)
				out[lastKey] = strings.TrimPrefix(raw+"\n"+trimmed, "\n")
				continue
			}
			list, _ := out[lastKey].([]string)
			out[lastKey] = append(list, strings.TrimSpace(item))
			continue
		}
		key, value, ok := strings.Cut(trimmed, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			return nil, fmt.Errorf("%w: line %d: %q", apperr.ErrFrontmatterDecode, i+2, line)
		}
		lastKey = key
		if interpretedKeys[key] {
			out[key] = scalarValue(strings.TrimSpace(value))
		} else {
			out[key] = unquote(strings.TrimSpace(value))
		}
	}
	return out, nil
}

func scalarValue(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	case "":
		return ""
	}
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") && !strings.HasPrefix(v, "[[") {
		return splitList(v[1 : len(v)-1])
	}
	return unquote(v)
}

// splitList splits a comma separated list, dropping empty items.
func splitList(s string) []string {
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		if item = unquote(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// listValue interprets a frontmatter value as a list of names.
func listValue(v any) []string {
	switch v := v.(type) {
	case []string:
		return v
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") && !strings.HasPrefix(s, "[[") {
			s = s[1 : len(s)-1]
		}
		return splitList(s)
	}
	return nil
}

// boolValue interprets a frontmatter value as a boolean.
func boolValue(v any) (bool, bool) {
	switch v := v.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}

// cleanName strips page-reference and tag decoration from a name.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimLeft(s, "[")
	s = strings.TrimRight(s, "]")
	return strings.TrimSpace(s)
}
