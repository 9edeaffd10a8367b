package format

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/marl/pkg/core"
)

// metaBlock is the front-matter schema. Field order here is the order the
// keys appear in rendered files.
type metaBlock struct {
	Title      string   `yaml:"title"`
	ID         string   `yaml:"id"`
	Categories []string `yaml:"categories,omitempty"`
}

func renderMeta(n core.Note) string {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	_ = enc.Encode(metaBlock{Title: n.Title, ID: n.ID, Categories: n.Labels})
	enc.Close()
	buf.WriteString("---\n")
	for _, line := range bodyLines(n) {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.String()
}

// parseMeta reads the front-matter dialect. The block is decoded into a
// plain map first so unknown keys and oddly typed scalars do not fail the
// parse.
func parseMeta(text string) (*Parsed, error) {
	block, content, err := splitFrontMatter(text)
	if err != nil {
		return nil, err
	}

	var meta map[string]interface{}
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return nil, &core.ParseError{Line: 1, Reason: fmt.Sprintf("bad front matter: %v", err)}
	}

	p := &Parsed{
		Title:  asString(meta["title"]),
		ID:     asString(meta["id"]),
		Labels: asStringSlice(meta["categories"]),
	}
	p.bodyLines = splitLines(content)
	p.Kind = detectKind(p.bodyLines)
	fillBody(p)
	return p, nil
}

// splitFrontMatter separates the YAML block from the body. The caller has
// already verified the leading fence.
func splitFrontMatter(text string) (block, content string, err error) {
	rest := text[len("---"):]
	parts := strings.SplitN(rest, "---", 2)
	if len(parts) == 1 {
		return "", "", &core.ParseError{Line: 1, Reason: "front matter has no closing delimiter"}
	}
	content = strings.TrimPrefix(parts[1], "\n")
	return parts[0], content, nil
}

func ensureMetaIdentity(text, id, title string) string {
	block, content, err := splitFrontMatter(text)
	if err != nil {
		// Unclosed fence: leave the artifact exactly as written.
		return text
	}
	var meta map[string]interface{}
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return text
	}
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["id"] = id
	if asString(meta["title"]) == "" {
		meta["title"] = title
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	_ = enc.Encode(meta)
	enc.Close()
	buf.WriteString("---\n")
	buf.WriteString(content)
	return buf.String()
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asStringSlice(v interface{}) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}
