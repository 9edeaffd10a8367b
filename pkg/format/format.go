// Package format renders notes as editable text artifacts and parses
// edited artifacts back into notes. Two dialects are supported: a plain
// header block ("# title" / "id:" / "labels:") and YAML front matter.
// Parsing is deliberately permissive about what it accepts; rendering
// always produces the canonical form, so a full sync cycle normalizes
// hand-edited files.
package format

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/aretw0/marl/pkg/core"
)

// Style selects which textual dialect Render emits.
type Style int

const (
	// StyleHeader renders the "# title" header block.
	StyleHeader Style = iota
	// StyleMeta renders YAML front matter.
	StyleMeta
)

// ParseStyle maps a configuration string to a Style.
func ParseStyle(s string) (Style, error) {
	switch s {
	case "", "header":
		return StyleHeader, nil
	case "meta", "frontmatter":
		return StyleMeta, nil
	default:
		return StyleHeader, fmt.Errorf("unknown artifact style %q", s)
	}
}

func (s Style) String() string {
	if s == StyleMeta {
		return "meta"
	}
	return "header"
}

// kindDetectWindow is how many leading lines are inspected for check-list
// syntax when deciding whether an artifact is a list note.
const kindDetectWindow = 8

var (
	listItemRE  = regexp.MustCompile(`^(\s*)\[([ xX-])\] ?(.*)$`)
	labelPartRE = regexp.MustCompile(`"([^"]+)"|([^,"]+)`)
	slugStripRE = regexp.MustCompile(`[^\p{L}\p{N}_ .-]`)
	spaceFoldRE = regexp.MustCompile(`\s+`)
)

// Parsed is the result of reading a textual artifact. ID is empty for
// files that have not been adopted by the sync engine yet.
type Parsed struct {
	ID     string
	Title  string
	Labels []string
	Kind   core.NoteKind
	Body   string
	Items  []core.ListItem

	bodyLines []string
}

// Note materializes the parsed artifact as a fresh note. Sync bookkeeping
// fields are left zeroed for the engine to fill in.
func (p *Parsed) Note() core.Note {
	n := core.Note{
		ID:     p.ID,
		Title:  p.Title,
		Kind:   p.Kind,
		Labels: append([]string(nil), p.Labels...),
	}
	if p.Kind == core.KindList {
		n.Items = append([]core.ListItem(nil), p.Items...)
	} else {
		n.Body = p.Body
	}
	return n
}

// Apply copies the user-editable fields onto an existing note. The note's
// own kind decides how the body is interpreted, so an edit cannot silently
// flip a text note into a list.
func (p *Parsed) Apply(n *core.Note) {
	n.Title = p.Title
	n.Labels = append([]string(nil), p.Labels...)
	if n.Kind == core.KindList {
		n.Items = itemsFromLines(p.bodyLines)
		n.Body = ""
		return
	}
	n.Body = strings.Join(p.bodyLines, "\n")
	n.Items = nil
}

// Render returns the canonical textual form of a note in the given style.
func Render(n core.Note, style Style) string {
	if style == StyleMeta {
		return renderMeta(n)
	}
	return strings.Join(renderHeaderLines(n), "\n") + "\n"
}

// Parse reads an artifact that must belong to an existing note. The id is
// the sole anchor back to that note, so its absence is an error.
func Parse(text string) (*Parsed, error) {
	p, err := ParseAny(text)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, &core.ParseError{Line: 1, Reason: "missing id"}
	}
	return p, nil
}

// ParseAny reads an artifact, tolerating a missing id. Used for files the
// engine is about to adopt as new notes.
func ParseAny(text string) (*Parsed, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.HasPrefix(text, "---\n") {
		return parseMeta(text)
	}
	return parseHeader(splitLines(text)), nil
}

// Identity returns the id and title of an artifact without a full parse
// contract; both are empty when the artifact is unreadable.
func Identity(text string) (id, title string) {
	p, err := ParseAny(text)
	if err != nil {
		return "", ""
	}
	return p.ID, p.Title
}

// FingerprintBytes returns the hex sha256 of raw artifact bytes.
func FingerprintBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns the fingerprint of the note's canonical rendering.
func Fingerprint(n core.Note, style Style) string {
	return FingerprintBytes([]byte(Render(n, style)))
}

// Fingerprinter binds Fingerprint to one style, in the shape the store
// expects.
func Fingerprinter(style Style) core.Fingerprinter {
	return func(n core.Note) string {
		return Fingerprint(n, style)
	}
}

// Slug converts a note title to a filename stem: compatibility-normalized,
// whitespace folded, and stripped of anything outside letters, digits,
// "_", " ", "." and "-".
func Slug(title string) string {
	t := norm.NFKC.String(title)
	t = spaceFoldRE.ReplaceAllString(t, " ")
	t = slugStripRE.ReplaceAllString(t, "")
	t = strings.TrimSpace(t)
	if t == "" {
		return "untitled"
	}
	return t
}

// EnsureIdentity splices an id (and a title, when none is present) into an
// artifact while leaving the rest of the text alone. Used during adoption,
// before the first full rewrite would normalize the file anyway.
func EnsureIdentity(text, id, title string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.HasPrefix(text, "---\n") {
		return ensureMetaIdentity(text, id, title)
	}
	lines := splitLines(text)
	out := make([]string, 0, len(lines)+2)
	i := 0
	if len(lines) > 0 && strings.HasPrefix(lines[0], "#") {
		out = append(out, lines[0])
		i = 1
	} else {
		out = append(out, "# "+title)
	}
	out = append(out, "id: "+id)
	if i < len(lines) && strings.HasPrefix(lines[i], "id:") {
		i++
	}
	out = append(out, lines[i:]...)
	return strings.Join(out, "\n") + "\n"
}

func renderHeaderLines(n core.Note) []string {
	lines := []string{"# " + n.Title, "id: " + n.ID}
	if len(n.Labels) > 0 {
		lines = append(lines, "labels: "+renderLabelList(n.Labels))
	}
	lines = append(lines, "")
	return append(lines, bodyLines(n)...)
}

func bodyLines(n core.Note) []string {
	if n.Kind == core.KindList {
		items := n.SortedItems()
		lines := make([]string, len(items))
		for i, it := range items {
			lines[i] = checkbox(it.Checked) + it.Text
		}
		return lines
	}
	if n.Body == "" {
		return nil
	}
	return strings.Split(n.Body, "\n")
}

func checkbox(checked bool) string {
	if checked {
		return "[x] "
	}
	return "[ ] "
}

func renderLabelList(labels []string) string {
	parts := make([]string, len(labels))
	for i, name := range labels {
		if strings.Contains(name, ",") {
			parts[i] = `"` + name + `"`
		} else {
			parts[i] = name
		}
	}
	return strings.Join(parts, ", ")
}

func parseLabelList(s string) []string {
	var labels []string
	for _, m := range labelPartRE.FindAllStringSubmatch(s, -1) {
		name := m[1]
		if name == "" {
			name = strings.TrimSpace(m[2])
		}
		if name != "" {
			labels = append(labels, name)
		}
	}
	return labels
}

// parseHeader never fails: every line it cannot place in the header block
// is body text.
func parseHeader(lines []string) *Parsed {
	p := &Parsed{}
	i := 0
	if i < len(lines) && strings.HasPrefix(lines[i], "#") {
		p.Title = strings.TrimSpace(strings.TrimPrefix(lines[i], "#"))
		i++
	}
	if i < len(lines) && strings.HasPrefix(lines[i], "id:") {
		p.ID = strings.TrimSpace(lines[i][len("id:"):])
		i++
	}
	if i < len(lines) && strings.HasPrefix(lines[i], "labels:") {
		p.Labels = parseLabelList(lines[i][len("labels:"):])
		i++
	}
	if i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	p.bodyLines = lines[i:]
	p.Kind = detectKind(lines)
	fillBody(p)
	return p
}

// detectKind scans the leading lines for check-list syntax.
func detectKind(lines []string) core.NoteKind {
	for i, line := range lines {
		if i >= kindDetectWindow {
			break
		}
		if listItemRE.MatchString(line) {
			return core.KindList
		}
	}
	return core.KindText
}

func fillBody(p *Parsed) {
	if p.Kind == core.KindList {
		p.Items = itemsFromLines(p.bodyLines)
		return
	}
	p.Body = strings.Join(p.bodyLines, "\n")
}

// itemsFromLines turns body lines into list items. Lines without check-box
// syntax become unchecked items rather than being dropped, so a sloppy
// edit never loses text.
func itemsFromLines(lines []string) []core.ListItem {
	var items []core.ListItem
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		it := core.ListItem{SortIndex: core.NextSortIndex(items)}
		if m := listItemRE.FindStringSubmatch(line); m != nil {
			it.Checked = m[2] == "x" || m[2] == "X"
			it.Text = m[3]
		} else {
			it.Text = line
		}
		items = append(items, it)
	}
	return items
}

// splitLines splits on "\n", dropping the empty tail produced by a
// trailing newline.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if strings.HasSuffix(text, "\n") {
		lines = lines[:len(lines)-1]
	}
	return lines
}
