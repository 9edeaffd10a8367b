// Package query parses and evaluates note search strings. A query mixes
// free text with structured tokens: status flags (-t, +a, =p), label
// selectors (l:name, label:"Exact Name"), and color selectors (c:red).
// Parsing never fails; tokens the parser cannot place are collected as
// warnings so an interactive caller can show them without aborting the
// search.
package query

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// FlagMode is the tri-state filter for one boolean note property.
type FlagMode byte

const (
	// FlagAny matches notes regardless of the property.
	FlagAny FlagMode = '+'
	// FlagExclude matches only notes where the property is unset.
	FlagExclude FlagMode = '-'
	// FlagOnly matches only notes where the property is set.
	FlagOnly FlagMode = '='
)

// Match applies the mode to one property value.
func (m FlagMode) Match(val bool) bool {
	switch m {
	case FlagExclude:
		return !val
	case FlagOnly:
		return val
	default:
		return true
	}
}

func (m FlagMode) String() string {
	return string(rune(m))
}

// LabelSelector is one alternative inside a label group. Quoted tokens
// produce exact selectors; bare tokens match label names by prefix.
type LabelSelector struct {
	Name  string
	Exact bool
}

// Query is the parsed form of a search string. Label and color groups
// combine as AND across groups and OR within one group, mirroring how the
// tokens were written: "l:a l:b" demands both, "l:a,b" demands either.
type Query struct {
	Raw      string
	Pinned   FlagMode
	Archived FlagMode
	Trashed  FlagMode
	Labels   [][]LabelSelector
	Colors   [][]string
	Text     string
	Warnings []string

	re *regexp.Regexp
}

var (
	flagRE  = regexp.MustCompile(`(^|\s)([-+=]\w+)\b`)
	colorRE = regexp.MustCompile(`(?i)\b(?:c|colors?):([\w,]+)\b`)
	labelRE = regexp.MustCompile(`(?i)\b(?:l|labels?):(?:"([^"]+)"|([\w,]+)\b)`)
	spaceRE = regexp.MustCompile(`\s+`)
)

// New parses a raw search string. Unless a flag token overrides them, the
// defaults show pinned and unpinned notes alike and hide archived and
// trashed ones.
func New(raw string) *Query {
	q := &Query{
		Raw:      raw,
		Pinned:   FlagAny,
		Archived: FlagExclude,
		Trashed:  FlagExclude,
	}

	// Label tokens go first so that color and flag syntax inside a quoted
	// label name is not picked up by the later passes.
	rest := raw
	for _, m := range labelRE.FindAllStringSubmatch(rest, -1) {
		if m[1] != "" {
			q.Labels = append(q.Labels, []LabelSelector{{Name: m[1], Exact: true}})
			continue
		}
		var group []LabelSelector
		for _, part := range strings.Split(m[2], ",") {
			if part != "" {
				group = append(group, LabelSelector{Name: part})
			}
		}
		if len(group) > 0 {
			q.Labels = append(q.Labels, group)
		}
	}
	rest = labelRE.ReplaceAllString(rest, "")

	for _, m := range colorRE.FindAllStringSubmatch(rest, -1) {
		var group []string
		for _, part := range strings.Split(m[1], ",") {
			if part != "" {
				group = append(group, part)
			}
		}
		if len(group) > 0 {
			q.Colors = append(q.Colors, group)
		}
	}
	rest = colorRE.ReplaceAllString(rest, "")

	for _, m := range flagRE.FindAllStringSubmatch(rest, -1) {
		mode := FlagMode(m[2][0])
		for _, letter := range m[2][1:] {
			switch unicode.ToLower(letter) {
			case 'p':
				q.Pinned = mode
			case 'a':
				q.Archived = mode
			case 't':
				q.Trashed = mode
			default:
				q.Warnings = append(q.Warnings, fmt.Sprintf("unknown flag %q", string(letter)))
			}
		}
	}
	rest = flagRE.ReplaceAllString(rest, "$1")

	q.Text = strings.TrimSpace(spaceRE.ReplaceAllString(rest, " "))
	if q.Text != "" {
		// Case-insensitive substring match, tolerant of whitespace runs:
		// the query "two  words" still finds "two words".
		pattern := "(?i)" + strings.ReplaceAll(regexp.QuoteMeta(q.Text), " ", `\s+`)
		re, err := regexp.Compile(pattern)
		if err != nil {
			q.Warnings = append(q.Warnings, fmt.Sprintf("bad search text: %v", err))
		} else {
			q.re = re
		}
	}
	return q
}

// MatchText reports whether the query's free text occurs in s. A query
// without free text matches everything.
func (q *Query) MatchText(s string) bool {
	if q.re == nil {
		return true
	}
	return q.re.MatchString(s)
}

// HasText reports whether the query carries a free-text component.
func (q *Query) HasText() bool {
	return q.re != nil
}
