package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/marl/pkg/core"
)

// Values for Result.MatchedIn.
const (
	MatchedTitle = "title"
	MatchedBody  = "body"
)

// Result is one search hit.
type Result struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	MatchedIn string `json:"matchedIn"`
}

// Engine evaluates queries against a store.
type Engine struct {
	store *core.Store
}

// NewEngine creates a query engine bound to one store.
func NewEngine(store *core.Store) *Engine {
	return &Engine{store: store}
}

// Search parses raw and evaluates it in one call.
func (e *Engine) Search(raw string, includeBody bool) []Result {
	return e.Evaluate(New(raw), includeBody)
}

// Evaluate runs a parsed query over the store. If the store's generation
// moves while the scan is underway, the partial result is discarded and
// the scan repeated, so one result set never mixes two store states.
// Unknown-label problems discovered during evaluation are appended to
// q.Warnings.
func (e *Engine) Evaluate(q *Query, includeBody bool) []Result {
	for {
		gen := e.store.Generation()
		notes := e.store.Notes()
		labels := e.store.Labels()
		results := evaluate(q, notes, labels, includeBody)
		if e.store.Generation() == gen {
			return results
		}
	}
}

type hit struct {
	res      Result
	modified time.Time
}

func evaluate(q *Query, notes []core.Note, vocab []core.Label, includeBody bool) []Result {
	groups := make([]map[string]bool, 0, len(q.Labels))
	for _, sels := range q.Labels {
		group := make(map[string]bool)
		for _, sel := range sels {
			expanded := expandSelector(sel, vocab)
			if len(expanded) == 0 {
				q.Warnings = append(q.Warnings, fmt.Sprintf("unknown label %q", sel.Name))
			}
			for _, name := range expanded {
				group[name] = true
			}
		}
		groups = append(groups, group)
	}

	var hits []hit
	for _, n := range notes {
		res, ok := matchNote(q, n, groups, includeBody)
		if !ok {
			continue
		}
		hits = append(hits, hit{res: res, modified: n.Modified})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if !hits[i].modified.Equal(hits[j].modified) {
			return hits[i].modified.After(hits[j].modified)
		}
		return hits[i].res.ID < hits[j].res.ID
	})

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = h.res
	}
	return results
}

// expandSelector resolves one selector against the label vocabulary. An
// exact name hit beats prefix expansion; otherwise every label sharing
// the prefix is included. Names are compared case-sensitively.
func expandSelector(sel LabelSelector, vocab []core.Label) []string {
	var out []string
	for _, l := range vocab {
		if l.Name == sel.Name {
			return []string{l.Name}
		}
		if !sel.Exact && strings.HasPrefix(l.Name, sel.Name) {
			out = append(out, l.Name)
		}
	}
	return out
}

func matchNote(q *Query, n core.Note, labelGroups []map[string]bool, includeBody bool) (Result, bool) {
	for _, group := range labelGroups {
		if !hasAnyLabel(n, group) {
			return Result{}, false
		}
	}
	for _, group := range q.Colors {
		if !matchColor(n.Color, group) {
			return Result{}, false
		}
	}
	if !q.Pinned.Match(n.Pinned) || !q.Trashed.Match(n.Trashed) || !q.Archived.Match(n.Archived) {
		return Result{}, false
	}

	res := Result{ID: n.ID, Title: n.Title, MatchedIn: MatchedTitle}
	if q.re == nil {
		return res, true
	}
	if q.re.MatchString(n.Title) {
		return res, true
	}
	if includeBody && q.re.MatchString(noteText(n)) {
		res.MatchedIn = MatchedBody
		return res, true
	}
	return Result{}, false
}

func hasAnyLabel(n core.Note, group map[string]bool) bool {
	for _, name := range n.Labels {
		if group[name] {
			return true
		}
	}
	return false
}

func matchColor(color string, group []string) bool {
	for _, want := range group {
		if strings.EqualFold(color, want) {
			return true
		}
	}
	return false
}

// noteText is the searchable body of a note. For lists that is the item
// texts without check-box decoration, so searching "x" does not hit every
// completed item.
func noteText(n core.Note) string {
	if n.Kind != core.KindList {
		return n.Body
	}
	items := n.SortedItems()
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.Text
	}
	return strings.Join(parts, "\n")
}
