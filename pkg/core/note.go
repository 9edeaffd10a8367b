package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NoteKind discriminates the two body variants a note can carry.
type NoteKind string

const (
	// KindText notes hold free-form text.
	KindText NoteKind = "text"
	// KindList notes hold ordered check-list items instead of a body.
	KindList NoteKind = "list"
)

// sortStep is the gap left between consecutive list items so that later
// insertions can take the midpoint without renumbering.
const sortStep int64 = 1 << 20

// localIDPrefix marks identifiers minted on this machine before the remote
// service has assigned a permanent one.
const localIDPrefix = "local-"

// ListItem is a single entry of a list note.
type ListItem struct {
	Text      string `json:"text"`
	Checked   bool   `json:"checked"`
	SortIndex int64  `json:"sortIndex"`
}

// Label is one entry of the label vocabulary. Notes reference labels by
// Name; the ID is the remote service's handle and may be empty for labels
// that have not synced yet.
type Label struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Note is the unit of storage and sync. Exactly one of Body or Items is
// meaningful, selected by Kind.
type Note struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Kind           NoteKind   `json:"kind"`
	Body           string     `json:"body,omitempty"`
	Items          []ListItem `json:"items,omitempty"`
	Color          string     `json:"color,omitempty"`
	Labels         []string   `json:"labels,omitempty"`
	Pinned         bool       `json:"pinned,omitempty"`
	Archived       bool       `json:"archived,omitempty"`
	Trashed        bool       `json:"trashed,omitempty"`
	ServerRevision string     `json:"serverRevision,omitempty"`
	Fingerprint    string     `json:"fingerprint,omitempty"`
	Modified       time.Time  `json:"modified"`

	// HasConflict is set while a superseded local edit is parked next to
	// the note's file and cleared once that file disappears.
	HasConflict bool `json:"hasConflict,omitempty"`
	// Stale is set when the note could not be reconciled with the remote
	// service, either because pushes keep failing or because its local
	// artifact does not parse.
	Stale bool `json:"stale,omitempty"`
}

// Clone returns a deep copy. Slices are copied so that callers can mutate
// the result without aliasing the original.
func (n Note) Clone() Note {
	c := n
	if n.Items != nil {
		c.Items = make([]ListItem, len(n.Items))
		copy(c.Items, n.Items)
	}
	if n.Labels != nil {
		c.Labels = make([]string, len(n.Labels))
		copy(c.Labels, n.Labels)
	}
	return c
}

// SortedItems returns the note's items in display order. The sort is
// stable, so items with equal indexes keep their insertion order.
func (n Note) SortedItems() []ListItem {
	items := make([]ListItem, len(n.Items))
	copy(items, n.Items)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SortIndex < items[j].SortIndex
	})
	return items
}

// HasLabel reports whether the note carries the named label.
func (n Note) HasLabel(name string) bool {
	for _, l := range n.Labels {
		if l == name {
			return true
		}
	}
	return false
}

func (n Note) String() string {
	return fmt.Sprintf("%s (%s)", n.Title, n.ID)
}

// NewLocalID mints a provisional note identifier. The sync engine swaps it
// for the service-assigned one on first push.
func NewLocalID() string {
	return localIDPrefix + uuid.NewString()
}

// IsLocalID reports whether id was minted by NewLocalID and has not been
// replaced by a server identifier yet.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

// NextSortIndex returns the index for an item appended after the current
// ones.
func NextSortIndex(items []ListItem) int64 {
	var max int64
	for _, it := range items {
		if it.SortIndex > max {
			max = it.SortIndex
		}
	}
	return max + sortStep
}

// SortIndexBetween returns the midpoint index for an item inserted between
// two neighbours. ok is false when the gap is exhausted and the caller
// must renumber with ReindexItems first.
func SortIndexBetween(prev, next int64) (idx int64, ok bool) {
	if next-prev < 2 {
		return 0, false
	}
	return prev + (next-prev)/2, true
}

// ReindexItems rewrites the items' sort indexes to evenly spaced values,
// preserving the current display order.
func ReindexItems(items []ListItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SortIndex < items[j].SortIndex
	})
	for i := range items {
		items[i].SortIndex = int64(i+1) * sortStep
	}
}
