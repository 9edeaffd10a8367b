package core_test

import (
	"testing"

	"github.com/aretw0/marl/pkg/core"
)

func TestSortIndexHelpers(t *testing.T) {
	items := []core.ListItem{
		{Text: "first", SortIndex: core.NextSortIndex(nil)},
	}
	items = append(items, core.ListItem{Text: "second", SortIndex: core.NextSortIndex(items)})
	if items[1].SortIndex <= items[0].SortIndex {
		t.Fatalf("appended item does not sort after: %d <= %d", items[1].SortIndex, items[0].SortIndex)
	}

	// Insert between the two without renumbering.
	mid, ok := core.SortIndexBetween(items[0].SortIndex, items[1].SortIndex)
	if !ok {
		t.Fatal("expected room between freshly spaced items")
	}
	if mid <= items[0].SortIndex || mid >= items[1].SortIndex {
		t.Errorf("midpoint %d not strictly between %d and %d", mid, items[0].SortIndex, items[1].SortIndex)
	}

	// An exhausted gap forces a renumber.
	if _, ok := core.SortIndexBetween(5, 6); ok {
		t.Error("expected no room between adjacent indexes")
	}
	squeezed := []core.ListItem{
		{Text: "b", SortIndex: 6},
		{Text: "a", SortIndex: 5},
	}
	core.ReindexItems(squeezed)
	if squeezed[0].Text != "a" || squeezed[1].Text != "b" {
		t.Errorf("reindex changed display order: %+v", squeezed)
	}
	if _, ok := core.SortIndexBetween(squeezed[0].SortIndex, squeezed[1].SortIndex); !ok {
		t.Error("reindex should reopen gaps between items")
	}
}

func TestSortedItemsStable(t *testing.T) {
	n := core.Note{
		ID:   "n1",
		Kind: core.KindList,
		Items: []core.ListItem{
			{Text: "z", SortIndex: 2},
			{Text: "tied-1", SortIndex: 1},
			{Text: "tied-2", SortIndex: 1},
		},
	}
	got := n.SortedItems()
	if got[0].Text != "tied-1" || got[1].Text != "tied-2" || got[2].Text != "z" {
		t.Errorf("unexpected order: %+v", got)
	}
	// The note's own slice must be untouched.
	if n.Items[0].Text != "z" {
		t.Error("SortedItems mutated the note")
	}
}

func TestLocalIDs(t *testing.T) {
	id := core.NewLocalID()
	if !core.IsLocalID(id) {
		t.Errorf("freshly minted id %q not recognized as local", id)
	}
	if core.IsLocalID("srv-123") {
		t.Error("server id misclassified as local")
	}
	if other := core.NewLocalID(); other == id {
		t.Error("local ids must be unique")
	}
}
