package query

import (
	"strings"
	"testing"
)

func TestNew_FlagDefaults(t *testing.T) {
	q := New("")
	if q.Pinned != FlagAny {
		t.Errorf("Pinned default = %q, want any", q.Pinned)
	}
	if q.Archived != FlagExclude {
		t.Errorf("Archived default = %q, want exclude", q.Archived)
	}
	if q.Trashed != FlagExclude {
		t.Errorf("Trashed default = %q, want exclude", q.Trashed)
	}
	if q.Text != "" || len(q.Labels) != 0 || len(q.Colors) != 0 || len(q.Warnings) != 0 {
		t.Errorf("empty query parsed as %+v", q)
	}
}

func TestNew_Flags(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		pinned   FlagMode
		archived FlagMode
		trashed  FlagMode
	}{
		{"trash only", "=t", FlagAny, FlagExclude, FlagOnly},
		{"include archived", "+a", FlagAny, FlagAny, FlagExclude},
		{"unpinned only", "-p", FlagExclude, FlagExclude, FlagExclude},
		{"multiple letters", "=pa", FlagOnly, FlagOnly, FlagExclude},
		{"separate tokens", "-p +t", FlagExclude, FlagExclude, FlagAny},
		{"later token wins", "-t =t", FlagAny, FlagExclude, FlagOnly},
		{"upper case letters", "=T", FlagAny, FlagExclude, FlagOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(tt.raw)
			if q.Pinned != tt.pinned || q.Archived != tt.archived || q.Trashed != tt.trashed {
				t.Errorf("flags = p:%q a:%q t:%q, want p:%q a:%q t:%q",
					q.Pinned, q.Archived, q.Trashed, tt.pinned, tt.archived, tt.trashed)
			}
			if q.Text != "" {
				t.Errorf("flag tokens leaked into text: %q", q.Text)
			}
		})
	}
}

func TestNew_UnknownFlagWarns(t *testing.T) {
	q := New("-z")
	if len(q.Warnings) != 1 || !strings.Contains(q.Warnings[0], "unknown flag") {
		t.Errorf("Warnings = %v", q.Warnings)
	}
	// The token is still consumed rather than treated as text.
	if q.Text != "" {
		t.Errorf("Text = %q", q.Text)
	}
}

func TestNew_FlagsMustLeadToken(t *testing.T) {
	q := New("foo-bar")
	if q.Text != "foo-bar" {
		t.Errorf("Text = %q, want the hyphenated word intact", q.Text)
	}
	if q.Trashed != FlagExclude || q.Archived != FlagExclude {
		t.Error("mid-word hyphen must not be read as a flag")
	}
}

func TestNew_Labels(t *testing.T) {
	q := New(`l:travel label:"Food, Drink" labels:a,b trip`)
	if len(q.Labels) != 3 {
		t.Fatalf("expected 3 label groups, got %+v", q.Labels)
	}
	if q.Labels[0][0].Name != "travel" || q.Labels[0][0].Exact {
		t.Errorf("group 0 = %+v", q.Labels[0])
	}
	if q.Labels[1][0].Name != "Food, Drink" || !q.Labels[1][0].Exact {
		t.Errorf("group 1 = %+v", q.Labels[1])
	}
	if len(q.Labels[2]) != 2 || q.Labels[2][0].Name != "a" || q.Labels[2][1].Name != "b" {
		t.Errorf("group 2 = %+v", q.Labels[2])
	}
	if q.Text != "trip" {
		t.Errorf("Text = %q, want %q", q.Text, "trip")
	}
}

func TestNew_Colors(t *testing.T) {
	q := New("c:red,blue colors:TEAL plan")
	if len(q.Colors) != 2 {
		t.Fatalf("expected 2 color groups, got %+v", q.Colors)
	}
	if q.Colors[0][0] != "red" || q.Colors[0][1] != "blue" {
		t.Errorf("group 0 = %v", q.Colors[0])
	}
	if q.Colors[1][0] != "TEAL" {
		t.Errorf("group 1 = %v", q.Colors[1])
	}
	if q.Text != "plan" {
		t.Errorf("Text = %q", q.Text)
	}
}

func TestNew_MixedQuery(t *testing.T) {
	q := New("trip c:blue -t l:travel plan")
	if q.Trashed != FlagExclude {
		t.Errorf("Trashed = %q", q.Trashed)
	}
	if len(q.Labels) != 1 || len(q.Colors) != 1 {
		t.Errorf("labels=%v colors=%v", q.Labels, q.Colors)
	}
	if q.Text != "trip plan" {
		t.Errorf("Text = %q, want %q", q.Text, "trip plan")
	}
}

func TestMatchText(t *testing.T) {
	tests := []struct {
		raw   string
		s     string
		match bool
	}{
		{"two  words", "some Two Words here", true},
		{"two words", "two\t words", true},
		{"two words", "twowords", false},
		{"a.b", "a.b", true},
		{"a.b", "axb", false},
		{"", "anything", true},
	}
	for _, tt := range tests {
		q := New(tt.raw)
		if got := q.MatchText(tt.s); got != tt.match {
			t.Errorf("New(%q).MatchText(%q) = %v, want %v", tt.raw, tt.s, got, tt.match)
		}
	}
}
