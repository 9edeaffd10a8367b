package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/aretw0/marl"
	"github.com/aretw0/marl/pkg/core"
)

var (
	listJSON    bool
	listTrashed bool
	listLabel   string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the notes in the mirror",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openMirror(marl.WithMustExist(true))
		if err := app.Bootstrap(cmd.Context()); err != nil {
			fatal("Failed to bootstrap", err)
		}

		notes := app.Store.Notes()
		sort.Slice(notes, func(i, j int) bool {
			if notes[i].Pinned != notes[j].Pinned {
				return notes[i].Pinned
			}
			if !notes[i].Modified.Equal(notes[j].Modified) {
				return notes[i].Modified.After(notes[j].Modified)
			}
			return notes[i].ID < notes[j].ID
		})

		// Filter
		var filtered []core.Note
		for _, note := range notes {
			if note.Trashed && !listTrashed {
				continue
			}
			if listLabel != "" && !hasLabel(note, listLabel) {
				continue
			}
			filtered = append(filtered, note)
		}

		if listJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(filtered); err != nil {
				fatal("Failed to encode JSON", err)
			}
			return
		}

		if len(filtered) == 0 {
			fmt.Println("No notes. Run 'marl sync' first, or 'marl new' to create one.")
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.Style().Options.SeparateRows = false

		t.AppendHeader(table.Row{
			text.FgGreen.Sprint("ID"),
			text.FgGreen.Sprint("Title"),
			text.FgGreen.Sprint("Kind"),
			text.FgGreen.Sprint("Labels"),
			text.FgGreen.Sprint("Status"),
		})

		for _, note := range filtered {
			t.AppendRow(table.Row{
				note.ID,
				note.Title,
				string(note.Kind),
				strings.Join(note.Labels, ", "),
				statusCell(note),
			})
		}

		t.Render()
	},
}

func hasLabel(n core.Note, label string) bool {
	for _, name := range n.Labels {
		if strings.EqualFold(name, label) {
			return true
		}
	}
	return false
}

// statusCell renders the sync flags of a note, colored by severity.
func statusCell(n core.Note) string {
	var parts []string
	if n.Pinned {
		parts = append(parts, text.FgHiYellow.Sprint("pinned"))
	}
	if n.Archived {
		parts = append(parts, text.FgHiBlue.Sprint("archived"))
	}
	if n.Trashed {
		parts = append(parts, text.FgHiMagenta.Sprint("trashed"))
	}
	if n.HasConflict {
		parts = append(parts, text.FgHiRed.Sprint("conflict"))
	}
	if n.Stale {
		parts = append(parts, text.FgHiRed.Sprint("stale"))
	}
	if len(parts) == 0 {
		return text.FgHiGreen.Sprint("clean")
	}
	return strings.Join(parts, ", ")
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().BoolVar(&listTrashed, "trashed", false, "Include trashed notes")
	listCmd.Flags().StringVar(&listLabel, "label", "", "Filter notes by label")
}
