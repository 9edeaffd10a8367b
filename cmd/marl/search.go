package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/aretw0/marl"
)

var (
	searchBody        bool
	searchJSON        bool
	searchInteractive bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the notes in the mirror",
	Long: `Search notes by text, labels, colors, and flags.

Bare words match the title (and the body with --body). "l:work" or
"labels:work,home" matches labels, "c:red" matches colors. Flag tokens
take a mode and the letters p (pinned), a (archived), t (trashed):
"-a" hides archived notes, "=t" shows only trashed ones, "+a" shows
both. Archived and trashed notes are hidden unless asked for. Quoted
label selectors match exactly, bare ones by prefix.`,
	Run: func(cmd *cobra.Command, args []string) {
		app := openMirror(marl.WithMustExist(true))
		if err := app.Bootstrap(cmd.Context()); err != nil {
			fatal("Failed to bootstrap", err)
		}

		if searchInteractive {
			runInteractiveSearch(app)
			return
		}

		raw := strings.Join(args, " ")
		results := app.Query.Search(raw, searchBody)

		if searchJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(results); err != nil {
				fatal("Failed to encode JSON", err)
			}
			return
		}

		if len(results) == 0 {
			fmt.Println("No matches.")
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.Style().Options.SeparateRows = false

		t.AppendHeader(table.Row{
			text.FgGreen.Sprint("ID"),
			text.FgGreen.Sprint("Title"),
			text.FgGreen.Sprint("Matched In"),
		})
		for _, r := range results {
			t.AppendRow(table.Row{r.ID, r.Title, r.MatchedIn})
		}
		t.Render()
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().BoolVarP(&searchBody, "body", "b", false, "Match note bodies, not just titles")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output in JSON format")
	searchCmd.Flags().BoolVarP(&searchInteractive, "interactive", "i", false, "Live search as you type")
}
