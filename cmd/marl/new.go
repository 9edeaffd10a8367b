package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/marl/pkg/format"
)

var (
	newBody   string
	newLabels []string
	newItems  []string
)

// newCmd represents the new command
var newCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Create a note file in the mirror",
	Long: `Create a note file in the mirror directory. The file carries no id yet;
the next sync adopts it and registers it with the note service.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		title := strings.Join(args, " ")
		app := openMirror()

		rel := format.Slug(title) + ".md"
		if app.Dir.Exists(rel) {
			fatal("Note file already exists", fmt.Errorf("%s", app.Dir.Abs(rel)))
		}

		lines := []string{"# " + title}
		if len(newLabels) > 0 {
			lines = append(lines, "labels: "+strings.Join(newLabels, ", "))
		}
		lines = append(lines, "")
		switch {
		case len(newItems) > 0:
			for _, item := range newItems {
				lines = append(lines, "[ ] "+item)
			}
		case newBody != "":
			lines = append(lines, newBody)
		}

		content := strings.Join(lines, "\n") + "\n"
		if err := app.Dir.WriteRaw(rel, []byte(content)); err != nil {
			fatal("Failed to write note file", err)
		}

		fmt.Println("Created", app.Dir.Abs(rel))
		fmt.Println("Run 'marl sync' to register it with the service.")
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringVar(&newBody, "body", "", "Note body text")
	newCmd.Flags().StringSliceVar(&newLabels, "label", nil, "Label to attach (repeatable)")
	newCmd.Flags().StringSliceVar(&newItems, "item", nil, "Check-list item; makes this a list note (repeatable)")
}
