package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/marl"
)

// trashCmd represents the trash command
var trashCmd = &cobra.Command{
	Use:   "trash [id]",
	Short: "Move a note to the service trash",
	Long: `Move a note into the service's trash and remove its file from the
mirror. The service keeps trashed notes recoverable; unsynced edits in
the file are parked next to its old location instead of deleted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := openMirror(marl.WithMustExist(true))
		if err := app.Bootstrap(cmd.Context()); err != nil {
			fatal("Failed to bootstrap", err)
		}

		id := args[0]
		note, ok := app.Store.Get(id)
		if !ok {
			fatal("No such note", fmt.Errorf("%s (try 'marl list')", id))
		}

		if err := app.Engine.TrashNote(cmd.Context(), id); err != nil {
			fatal("Failed to trash note", err)
		}
		fmt.Printf("Trashed %q (%s)\n", note.Title, id)
	},
}

func init() {
	rootCmd.AddCommand(trashCmd)
}
