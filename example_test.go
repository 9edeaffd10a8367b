package marl_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aretw0/marl"
	"github.com/aretw0/marl/pkg/adapters/memory"
	"github.com/aretw0/marl/pkg/core"
)

// Example_basic demonstrates how to open a mirror, pull the service state
// down, and find a note with a query.
func Example_basic() {
	// Create a temporary directory for the example
	tmpDir, err := os.MkdirTemp("", "marl-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	// A private in-memory service stands in for the real one.
	remote := memory.NewRemote()
	remote.Seed(core.Note{ID: "n1", Title: "Groceries", Kind: core.KindText, Body: "milk, eggs"})

	app, err := marl.Open(tmpDir, marl.WithRemote(remote))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	// 1. Reconcile the mirror with the service
	if err := app.Bootstrap(ctx); err != nil {
		log.Fatal(err)
	}
	if err := app.Engine.Cycle(ctx); err != nil {
		log.Fatal(err)
	}

	// 2. Query it
	for _, hit := range app.Query.Search("groceries", false) {
		fmt.Printf("Found note: %s\n", hit.Title)
	}
	// Output:
	// Found note: Groceries
}

// Example_localDraft demonstrates that a file dropped into the mirror is
// adopted by the service on the next cycle.
func Example_localDraft() {
	tmpDir, err := os.MkdirTemp("", "marl-draft-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	remote := memory.NewRemote()
	app, err := marl.Open(tmpDir, marl.WithRemote(remote))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := app.Bootstrap(ctx); err != nil {
		log.Fatal(err)
	}

	// A new file with no id line yet
	draft := []byte("# Ideas\n\nwrite more examples\n")
	if err := os.WriteFile(filepath.Join(tmpDir, "Ideas.md"), draft, 0644); err != nil {
		log.Fatal(err)
	}

	if err := app.Engine.Cycle(ctx); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Notes on the service: %d\n", remote.Len())
	// Output:
	// Notes on the service: 1
}
