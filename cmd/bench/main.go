package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aretw0/marl"
	"github.com/aretw0/marl/pkg/adapters/memory"
	"github.com/aretw0/marl/pkg/core"
)

func main() {
	count := flag.Int("count", 1000, "Number of notes to seed on the service")
	keep := flag.Bool("keep", false, "Keep the benchmark mirror after running")
	flag.Parse()

	// 1. Setup Namespace
	benchDir, err := os.MkdirTemp("", "marl_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	fmt.Printf("Seeding %d notes on the in-memory service...\n", *count)
	remote := memory.NewRemote()
	for i := 0; i < *count; i++ {
		remote.Seed(core.Note{
			ID:    fmt.Sprintf("bench-%d", i),
			Title: fmt.Sprintf("Benchmark Note %d", i),
			Kind:  core.KindText,
			Body:  fmt.Sprintf("This is benchmark note %d.\nIt has a short body.", i),
		})
	}

	// Quiet logger: the run prints its own numbers
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := marl.Open(benchDir,
		marl.WithRemote(remote),
		marl.WithLogger(logger),
	)
	if err != nil {
		panic(err)
	}

	ctx := context.TODO()
	if err := app.Bootstrap(ctx); err != nil {
		panic(err)
	}

	// Run 1: Cold (downloads and writes every artifact)
	fmt.Println("Running Cycle (Run 1 - Cold)...")
	start := time.Now()
	if err := app.Engine.Cycle(ctx); err != nil {
		panic(err)
	}
	fmt.Printf("Run 1 Result: %v (Notes: %d)\n", time.Since(start), app.Store.Len())

	// Run 2: Warm (nothing changed, every note short-circuits)
	fmt.Println("Running Cycle (Run 2 - Warm)...")
	start = time.Now()
	if err := app.Engine.Cycle(ctx); err != nil {
		panic(err)
	}
	fmt.Printf("Run 2 Result: %v\n", time.Since(start))

	// Run 3: Push storm (every artifact edited locally)
	fmt.Println("Rewriting every artifact...")
	for _, m := range app.Store.Mappings() {
		n, ok := app.Store.Get(m.NoteID)
		if !ok {
			continue
		}
		content := fmt.Sprintf("# %s\nid: %s\n\nedited body\n", n.Title, n.ID)
		if err := app.Dir.WriteRaw(m.Path, []byte(content)); err != nil {
			panic(err)
		}
	}
	fmt.Println("Running Cycle (Run 3 - Push storm)...")
	start = time.Now()
	if err := app.Engine.Cycle(ctx); err != nil {
		panic(err)
	}
	fmt.Printf("Run 3 Result: %v\n", time.Since(start))

	if err := app.Close(); err != nil {
		panic(err)
	}
}
