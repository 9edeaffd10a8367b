package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/marl"
)

var (
	verbose     bool
	mirrorDir   string
	frontMatter bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "marl",
	Short: "Mirror a note service into a directory of plain text files",
	Long: `Marl keeps a directory of note files and a remote note service convergent.
Remote changes are written into the directory, file edits are pushed back up,
and divergent edits are parked next to the live file instead of being lost.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&mirrorDir, "dir", "", "Mirror directory (default: nearest .marl root, else CWD)")
	rootCmd.PersistentFlags().BoolVar(&frontMatter, "front-matter", false, "Read and write notes with a YAML front matter block")
}

// openMirror wires an App for the selected mirror directory.
func openMirror(extra ...marl.Option) *marl.App {
	dir := mirrorDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			fatal("Failed to get CWD", err)
		}
		if root, err := marl.FindRoot(cwd); err == nil {
			dir = root
		} else {
			dir = cwd
		}
	}

	opts := []marl.Option{
		marl.WithLogger(slog.Default()),
		marl.WithFrontMatter(frontMatter),
	}
	opts = append(opts, extra...)

	app, err := marl.Open(dir, opts...)
	if err != nil {
		fatal("Failed to open mirror", err)
	}
	return app
}
