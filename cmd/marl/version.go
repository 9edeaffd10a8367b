package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/aretw0/marl"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the marl version",
	Run: func(cmd *cobra.Command, args []string) {
		v := marl.Version
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 8 {
					v += " (" + s.Value[:8] + ")"
					break
				}
			}
		}
		fmt.Printf("marl version %s\n", v)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
