package main

import "os"

func main() {
	// Cobra prints its own parse errors; command bodies exit via fatal.
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
