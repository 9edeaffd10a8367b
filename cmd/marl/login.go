package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Store the note service credential",
	Long: `Store the service credential in the mirror's vault. The token can be
passed as an argument or piped on stdin.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := openMirror()

		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			fmt.Fprint(os.Stderr, "Token: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				fatal("Failed to read token", err)
			}
			token = strings.TrimSpace(line)
		}
		if token == "" {
			fatal("No token given", fmt.Errorf("empty input"))
		}

		if err := app.Vault.StoreToken(token); err != nil {
			fatal("Failed to store token", err)
		}
		fmt.Println("Credential stored.")
	},
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored service credential",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openMirror()

		if err := app.Vault.ClearToken(); err != nil {
			fatal("Failed to clear token", err)
		}
		fmt.Println("Credential removed.")
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
