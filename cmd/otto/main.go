// Command otto is a terminal client for the otto backend: login and
// logout, session inspection, profile and user management, plus a
// local stub server for demos and development.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "otto",
		Short: "Client for the otto backend",
		Long: `otto talks to an otto backend the way the web client does:
cookie sessions, CSRF-protected mutations, and role-gated admin
operations.

The session survives between invocations; log in once, then use the
other commands until you log out.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config.toml (default ~/.otto/config.toml)")
	rootCmd.PersistentFlags().String("server", "", "Backend base URL (overrides config)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		loginCmd(),
		logoutCmd(),
		statusCmd(),
		whoamiCmd(),
		profileCmd(),
		passwdCmd(),
		usersCmd(),
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
