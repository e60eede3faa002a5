package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/playbymail/ottoclient/pkg/session"
)

func loginCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Log in and save the session",
		Long: `Authenticate against the backend and persist the session cookie so
later commands reuse it.

The username comes from the argument, the config file, or OTTO_USERNAME.
The password comes from --password, the OTTO_PASSWORD environment
variable, or an interactive prompt.

Examples:
  otto login alice
  OTTO_PASSWORD=... otto login alice`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			username := a.cfg.Username
			if len(args) == 1 {
				username = args[0]
			}
			if username == "" {
				return fmt.Errorf("no username; pass one or set it in the config")
			}

			if password == "" {
				password = os.Getenv("OTTO_PASSWORD")
			}
			if password == "" {
				password, err = promptPassword(username)
				if err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			if err := a.manager.Authenticate(ctx, session.Credentials{
				Username: username,
				Password: password,
			}); err != nil {
				return err
			}
			if err := a.saveSession(); err != nil {
				return err
			}

			user := a.manager.CurrentUser()
			success("logged in as %s", user.Handle)
			info("roles: %s", strings.Join(user.Roles.Names(), ", "))
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted for when omitted)")

	return cmd
}

func promptPassword(username string) (string, error) {
	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
