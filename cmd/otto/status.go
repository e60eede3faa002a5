package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/playbymail/ottoclient/pkg/apierror"
	"github.com/playbymail/ottoclient/pkg/session"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session status",
		Long: `Check whether the saved session is still valid on the server. Exits
non-zero when the backend cannot be reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			fmt.Printf("server:  %s\n", a.cfg.Server)

			err = a.manager.Restore(cmd.Context())
			switch {
			case err == nil:
				user := a.manager.CurrentUser()
				fmt.Printf("session: %s\n", session.StatusAuthenticated)
				fmt.Printf("user:    %s\n", user.Handle)
			case apierror.IsSessionExpired(err) || apierror.IsAuthentication(err):
				fmt.Printf("session: %s\n", session.StatusAnonymous)
			default:
				return err
			}
			return nil
		},
	}
}
