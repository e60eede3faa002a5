package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/playbymail/ottoclient/pkg/routes"
)

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}

			user := a.manager.CurrentUser()
			landing, _ := routes.Lookup(routes.LandingFor(user.Roles))

			fmt.Printf("username: %s\n", user.Handle)
			fmt.Printf("user id:  %s\n", user.ID)
			fmt.Printf("roles:    %s\n", strings.Join(user.Roles.Names(), ", "))
			fmt.Printf("landing:  %s\n", landing.Path)
			return nil
		},
	}
}
