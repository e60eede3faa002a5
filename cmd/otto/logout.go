package main

import (
	"github.com/spf13/cobra"
)

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the saved session",
		Long: `Invalidate the server session and remove the saved cookie. The local
session is forgotten even when the server cannot be reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := a.requireSession(ctx); err == nil {
				if err := a.manager.Invalidate(ctx); err != nil {
					return err
				}
			}
			if err := a.clearSavedSession(); err != nil {
				return err
			}
			success("logged out")
			return nil
		},
	}
}
