package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func passwdCmd() *cobra.Command {
	var (
		current string
		next    string
	)

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change your password",
		Long: `Change the logged-in user's password. The current password must be
provided; the server rejects the change without it.`,
		Args: cobra.NoArgs,
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
			if current == "" {
				current, err = promptPassword(user.Handle)
				if err != nil {
					return err
				}
			}
			if next == "" {
				return fmt.Errorf("pass the new password with --new")
			}

			if err := a.client.UpdatePassword(ctx, user.ID, current, next); err != nil {
				return err
			}
			success("password changed")
			return nil
		},
	}

	cmd.Flags().StringVar(&current, "current", "", "Current password (prompted for when omitted)")
	cmd.Flags().StringVar(&next, "new", "", "New password")

	return cmd
}
