package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/playbymail/ottoclient/pkg/api"
)

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts (admin)",
		Long: `List, inspect, and modify user accounts. Every subcommand requires
the admin role; the server rejects other callers.`,
	}

	cmd.AddCommand(
		usersListCmd(),
		usersShowCmd(),
		usersCreateCmd(),
		usersUpdateCmd(),
		usersResetCmd(),
		usersRolesCmd(),
	)
	return cmd
}

func usersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all accounts",
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

			users, err := a.client.Users(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tROLES\tTIMEZONE")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Username, strings.Join(u.Roles, ","), u.Timezone)
			}
			return w.Flush()
		},
	}
}

func usersShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}

			u, err := a.client.User(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("id:       %s\n", u.ID)
			fmt.Printf("username: %s\n", u.Username)
			fmt.Printf("roles:    %s\n", strings.Join(u.Roles, ", "))
			if u.Timezone != "" {
				fmt.Printf("timezone: %s\n", u.Timezone)
			}
			return nil
		},
	}
}

func usersCreateCmd() *cobra.Command {
	var (
		password string
		roles    []string
		timezone string
	)

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account",
		Long: `Create an account. Without --role the account gets the plain user
role.

Examples:
  otto users create bob --password secret
  otto users create carol --password secret --role gm`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("pass the initial password with --password")
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}

			created, err := a.client.CreateUser(ctx, api.NewUser{
				Username: args[0],
				Password: password,
				Roles:    roles,
				Timezone: timezone,
			})
			if err != nil {
				return err
			}
			success("created %s (id %s)", created.Username, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Initial password")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role grant (repeatable)")
	cmd.Flags().StringVar(&timezone, "timezone", "", "Account timezone")

	return cmd
}

func usersUpdateCmd() *cobra.Command {
	var (
		username string
		timezone string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" && timezone == "" {
				return fmt.Errorf("nothing to update; pass --username or --timezone")
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}

			updated, err := a.client.UpdateUser(ctx, args[0], api.UserUpdate{
				Username: username,
				Timezone: timezone,
			})
			if err != nil {
				return err
			}
			success("updated %s", updated.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "New username")
	cmd.Flags().StringVar(&timezone, "timezone", "", "New timezone")

	return cmd
}

func usersResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password <id>",
		Short: "Reset an account's password",
		Long: `Generate a new password for the account and print it. The password is
shown exactly once; hand it to the user out of band.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}

			fresh, err := a.client.ResetPassword(ctx, args[0])
			if err != nil {
				return err
			}
			success("password reset")
			info("new password: %s", fresh)
			return nil
		},
	}
}

func usersRolesCmd() *cobra.Command {
	var (
		add    []string
		remove []string
	)

	cmd := &cobra.Command{
		Use:   "roles <id>",
		Short: "Grant or revoke roles",
		Long: `Grant or revoke roles on an account.

Examples:
  otto users roles 7 --add gm
  otto users roles 7 --remove admin --add user`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(add) == 0 && len(remove) == 0 {
				return fmt.Errorf("nothing to change; pass --add or --remove")
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}

			updated, err := a.client.UpdateUserRoles(ctx, args[0], api.RoleChange{
				Add:    add,
				Remove: remove,
			})
			if err != nil {
				return err
			}
			success("roles for %s: %s", updated.Username, strings.Join(updated.Roles, ", "))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&add, "add", nil, "Role to grant (repeatable)")
	cmd.Flags().StringSliceVar(&remove, "remove", nil, "Role to revoke (repeatable)")

	return cmd
}
