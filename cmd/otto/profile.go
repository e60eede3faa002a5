package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/playbymail/ottoclient/pkg/api"
)

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update your profile",
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

			profile, err := a.client.Profile(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("username: %s\n", profile.Username)
			if profile.Email != "" {
				fmt.Printf("email:    %s\n", profile.Email)
			}
			if profile.Timezone != "" {
				fmt.Printf("timezone: %s\n", profile.Timezone)
			}
			return nil
		},
	}

	cmd.AddCommand(profileSetCmd(), timezonesCmd())
	return cmd
}

func profileSetCmd() *cobra.Command {
	var (
		email    string
		timezone string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update profile fields",
		Long: `Update profile fields. Only the flags you pass are changed.

Examples:
  otto profile set --timezone Europe/London
  otto profile set --email alice@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" && timezone == "" {
				return fmt.Errorf("nothing to update; pass --email or --timezone")
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}

			updated, err := a.client.UpdateProfile(ctx, api.Profile{
				Email:    email,
				Timezone: timezone,
			})
			if err != nil {
				return err
			}
			success("profile updated")
			if updated.Timezone != "" {
				info("timezone: %s", updated.Timezone)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "New email address")
	cmd.Flags().StringVar(&timezone, "timezone", "", "New timezone (see \"otto profile timezones\")")

	return cmd
}

func timezonesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timezones",
		Short: "List the timezones the backend offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			zones, err := a.client.Timezones(cmd.Context())
			if err != nil {
				return err
			}
			for _, zone := range zones {
				fmt.Println(zone)
			}
			return nil
		},
	}
}
