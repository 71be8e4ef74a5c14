package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/inaiurai/gateway/internal/auth"
	"github.com/inaiurai/gateway/internal/models"
	"github.com/inaiurai/gateway/internal/registry"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema and job queue migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureDB(cmd.Context()); err != nil {
				return err
			}
			if err := a.migrate(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage caller tokens",
	}
	cmd.AddCommand(newTokenIssueCmd(a))
	return cmd
}

func newTokenIssueCmd(a *app) *cobra.Command {
	var (
		user  string
		email string
		role  string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			if role != models.RoleUser && role != models.RoleAdmin {
				return fmt.Errorf("--role must be %q or %q", models.RoleUser, models.RoleAdmin)
			}
			tok, err := a.tokens.IssueToken(auth.Identity{UserID: id, Email: email, Role: role}, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (uuid)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", models.RoleUser, "role claim: user or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newCreditsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Manage credit balances",
	}
	cmd.AddCommand(newCreditsAdjustCmd(a))
	return cmd
}

func newCreditsAdjustCmd(a *app) *cobra.Command {
	var (
		user   string
		amount int
		mode   string
	)
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Set or add to a user's balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			if err := a.ensureDB(cmd.Context()); err != nil {
				return err
			}
			balance, err := a.ledger.Adjust(cmd.Context(), id, amount, mode, nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tcredits=%d\n", id, balance)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (uuid)")
	cmd.Flags().IntVar(&amount, "amount", 0, "amount to set or add (may be negative with add)")
	cmd.Flags().StringVar(&mode, "mode", models.AdjustAdd, "set or add")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newAccountsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect accounts",
	}
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureDB(cmd.Context()); err != nil {
				return err
			}
			accounts, err := a.accounts.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tEMAIL\tROLE\tCREDITS\tSTATUS")
			for _, acc := range accounts {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", acc.ID, acc.Email, acc.Role, acc.Credits, acc.Status)
			}
			return w.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	cmd.AddCommand(list)
	return cmd
}

func newProvidersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Manage provider configurations",
	}
	cmd.AddCommand(newProvidersListCmd(a), newProvidersActivateCmd(a))
	return cmd
}

func newProvidersListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List provider configurations (keys masked)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ensureDB(cmd.Context()); err != nil {
				return err
			}
			configs, err := a.providers.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tPROVIDER\tMODEL\tKEY\tACTIVE")
			for _, c := range configs {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", c.ID, c.Provider, c.ModelName, registry.MaskKey(c.APIKey), c.IsActive)
			}
			return w.Flush()
		},
	}
}

func newProvidersActivateCmd(a *app) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Make one configuration the only active one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configID, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("--id: %w", err)
			}
			if err := a.ensureDB(cmd.Context()); err != nil {
				return err
			}
			c, err := a.providers.Activate(cmd.Context(), configID)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "activated %s (%s %s)\n", c.ID, c.Provider, c.ModelName)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "configuration id (uuid)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
