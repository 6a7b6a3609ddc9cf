package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bher20/gmeter/internal/auth"
	"github.com/bher20/gmeter/internal/config"
	"github.com/bher20/gmeter/internal/storage"
	"github.com/spf13/cobra"
)

func withAuth(cmd *cobra.Command, fn func(svc *auth.Service) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st, err := storage.Open(cmd.Context(), cfg.StorageConfig())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.Close()
	svc, err := auth.NewService(cmd.Context(), st)
	if err != nil {
		return err
	}
	return fn(svc)
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}

	var name, role, expires string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a token; the secret is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !auth.ValidRole(role) {
				return fmt.Errorf("%w: %q (admin, operator or viewer)", auth.ErrUnknownRole, role)
			}
			exp, err := auth.ParseExpiration(expires, time.Now().UTC())
			if err != nil {
				return err
			}
			return withAuth(cmd, func(svc *auth.Service) error {
				t, raw, err := svc.CreateToken(cmd.Context(), name, role, exp)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "id:    %s\nrole:  %s\ntoken: %s\n", t.ID, t.Role, raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "token name")
	create.Flags().StringVar(&role, "role", auth.RoleViewer, "admin, operator or viewer")
	create.Flags().StringVar(&expires, "expires", "never", "never, 30d, 2w, 24h, a Go duration or mm/dd/yyyy")
	create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd, func(svc *auth.Service) error {
				tokens, err := svc.ListTokens(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tROLE\tCREATED\tEXPIRES\tLAST USED")
				for _, t := range tokens {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						t.ID, t.Name, t.Role, t.CreatedAt.Format(time.RFC3339), fmtTime(t.ExpiresAt), fmtTime(t.LastUsedAt))
				}
				return tw.Flush()
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd, func(svc *auth.Service) error {
				return svc.RevokeToken(cmd.Context(), args[0])
			})
		},
	}

	cmd.AddCommand(create, list, revoke)
	return cmd
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
