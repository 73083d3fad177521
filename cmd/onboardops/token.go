package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/OnboardOps/internal/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Work with fill service bearer tokens",
	}
	cmd.AddCommand(newTokenMintCmd(a))
	return cmd
}

func newTokenMintCmd(a *app) *cobra.Command {
	var email, role, userID string
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a bearer token for the fill service",
		Long: `Mint a JWT signed with ONBOARD_JWT_SECRET. Without ONBOARD_JWT_SECRET the
secret is random per process and the token is useless to a running server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				userID = uuid.NewString()
			}
			raw, claims, err := auth.NewIssuer(a.cfg.JWTSecret, a.cfg.JWTTTL).Mint(userID, email, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "ops@example.com", "Email claim")
	cmd.Flags().StringVar(&role, "role", "hr", "Role claim")
	cmd.Flags().StringVar(&userID, "user-id", "", "Subject (default: random UUID)")
	return cmd
}
