package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OnboardOps/internal/accounts"
	"github.com/dharsanguruparan/OnboardOps/internal/repository"
)

func newAccountsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Reset passwords and provision test accounts",
	}
	cmd.AddCommand(newResetPasswordCmd(a), newProvisionCmd(a))
	return cmd
}

func (a *app) accounts(cmd *cobra.Command) (*accounts.Service, error) {
	pool, err := a.db(cmd.Context())
	if err != nil {
		return nil, err
	}
	return accounts.NewService(repository.NewUserRepository(pool)), nil
}

func newResetPasswordCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "reset-password EMAIL...",
		Short: "Set a new password for one or more users",
		Long: `Set a new password for each EMAIL. Without --password a random one is
generated per user and printed. A failing email does not stop the batch.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.accounts(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			failed := 0
			for _, email := range args {
				pw := password
				if pw == "" {
					if pw, err = accounts.GeneratePassword(16); err != nil {
						return err
					}
				}
				if _, err := svc.ResetPassword(cmd.Context(), email, pw); err != nil {
					a.logger.Error("reset failed", zap.String("email", email), zap.Error(err))
					fmt.Fprintf(out, "✗ %s: %v\n", email, err)
					failed++
					continue
				}
				if password == "" {
					fmt.Fprintf(out, "✓ %s\t%s\n", email, pw)
				} else {
					fmt.Fprintf(out, "✓ %s\n", email)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d resets failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Password to set (default: random per user)")
	return cmd
}

func newProvisionCmd(a *app) *cobra.Command {
	var acct accounts.TestAccount
	cmd := &cobra.Command{
		Use:   "provision EMAIL",
		Short: "Create a test account or reset it if it exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.accounts(cmd)
			if err != nil {
				return err
			}
			acct.Email = args[0]
			res, err := svc.ProvisionTestAccount(cmd.Context(), acct)
			if err != nil {
				return err
			}
			verb := "reset"
			if res.Created {
				verb = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s %s (%s, id %s)\npassword: %s\n", verb, res.User.Email, res.User.Role, res.User.ID, res.Password)
			return nil
		},
	}
	cmd.Flags().StringVar(&acct.Role, "role", accounts.RoleEmployee, "Role: hr, manager or employee")
	cmd.Flags().StringVar(&acct.Password, "password", "", "Password (default: random)")
	cmd.Flags().StringVar(&acct.FirstName, "first", "Test", "First name")
	cmd.Flags().StringVar(&acct.LastName, "last", "User", "Last name")
	cmd.Flags().StringVar(&acct.PropertyID, "property", "", "Property the account belongs to")
	return cmd
}
