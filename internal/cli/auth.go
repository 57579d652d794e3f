package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAuthCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage access tokens for template hosts",
	}
	cmd.AddCommand(newAuthLoginCmd(a))
	cmd.AddCommand(newAuthLogoutCmd(a))
	return cmd
}

func newAuthLoginCmd(a *app) *cobra.Command {
	var host, token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an access token in the system keyring",
		Long: `login stores a token used for HTTPS git and archive downloads from host.
Without --token the token is read from standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read token: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return errors.New("token must not be empty")
			}

			if err := a.credentials.StoreToken(host, token); err != nil {
				return err
			}
			fmt.Fprintln(a.out, renderSuccess("Stored token for %s", pathStyle.Render(host)))
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "host the token is for, such as github.com")
	cmd.Flags().StringVar(&token, "token", "", "access token")
	cmd.MarkFlagRequired("host")
	return cmd
}

func newAuthLogoutCmd(a *app) *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove a stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.credentials.DeleteToken(host); err != nil {
				return err
			}
			fmt.Fprintln(a.out, renderSuccess("Removed token for %s", pathStyle.Render(host)))
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "host the token was stored for")
	cmd.MarkFlagRequired("host")
	return cmd
}
