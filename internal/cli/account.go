package cli

import (
	"github.com/spf13/cobra"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/security"
)

var errGoogleDisabled = apperrors.Wrap(apperrors.ErrConfigInvalid, "google.client_id and google.client_secret are not set")

func addAccountCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newConnectCmd(app))
	rootCmd.AddCommand(newDisconnectCmd(app))
}

func newConnectCmd(app *App) *cobra.Command {
	var userID, redirectTo string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Print the Google consent link for a user",
		Long: `Print the Google consent link for a user.

Open the link in a browser and approve access. Google redirects to the
configured callback, which must reach a running 'journalbot serve'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := security.ValidateUserID(userID); err != nil {
				return err
			}
			c, err := app.Services(cmd.Context())
			if err != nil {
				return err
			}
			if c.Tokens == nil {
				return errGoogleDisabled
			}

			authURL, state, err := c.Tokens.AuthorizationURL(userID, redirectTo)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"authorization_url": authURL, "state": state})
			}
			output.Info("Open this link to connect Google for %s:", userID)
			output.Println(authURL)
			output.Dim("The link expires in %s.", FormatDuration(app.Config.OAuth.StateTTL))
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	cmd.Flags().StringVar(&redirectTo, "redirect-to", "", "where to send the browser after consent")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newDisconnectCmd(app *App) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Forget a user's stored Google tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := security.ValidateUserID(userID); err != nil {
				return err
			}
			c, err := app.Services(cmd.Context())
			if err != nil {
				return err
			}
			if c.Tokens == nil {
				return errGoogleDisabled
			}
			if err := c.Tokens.Disconnect(cmd.Context(), userID); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"status": "disconnected"})
			}
			output.Success("Disconnected Google for %s", userID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
