package cli

import (
	"github.com/spf13/cobra"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/config"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/security"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := redacted(app.Config)
			if output.IsJSON() {
				return output.JSON(cfg)
			}
			showConfig(output, cfg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.ConfigFile(app.ConfigDir)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			if !app.Config.GoogleEnabled() {
				output.Warning("Google is not configured; trades are journaled to %s", app.Config.Capture.DBPath)
			}
			if app.Config.LLM.APIKey == "" {
				output.Warning("No model API key set; trade extraction will be unavailable")
			}
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of cfg with credentials masked.
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	out.LLM.APIKey = security.MaskCredential(cfg.LLM.APIKey)
	out.Google.ClientSecret = security.MaskCredential(cfg.Google.ClientSecret)
	out.OAuth.StateSecret = security.MaskCredential(cfg.OAuth.StateSecret)
	out.Security.TokenKey = security.MaskCredential(cfg.Security.TokenKey)
	out.Telegram.BotToken = security.MaskCredential(cfg.Telegram.BotToken)
	out.Telegram.WebhookSecret = security.MaskCredential(cfg.Telegram.WebhookSecret)
	out.Redis.Password = security.MaskCredential(cfg.Redis.Password)
	out.Analysis.SearchAPIKey = security.MaskCredential(cfg.Analysis.SearchAPIKey)
	return out
}

func showConfig(output *Output, cfg config.Config) {
	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Printf("  Public URL:      %s\n", cfg.Server.PublicURL)
	output.Println()

	output.Bold("Capture")
	output.Printf("  Backend:         %s\n", cfg.Capture.Backend)
	output.Printf("  Session TTL:     %s\n", FormatDuration(cfg.Capture.SessionTTL))
	output.Printf("  Database:        %s\n", cfg.Capture.DBPath)
	output.Printf("  Uploads:         %s\n", cfg.Capture.JournalDir)
	output.Println()

	output.Bold("Model")
	output.Printf("  Base URL:        %s\n", cfg.LLM.BaseURL)
	output.Printf("  Model:           %s\n", cfg.LLM.Model)
	output.Printf("  Reply Model:     %s\n", cfg.LLM.ReplyModel)
	output.Printf("  API Key:         %s\n", cfg.LLM.APIKey)
	output.Println()

	output.Bold("Google")
	output.Printf("  Client ID:       %s\n", cfg.Google.ClientID)
	output.Printf("  Default Sheet:   %s\n", cfg.Google.DefaultSheetID)
	output.Printf("  Sheet Range:     %s\n", cfg.Google.SheetRange)
	output.Println()

	output.Bold("Telegram")
	output.Printf("  Bot Token:       %s\n", cfg.Telegram.BotToken)
	output.Println()

	output.Bold("Analysis")
	output.Printf("  Topic:           %s\n", cfg.Analysis.Topic)
	output.Printf("  Workers:         %d\n", cfg.Analysis.Workers)
}
