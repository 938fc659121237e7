package cli

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/server"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/store"
)

const shutdownTimeout = 15 * time.Second

func addServeCommand(rootCmd *cobra.Command, app *App) {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, Telegram webhook and analysis worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr != "" {
				app.Config.Server.Addr = addr
			}

			c, err := app.Services(ctx)
			if err != nil {
				return err
			}
			srv := server.New(app.Config, c.ServerDeps(), app.Logger)

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			errCh := make(chan error, 2)
			go func() {
				if err := c.Worker.Run(runCtx); err != nil {
					errCh <- err
				}
			}()
			go func() {
				errCh <- srv.Listen()
			}()
			go pruneSessions(runCtx, c.Sessions, app.Config.Capture.SessionTTL, app.Logger)

			if c.Telegram != nil {
				app.Logger.Info().Msg("Telegram webhook enabled at /api/integrations/telegram/webhook")
			}

			var runErr error
			select {
			case <-ctx.Done():
				app.Logger.Info().Msg("Shutting down")
			case runErr = <-errCh:
				app.Logger.Error().Err(runErr).Msg("Server stopped unexpectedly")
			}
			cancel()

			shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				runErr = errors.Join(runErr, err)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(cmd)
}

// pruneSessions deletes expired capture sessions every half TTL.
func pruneSessions(ctx context.Context, sessions store.SessionStore, ttl time.Duration, logger zerolog.Logger) {
	interval := ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.Prune(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("Session prune failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int("pruned", n).Msg("Expired capture sessions removed")
			}
		}
	}
}
