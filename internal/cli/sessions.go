package cli

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/store"
)

// sessionLister is implemented by stores that can enumerate a user's sessions.
type sessionLister interface {
	ListSessions(ctx context.Context, userID string) ([]*models.CaptureSession, error)
}

func addSessionCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and maintain capture sessions",
	}

	cmd.AddCommand(newSessionsPruneCmd(app))
	cmd.AddCommand(newSessionsShowCmd(app))
	rootCmd.AddCommand(cmd)
}

func newSessionsPruneCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired capture sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			c, err := app.Services(cmd.Context())
			if err != nil {
				return err
			}
			n, err := c.Sessions.Prune(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int{"pruned": n})
			}
			output.Success("Pruned %d expired session(s)", n)
			return nil
		},
	}
}

func newSessionsShowCmd(app *App) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a user's live capture sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			c, err := app.Services(cmd.Context())
			if err != nil {
				return err
			}

			sessions, err := liveSessions(cmd.Context(), c.Sessions, userID)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				snapshots := make([]models.SessionSnapshot, 0, len(sessions))
				for _, s := range sessions {
					snapshots = append(snapshots, s.Snapshot())
				}
				return output.JSON(snapshots)
			}

			if len(sessions) == 0 {
				output.Info("No live sessions for %s.", userID)
				return nil
			}
			now := time.Now()
			table := NewTable(output, "Session", "Updated", "Missing", "Known")
			for _, s := range sessions {
				missing := strings.Join(s.MissingFields(), ",")
				if missing == "" {
					missing = "-"
				}
				table.AddRow(
					s.SessionID(),
					FormatDuration(now.Sub(s.UpdatedAt()))+" ago",
					missing,
					TruncateString(FormatFields(s.Structured()), 60),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// liveSessions lists every session when the store supports it and falls
// back to the active one.
func liveSessions(ctx context.Context, sessions store.SessionStore, userID string) ([]*models.CaptureSession, error) {
	if lister, ok := sessions.(sessionLister); ok {
		return lister.ListSessions(ctx, userID)
	}
	active, err := sessions.GetActiveForUser(ctx, userID)
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []*models.CaptureSession{active}, nil
}
