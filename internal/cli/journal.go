package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/agents"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/store"
)

const dateLayout = "2006-01-02"

type journalOptions struct {
	userID  string
	sheetID string
	since   string
	until   string
	limit   int
}

// filter parses the date flags. until is inclusive of the whole day.
func (o *journalOptions) filter(app *App) (store.JournalFilter, error) {
	f := store.JournalFilter{
		UserID:  o.userID,
		SheetID: o.sheetID,
		Range:   app.Config.Google.SheetRange,
		Limit:   o.limit,
	}
	if f.SheetID == "" {
		f.SheetID = app.Config.Google.DefaultSheetID
	}
	if o.since != "" {
		t, err := time.Parse(dateLayout, o.since)
		if err != nil {
			return f, fmt.Errorf("invalid --since %q: use YYYY-MM-DD", o.since)
		}
		f.StartDate = t
	}
	if o.until != "" {
		t, err := time.Parse(dateLayout, o.until)
		if err != nil {
			return f, fmt.Errorf("invalid --until %q: use YYYY-MM-DD", o.until)
		}
		f.EndDate = t.Add(24*time.Hour - time.Nanosecond)
	}
	return f, nil
}

func (o *journalOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.userID, "user", "u", "", "user id")
	cmd.Flags().StringVar(&o.sheetID, "sheet-id", "", "spreadsheet id (default: google.default_sheet_id)")
	cmd.Flags().StringVar(&o.since, "since", "", "earliest entry date, YYYY-MM-DD")
	cmd.Flags().StringVar(&o.until, "until", "", "latest entry date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("user")
}

func addJournalCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Review journaled trades",
	}

	cmd.AddCommand(newJournalListCmd(app))
	cmd.AddCommand(newJournalStatsCmd(app))
	rootCmd.AddCommand(cmd)
}

func newJournalListCmd(app *App) *cobra.Command {
	opts := &journalOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			filter, err := opts.filter(app)
			if err != nil {
				return err
			}
			c, err := app.Services(cmd.Context())
			if err != nil {
				return err
			}

			entries, err := c.Journal.ListEntries(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(entries)
			}
			if len(entries) == 0 {
				output.Info("No trades journaled for %s.", opts.userID)
				return nil
			}

			table := NewTable(output, "Exit", "Ticker", "Position", "P&L", "Held", "Notes")
			for _, e := range entries {
				table.AddRow(
					FormatDateTime(e.ExitTimestamp),
					e.Ticker,
					e.PositionType,
					output.PnL(e.PnL),
					FormatDuration(e.ExitTimestamp.Sub(e.EntryTimestamp)),
					TruncateString(e.Notes, 40),
				)
			}
			table.Render()
			return nil
		},
	}

	opts.bind(cmd)
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 50, "maximum trades to list")
	return cmd
}

func newJournalStatsCmd(app *App) *cobra.Command {
	opts := &journalOptions{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise journaled trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			filter, err := opts.filter(app)
			if err != nil {
				return err
			}
			c, err := app.Services(cmd.Context())
			if err != nil {
				return err
			}

			entries, err := c.Journal.ListEntries(cmd.Context(), filter)
			if err != nil {
				return err
			}
			m := agents.ComputeMetrics(entries)
			if output.IsJSON() {
				return output.JSON(m)
			}
			if m.Trades == 0 {
				output.Info("No trades journaled for %s.", opts.userID)
				return nil
			}

			output.Bold("Summary")
			output.Printf("  Trades:       %d\n", m.Trades)
			output.Printf("  Wins/Losses:  %d/%d (%s win rate)\n", m.Wins, m.Losses, FormatPercent(m.WinRate))
			output.Printf("  Total P&L:    %s\n", output.PnL(m.TotalPnL))
			output.Printf("  Average P&L:  %s\n", output.PnL(m.AveragePnL))
			output.Printf("  Best/Worst:   %s / %s\n", output.PnL(m.BestTrade), output.PnL(m.WorstTrade))
			output.Printf("  Avg Hold:     %s\n", m.AvgHoldDuration)
			output.Println()

			output.Bold("By Ticker")
			table := NewTable(output, "Ticker", "P&L")
			for _, ticker := range m.TopTickers {
				table.AddRow(ticker, output.PnL(m.PnLByTicker[ticker]))
			}
			table.Render()
			return nil
		},
	}

	opts.bind(cmd)
	return cmd
}
