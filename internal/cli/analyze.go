package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

const pollInterval = 500 * time.Millisecond

func addAnalysisCommand(rootCmd *cobra.Command, app *App) {
	opts := &journalOptions{}
	var prompt string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Generate a coaching report from the journal",
		Long: `Queue an analysis job, run it in-process and print the report.

The report reviews performance, recurring behaviours and opportunities,
and ends with a short action plan.`,
		Example: `  journalbot analyze --user me
  journalbot analyze --user me --since 2026-09-01 --prompt "Am I cutting winners early?"`,
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
			if c.Tokens != nil {
				if err := c.Tokens.EnsureConnected(cmd.Context(), opts.userID); err != nil {
					return err
				}
			}

			req := models.AnalysisRequest{
				UserID:  opts.userID,
				SheetID: filter.SheetID,
				Range:   filter.Range,
				Prompt:  prompt,
			}
			if !filter.StartDate.IsZero() {
				req.StartDate = &filter.StartDate
			}
			if !filter.EndDate.IsZero() {
				req.EndDate = &filter.EndDate
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			workerDone := make(chan error, 1)
			go func() { workerDone <- c.Worker.Run(ctx) }()

			job, err := c.Queue.Enqueue(ctx, req)
			if err != nil {
				return err
			}
			if !output.IsJSON() {
				output.Dim("Queued job %s", job.JobID)
			}

			job, err = waitForJob(ctx, c.Queue, opts.userID, job.JobID)
			cancel()
			<-workerDone
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(job)
			}
			if job.Status == models.JobFailed {
				output.Error("Analysis failed: %s", job.Error)
				return fmt.Errorf("analysis job %s failed", job.JobID)
			}
			printReport(output, job.Report)
			return nil
		},
	}

	opts.bind(cmd)
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "question to focus the report on")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for the report")
	rootCmd.AddCommand(cmd)
}

type jobStatuser interface {
	Status(ctx context.Context, userID, jobID string) (*models.AnalysisJob, error)
}

// waitForJob polls until the job completes or fails.
func waitForJob(ctx context.Context, jobs jobStatuser, userID, jobID string) (*models.AnalysisJob, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		job, err := jobs.Status(ctx, userID, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status == models.JobCompleted || job.Status == models.JobFailed {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for analysis job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func printReport(output *Output, report *models.AnalysisReport) {
	if report == nil {
		output.Warning("The job finished without a report.")
		return
	}
	if report.Raw != "" {
		output.Println(report.Raw)
		return
	}

	output.Bold("Performance Overview")
	output.Printf("%s\n", report.PerformanceOverview.Summary)
	for _, m := range report.PerformanceOverview.KeyMetrics {
		output.Printf("  - %s\n", m)
	}
	output.Println()

	printList(output, "Behavioural Patterns", report.BehaviouralPatterns)
	printList(output, "Opportunities", report.Opportunities)

	output.Bold("Action Plan")
	for i, item := range report.ActionPlan {
		output.Printf("  %d. %s\n", i+1, item.Title)
		if item.Detail != "" {
			output.Dim("     %s", item.Detail)
		}
	}
}

func printList(output *Output, title string, items []string) {
	if len(items) == 0 {
		return
	}
	output.Bold(title)
	for _, item := range items {
		output.Printf("  - %s\n", item)
	}
	output.Println()
}
