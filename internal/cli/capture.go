package cli

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/security"
)

// Capturer runs capture turns for the terminal.
type Capturer interface {
	Process(ctx context.Context, sub models.Submission, dest models.Destination) (*models.SubmissionResult, error)
	Cancel(ctx context.Context, userID string) (bool, error)
}

type captureOptions struct {
	userID      string
	sheetID     string
	sheetRange  string
	attachments []string
}

func addCaptureCommand(rootCmd *cobra.Command, app *App) {
	opts := &captureOptions{}

	cmd := &cobra.Command{
		Use:   "capture [message]",
		Short: "Journal a trade from the terminal",
		Long: `Journal a trade from the terminal.

With a message, runs a single capture turn. Without one, starts an
interactive session: describe the trade and answer follow-up questions.
Type /cancel to discard the trade in progress and /quit to leave.`,
		Example: `  journalbot capture --user me "Closed AAPL long +120 entered 9:30 out 10:15"
  journalbot capture --user me --attach chart.png "TSLA short, see chart"
  journalbot capture --user me`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := security.ValidateUserID(opts.userID); err != nil {
				return err
			}
			c, err := app.Services(cmd.Context())
			if err != nil {
				return err
			}
			if opts.sheetID == "" {
				opts.sheetID = app.Config.Google.DefaultSheetID
			}
			if opts.sheetRange == "" {
				opts.sheetRange = app.Config.Google.SheetRange
			}
			if c.Tokens != nil {
				if err := c.Tokens.EnsureConnected(cmd.Context(), opts.userID); err != nil {
					return fmt.Errorf("%w: run 'journalbot connect --user %s' first", err, opts.userID)
				}
			}

			output := NewOutput(cmd)
			if len(args) > 0 {
				return captureOnce(cmd.Context(), output, c.Capture, opts, strings.Join(args, " "))
			}
			return captureInteractive(cmd.Context(), cmd.InOrStdin(), output, c.Capture, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.userID, "user", "u", "", "user id to journal as")
	cmd.Flags().StringVar(&opts.sheetID, "sheet-id", "", "spreadsheet id (default: google.default_sheet_id)")
	cmd.Flags().StringVar(&opts.sheetRange, "sheet-range", "", "sheet range (default: google.sheet_range)")
	cmd.Flags().StringArrayVarP(&opts.attachments, "attach", "a", nil, "file to attach (repeatable)")
	_ = cmd.MarkFlagRequired("user")

	rootCmd.AddCommand(cmd)
}

func captureOnce(ctx context.Context, output *Output, capture Capturer, opts *captureOptions, message string) error {
	attachments, err := loadAttachments(opts.attachments)
	if err != nil {
		return err
	}
	result, err := capture.Process(ctx, submission(opts, message, attachments), destination(opts))
	if err != nil {
		return err
	}
	if output.IsJSON() {
		return output.JSON(result)
	}
	printResult(output, result)
	return nil
}

func captureInteractive(ctx context.Context, in io.Reader, output *Output, capture Capturer, opts *captureOptions) error {
	attachments, err := loadAttachments(opts.attachments)
	if err != nil {
		return err
	}

	output.Info("Describe your trade. /cancel discards it, /quit exits.")
	scanner := bufio.NewScanner(in)
	for {
		output.Printf("> ")
		if !scanner.Scan() {
			output.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/cancel":
			cleared, err := capture.Cancel(ctx, opts.userID)
			if err != nil {
				return err
			}
			if cleared {
				output.Warning("Discarded the trade in progress.")
			} else {
				output.Dim("There's no trade in progress.")
			}
			continue
		}

		result, err := capture.Process(ctx, submission(opts, line, attachments), destination(opts))
		if err != nil {
			if recoverable(err) {
				output.Error("%v", err)
				continue
			}
			return err
		}
		// Attachments ride along with the first turn only.
		attachments = nil

		if output.IsJSON() {
			if err := output.JSON(result); err != nil {
				return err
			}
			continue
		}
		printResult(output, result)
	}
}

// recoverable reports whether the user can keep typing after err.
func recoverable(err error) bool {
	return errors.Is(err, apperrors.ErrModelUnavailable) ||
		errors.Is(err, apperrors.ErrExtraction) ||
		errors.Is(err, apperrors.ErrInvalidAttachment) ||
		errors.Is(err, apperrors.ErrCommitFailed) ||
		errors.Is(err, apperrors.ErrInputValidation)
}

func submission(opts *captureOptions, message string, attachments []models.Attachment) models.Submission {
	return models.Submission{
		UserID:      opts.userID,
		Content:     message,
		Attachments: attachments,
	}
}

func destination(opts *captureOptions) models.Destination {
	return models.Destination{SheetID: opts.sheetID, Range: opts.sheetRange}
}

func printResult(output *Output, result *models.SubmissionResult) {
	if result.Acknowledgement != "" {
		output.Dim("%s", result.Acknowledgement)
	}
	if !result.Completed() {
		output.Printf("%s\n", result.Prompt)
		output.Dim("Known: %s", FormatFields(result.Structured))
		return
	}

	output.Success("Trade journaled")
	if result.Summary != "" {
		output.Printf("%s\n", result.Summary)
	}
	if trade := result.Trade; trade != nil {
		output.Printf("  %s %s  %s\n", trade.Ticker, trade.PositionType, output.PnL(trade.PnL))
	}
	if result.Ingestion != nil {
		output.Dim("Row: %s", result.Ingestion.RowID)
		for _, link := range result.Ingestion.Links() {
			output.Dim("Attachment: %s", link)
		}
	}
}

// loadAttachments reads files into base64 attachments tagged "cli".
func loadAttachments(paths []string) ([]models.Attachment, error) {
	attachments := make([]models.Attachment, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading attachment: %w", err)
		}
		attachments = append(attachments, models.Attachment{
			Filename: filepath.Base(path),
			MimeType: detectMimeType(path, data),
			Content:  base64.StdEncoding.EncodeToString(data),
			Tags:     []string{"cli"},
		})
	}
	return attachments, nil
}

func detectMimeType(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		if mediaType, _, err := mime.ParseMediaType(t); err == nil {
			return mediaType
		}
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}
