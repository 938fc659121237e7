package security

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
)

// Validation patterns
var (
	// User ids are opaque but bounded: chat ids, emails, slugs.
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9@._:+-]{1,128}$`)

	// Google spreadsheet ids are URL-safe base64-ish strings.
	sheetIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

	// A1 notation with an optional sheet name, e.g. Journal!A1 or 'My Trades'!A1:H.
	rangePattern = regexp.MustCompile(`^(?:'[^']{1,100}'!|[A-Za-z0-9_ ]{1,100}!)?[A-Z]{1,3}[0-9]*(?::[A-Z]{1,3}[0-9]*)?$`)

	// Job ids are <user>-<timestamp>.
	jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9@._:+-]{1,160}$`)
)

// MaxContentLength bounds free-form submission text.
const MaxContentLength = 8000

// ValidateUserID validates a user identifier.
func ValidateUserID(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperrors.NewValidationError("user_id", userID, "user id cannot be empty")
	}
	if !userIDPattern.MatchString(userID) {
		return apperrors.NewValidationError("user_id", MaskSensitive(userID), "invalid user id format")
	}
	return nil
}

// ValidateSheetID validates a spreadsheet id. Empty is allowed and means the
// configured default.
func ValidateSheetID(sheetID string) error {
	if sheetID == "" {
		return nil
	}
	if !sheetIDPattern.MatchString(sheetID) {
		return apperrors.NewValidationError("sheet_id", sheetID, "invalid sheet id format")
	}
	return nil
}

// ValidateRange validates an A1 range. Empty is allowed.
func ValidateRange(rng string) error {
	if rng == "" {
		return nil
	}
	if !rangePattern.MatchString(rng) {
		return apperrors.NewValidationError("sheet_range", rng, "invalid A1 range")
	}
	return nil
}

// ValidateJobID validates an analysis job id.
func ValidateJobID(jobID string) error {
	if !jobIDPattern.MatchString(jobID) {
		return apperrors.NewValidationError("job_id", jobID, "invalid job id format")
	}
	return nil
}

// ValidateText validates free-form text input.
func ValidateText(field, text string, maxLen int) error {
	if len(text) > maxLen {
		return apperrors.NewValidationError(field, truncate(text, 50), fmt.Sprintf("text too long (max %d characters)", maxLen))
	}
	return nil
}

// SanitizeText removes control characters other than newlines and tabs.
func SanitizeText(text string) string {
	var result strings.Builder
	result.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' || (r >= 32 && r != 127) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
