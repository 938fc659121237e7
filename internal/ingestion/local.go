package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// LocalUploader writes attachments under a directory, one folder per user.
// It backs the local journal when Google Drive is not connected.
type LocalUploader struct {
	dir string
}

// NewLocalUploader creates an uploader rooted at dir.
func NewLocalUploader(dir string) *LocalUploader {
	return &LocalUploader{dir: dir}
}

// Upload writes the file and returns a file:// link to it.
func (u *LocalUploader) Upload(ctx context.Context, userID string, file File) (*models.UploadedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	userDir := filepath.Join(u.dir, sanitizeName(userID))
	if err := os.MkdirAll(userDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	id := uuid.New().String()
	path := filepath.Join(userDir, id+"-"+sanitizeName(file.Name))
	if err := os.WriteFile(path, file.Data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write attachment: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &models.UploadedFile{
		ID:       id,
		Link:     "file://" + filepath.ToSlash(abs),
		MimeType: file.MimeType,
	}, nil
}

func sanitizeName(name string) string {
	name = unsafeName.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	return name
}
