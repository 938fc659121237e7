package ingestion

import (
	"encoding/base64"
	"fmt"
	"strings"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

// DefaultMaxBytes caps a decoded attachment when no limit is configured.
const DefaultMaxBytes int64 = 10 * 1024 * 1024

// Validator checks attachments before anything is uploaded.
type Validator struct {
	maxBytes int64
	allowed  map[string]struct{}
}

// NewValidator creates a validator. An empty allow-list accepts any MIME type.
func NewValidator(maxBytes int64, allowedMimeTypes []string) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	allowed := make(map[string]struct{}, len(allowedMimeTypes))
	for _, mt := range allowedMimeTypes {
		mt = normalizeMime(mt)
		if mt != "" {
			allowed[mt] = struct{}{}
		}
	}
	return &Validator{maxBytes: maxBytes, allowed: allowed}
}

// ValidateAttachments rejects the whole batch on the first bad attachment.
func (v *Validator) ValidateAttachments(attachments []models.Attachment) error {
	for _, a := range attachments {
		if _, err := v.Decode(a); err != nil {
			return err
		}
	}
	return nil
}

// Decode validates one attachment and returns its bytes.
func (v *Validator) Decode(a models.Attachment) ([]byte, error) {
	name := strings.TrimSpace(a.Filename)
	if name == "" {
		return nil, apperrors.NewAttachmentError(a.Filename, "filename is required", nil)
	}

	mime := normalizeMime(a.MimeType)
	if mime == "" {
		return nil, apperrors.NewAttachmentError(name, "mime type is required", nil)
	}
	if len(v.allowed) > 0 {
		if _, ok := v.allowed[mime]; !ok {
			return nil, apperrors.NewAttachmentError(name, fmt.Sprintf("mime type %q is not allowed", mime), nil)
		}
	}

	content := strings.TrimSpace(a.Content)
	if content == "" {
		return nil, apperrors.NewAttachmentError(name, "content is empty", nil)
	}
	// Reject early on the encoded length before allocating.
	if int64(base64.StdEncoding.DecodedLen(len(content))) > v.maxBytes+2 {
		return nil, apperrors.NewAttachmentError(name, fmt.Sprintf("exceeds %d bytes", v.maxBytes), nil)
	}

	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, apperrors.NewAttachmentError(name, "content is not valid base64", err)
	}
	if int64(len(data)) > v.maxBytes {
		return nil, apperrors.NewAttachmentError(name, fmt.Sprintf("exceeds %d bytes", v.maxBytes), nil)
	}
	return data, nil
}

func normalizeMime(mt string) string {
	mt = strings.ToLower(strings.TrimSpace(mt))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
