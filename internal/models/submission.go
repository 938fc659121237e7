package models

// Attachment is a file supplied alongside a submission. Content is base64.
type Attachment struct {
	Filename string   `json:"filename"`
	MimeType string   `json:"mime_type"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags,omitempty"`
}

// Meta returns the lightweight descriptor handed to the model.
func (a Attachment) Meta() AttachmentMeta {
	return AttachmentMeta{Filename: a.Filename, MimeType: a.MimeType}
}

// AttachmentMeta names an attachment without its bytes.
type AttachmentMeta struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

// AttachmentMetas collects descriptors for a list of attachments.
func AttachmentMetas(attachments []Attachment) []AttachmentMeta {
	metas := make([]AttachmentMeta, 0, len(attachments))
	for _, a := range attachments {
		metas = append(metas, a.Meta())
	}
	return metas
}

// Submission is one inbound user turn.
type Submission struct {
	UserID      string       `json:"user_id"`
	Content     string       `json:"content"`
	SessionID   string       `json:"session_id,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Overrides   Fields       `json:"overrides"`
}

// Destination identifies where a committed trade is journaled.
type Destination struct {
	SheetID string `json:"sheet_id"`
	Range   string `json:"sheet_range,omitempty"`
}

// DefaultSheetRange is used when a destination leaves Range empty.
const DefaultSheetRange = "Journal!A1"

// RangeOrDefault returns the destination range or the default.
func (d Destination) RangeOrDefault() string {
	if d.Range == "" {
		return DefaultSheetRange
	}
	return d.Range
}

// UploadedFile describes a persisted attachment.
type UploadedFile struct {
	ID       string `json:"id"`
	Link     string `json:"link"`
	MimeType string `json:"mime_type"`
}

// IngestionResult is the outcome of journaling a trade.
type IngestionResult struct {
	RowID         string         `json:"row_id"`
	UploadedFiles []UploadedFile `json:"uploaded_files"`
}

// Links returns the links of the uploaded files.
func (r *IngestionResult) Links() []string {
	if r == nil {
		return nil
	}
	links := make([]string, 0, len(r.UploadedFiles))
	for _, f := range r.UploadedFiles {
		links = append(links, f.Link)
	}
	return links
}

// SubmissionResult is the discriminated outcome of a capture turn.
type SubmissionResult struct {
	Status          CaptureStatus    `json:"status"`
	SessionID       string           `json:"session_id,omitempty"`
	MissingFields   []string         `json:"missing_fields,omitempty"`
	Prompt          string           `json:"prompt,omitempty"`
	PartialTrade    *TradeDraft      `json:"partial_trade,omitempty"`
	Structured      Fields           `json:"structured"`
	Trade           *TradeDraft      `json:"trade,omitempty"`
	Ingestion       *IngestionResult `json:"ingestion_result,omitempty"`
	Summary         string           `json:"summary,omitempty"`
	Acknowledgement string           `json:"acknowledgement,omitempty"`
	Inferred        Fields           `json:"inferred_updates"`
}

// Completed reports whether the turn committed a trade.
func (r *SubmissionResult) Completed() bool {
	return r.Status == StatusCompleted
}
