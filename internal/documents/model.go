package documents

import "time"

// Scan verdicts. A document starts at unknown, moves through scanning,
// and lands on clean, infected, or failed.
const (
	ScanVerdictUnknown  = "unknown"
	ScanVerdictScanning = "scanning"
	ScanVerdictClean    = "clean"
	ScanVerdictInfected = "infected"
	ScanVerdictFailed   = "failed"
)

// Extraction statuses. Transitions are monotonic along
// not_requested -> pending -> processing -> {completed, failed,
// needs_review}; only an explicit re-processing request re-enters at
// pending.
const (
	ExtractionNotRequested = "not_requested"
	ExtractionPending      = "pending"
	ExtractionProcessing   = "processing"
	ExtractionCompleted    = "completed"
	ExtractionFailed       = "failed"
	ExtractionNeedsReview  = "needs_review"
)

// ExtractionTerminal reports whether status is a terminal extraction state.
func ExtractionTerminal(status string) bool {
	switch status {
	case ExtractionCompleted, ExtractionFailed, ExtractionNeedsReview:
		return true
	}
	return false
}

// ExtractedPayload is the versioned envelope for extraction-engine
// output. The schema version lets downstream readers survive engine
// output changes without silently corrupting.
type ExtractedPayload struct {
	SchemaVersion int               `json:"schemaVersion"`
	DocumentType  string            `json:"documentType"`
	Fields        map[string]string `json:"fields"`
	Raw           string            `json:"raw,omitempty"`
}

// PayloadSchemaVersion is the current ExtractedPayload schema version.
const PayloadSchemaVersion = 1

// Document represents one stored file version owned by an organization.
type Document struct {
	ID             string
	OrganizationID string
	ClientID       string
	UploadedBy     string

	FileName  string
	MimeType  string
	FileType  string
	SizeBytes int64
	// Checksum is set once at creation and never changes.
	Checksum string

	StorageKey   string
	ThumbnailKey string

	Category       string
	Subcategory    string
	Year           *int
	Quarter        *int
	Tags           []string
	Description    string
	IsConfidential bool

	ParentDocumentID string
	Version          int
	IsCurrentVersion bool

	Scanned     bool
	ScannedAt   *time.Time
	ScanVerdict string

	ExtractionStatus string
	Confidence       *float64
	ExtractedData    *ExtractedPayload
	ExtractedText    string
	NeedsReview      bool

	CreatedAt time.Time
	DeletedAt *time.Time
}

// LineageRoot returns the id anchoring the document's lineage.
func (d Document) LineageRoot() string {
	if d.ParentDocumentID != "" {
		return d.ParentDocumentID
	}
	return d.ID
}

// Classification is the classifier's best-effort guess from a file name.
type Classification struct {
	Category    string
	Subcategory string
	Year        *int
}

// SearchQuery captures the filter, sort, and page parameters of a search.
type SearchQuery struct {
	OrganizationID string
	ClientID       string

	Category         string
	Subcategory      string
	Year             *int
	Quarter          *int
	Tags             []string
	Text             string
	FileType         string
	Confidential     *bool
	ExtractionStatus string
	NeedsReview      *bool
	CreatedFrom      *time.Time
	CreatedTo        *time.Time

	SortBy   string
	SortDesc bool
	Offset   int
	Limit    int
}

// Sort keys accepted by SearchQuery.SortBy.
const (
	SortByCreatedAt  = "created_at"
	SortByFileName   = "file_name"
	SortBySizeBytes  = "size_bytes"
	SortByConfidence = "confidence"
)

// SearchResult is one page of matching documents.
type SearchResult struct {
	Documents []Document
	Total     int
	HasMore   bool
}

// MetadataUpdate carries the caller-editable fields; nil pointers leave
// the stored value untouched.
type MetadataUpdate struct {
	Category       *string
	Subcategory    *string
	Year           *int
	Quarter        *int
	Tags           *[]string
	Description    *string
	IsConfidential *bool
}
