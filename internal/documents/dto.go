package documents

import (
	"strconv"
	"strings"
	"time"
)

// DocumentResponse is the wire shape of a document record.
type DocumentResponse struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	ClientID       string `json:"clientId,omitempty"`
	UploadedBy     string `json:"uploadedBy"`

	FileName  string `json:"fileName"`
	MimeType  string `json:"mimeType"`
	FileType  string `json:"fileType,omitempty"`
	SizeBytes int64  `json:"sizeBytes"`
	Checksum  string `json:"checksum"`

	Category       string   `json:"category"`
	Subcategory    string   `json:"subcategory,omitempty"`
	Year           *int     `json:"year,omitempty"`
	Quarter        *int     `json:"quarter,omitempty"`
	Tags           []string `json:"tags"`
	Description    string   `json:"description,omitempty"`
	IsConfidential bool     `json:"isConfidential"`
	HasThumbnail   bool     `json:"hasThumbnail"`

	ParentDocumentID string `json:"parentDocumentId,omitempty"`
	Version          int    `json:"version"`
	IsCurrentVersion bool   `json:"isCurrentVersion"`

	ScanVerdict string     `json:"scanVerdict"`
	ScannedAt   *time.Time `json:"scannedAt,omitempty"`

	ExtractionStatus string            `json:"extractionStatus"`
	Confidence       *float64          `json:"confidence,omitempty"`
	ExtractedData    *ExtractedPayload `json:"extractedData,omitempty"`
	NeedsReview      bool              `json:"needsReview"`

	CreatedAt time.Time `json:"createdAt"`
}

// UploadResponse pairs the created record with a short-lived URL.
type UploadResponse struct {
	Document    DocumentResponse `json:"document"`
	DownloadURL string           `json:"downloadUrl,omitempty"`
}

// BulkUploadResponse reports per-file outcomes of a bulk ingest.
type BulkUploadResponse struct {
	Attempted int                `json:"attempted"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []BulkFileResponse `json:"results"`
}

// BulkFileResponse is one file's outcome inside a bulk ingest.
type BulkFileResponse struct {
	FileName string            `json:"fileName"`
	Document *DocumentResponse `json:"document,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// SearchResponse is a page of matching documents.
type SearchResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Total     int                `json:"total"`
	HasMore   bool               `json:"hasMore"`
}

// DownloadResponse carries a presigned or local download URL.
type DownloadResponse struct {
	URL string `json:"url"`
}

// UpdateMetadataRequest is the PATCH body. Absent fields are untouched.
type UpdateMetadataRequest struct {
	Category       *string   `json:"category"`
	Subcategory    *string   `json:"subcategory"`
	Year           *int      `json:"year"`
	Quarter        *int      `json:"quarter"`
	Tags           *[]string `json:"tags"`
	Description    *string   `json:"description"`
	IsConfidential *bool     `json:"isConfidential"`
}

func toDocumentResponse(doc Document) DocumentResponse {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	return DocumentResponse{
		ID:               doc.ID,
		OrganizationID:   doc.OrganizationID,
		ClientID:         doc.ClientID,
		UploadedBy:       doc.UploadedBy,
		FileName:         doc.FileName,
		MimeType:         doc.MimeType,
		FileType:         doc.FileType,
		SizeBytes:        doc.SizeBytes,
		Checksum:         doc.Checksum,
		Category:         doc.Category,
		Subcategory:      doc.Subcategory,
		Year:             doc.Year,
		Quarter:          doc.Quarter,
		Tags:             tags,
		Description:      doc.Description,
		IsConfidential:   doc.IsConfidential,
		HasThumbnail:     doc.ThumbnailKey != "",
		ParentDocumentID: doc.ParentDocumentID,
		Version:          doc.Version,
		IsCurrentVersion: doc.IsCurrentVersion,
		ScanVerdict:      doc.ScanVerdict,
		ScannedAt:        doc.ScannedAt,
		ExtractionStatus: doc.ExtractionStatus,
		Confidence:       doc.Confidence,
		ExtractedData:    doc.ExtractedData,
		NeedsReview:      doc.NeedsReview,
		CreatedAt:        doc.CreatedAt,
	}
}

func toSearchResponse(result SearchResult) SearchResponse {
	docs := make([]DocumentResponse, 0, len(result.Documents))
	for _, doc := range result.Documents {
		docs = append(docs, toDocumentResponse(doc))
	}
	return SearchResponse{Documents: docs, Total: result.Total, HasMore: result.HasMore}
}

func parseIntParam(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

func parseBoolParam(raw string) *bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &b
}

func parseTimeParam(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}
