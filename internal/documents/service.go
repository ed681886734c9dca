package documents

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clientdocs-backend/internal/authz"
	"clientdocs-backend/internal/queue"
	"clientdocs-backend/internal/shared/metrics"
	"clientdocs-backend/internal/shared/storage/object"
	"clientdocs-backend/internal/shared/telemetry"
	"clientdocs-backend/internal/shared/util"
)

// Service orchestrates ingestion, versioning, querying, and retrieval.
type Service struct {
	Repo  Repo
	Store object.BlobStore
	Queue queue.Client
	Authz authz.Authorizer

	AutoClassify       bool
	ExtractionEnabled  bool
	DownloadTTL        time.Duration
	QuarantineInfected bool
}

// IngestRequest describes one file to ingest.
type IngestRequest struct {
	OrganizationID string
	ClientID       string
	UploadedBy     string

	FileName string
	MimeType string
	Data     []byte

	Category       string
	Subcategory    string
	Year           *int
	Quarter        *int
	Tags           []string
	Description    string
	IsConfidential bool
}

// Ingest validates, stores, classifies, and records one document, then
// schedules the enrichment stages. The returned URL is short-lived; a
// failure to issue it is logged and an empty URL returned, since the
// record itself is already durable.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (Document, string, error) {
	doc, err := s.prepare(ctx, req)
	if err != nil {
		return Document{}, "", err
	}

	if err := s.Repo.Create(ctx, doc); err != nil {
		metrics.IncIngest("failed")
		return Document{}, "", fmt.Errorf("create document record: %w", err)
	}
	metrics.IncIngest("succeeded")

	s.dispatchStages(ctx, doc)

	url := s.downloadURL(ctx, doc)
	return doc, url, nil
}

// prepare runs the synchronous ingestion steps up to, but not
// including, record creation: validate, classify, store, thumbnail.
func (s *Service) prepare(ctx context.Context, req IngestRequest) (Document, error) {
	if req.OrganizationID == "" || req.UploadedBy == "" {
		return Document{}, fmt.Errorf("%w: organization and uploader are required", ErrInvalidInput)
	}
	if err := Validate(req.FileName, int64(len(req.Data)), req.MimeType); err != nil {
		metrics.IncIngest("rejected")
		return Document{}, err
	}

	category := req.Category
	subcategory := req.Subcategory
	year := req.Year
	if category == "" && s.AutoClassify {
		guess := Classify(req.FileName)
		category = guess.Category
		if subcategory == "" {
			subcategory = guess.Subcategory
		}
		if year == nil {
			year = guess.Year
		}
	}
	if category == "" {
		category = CategoryOther
	}

	put, err := s.Store.Put(ctx, req.OrganizationID, req.FileName, bytes.NewReader(req.Data))
	if err != nil {
		metrics.IncIngest("failed")
		return Document{}, fmt.Errorf("store blob: %w", err)
	}

	thumbnailKey := ""
	if IsImageMime(req.MimeType) {
		thumbnailer := &Thumbnailer{Store: s.Store}
		key, thumbErr := thumbnailer.Generate(ctx, req.Data, req.MimeType, put.Key)
		if thumbErr != nil {
			// Thumbnails are a convenience artifact; never abort for one.
			telemetry.Warn("ingest.thumbnail_failed", map[string]any{
				"file_name": req.FileName,
				"err":       thumbErr.Error(),
			})
		} else {
			thumbnailKey = key
		}
	}

	extractionStatus := ExtractionNotRequested
	if s.ExtractionEnabled {
		extractionStatus = ExtractionPending
	}

	return Document{
		ID:               uuid.NewString(),
		OrganizationID:   req.OrganizationID,
		ClientID:         req.ClientID,
		UploadedBy:       req.UploadedBy,
		FileName:         req.FileName,
		MimeType:         req.MimeType,
		FileType:         util.FileExtension(req.FileName),
		SizeBytes:        put.SizeBytes,
		Checksum:         put.Checksum,
		StorageKey:       put.Key,
		ThumbnailKey:     thumbnailKey,
		Category:         category,
		Subcategory:      subcategory,
		Year:             year,
		Quarter:          req.Quarter,
		Tags:             dedupeTags(req.Tags),
		Description:      req.Description,
		IsConfidential:   req.IsConfidential,
		Version:          1,
		IsCurrentVersion: true,
		ScanVerdict:      ScanVerdictUnknown,
		ExtractionStatus: extractionStatus,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// dispatchStages fires the background units of work. The caller never
// waits on them; a dispatch failure is logged so an operator can redrive.
func (s *Service) dispatchStages(ctx context.Context, doc Document) {
	if s.Queue == nil {
		return
	}

	stages := []string{queue.StageScan}
	if doc.ExtractionStatus == ExtractionPending {
		stages = append(stages, queue.StageExtraction)
	}
	for _, stage := range stages {
		msg := queue.Message{
			DocumentID: doc.ID,
			Stage:      stage,
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
			Version:    1,
		}
		if err := s.Queue.Send(ctx, msg); err != nil {
			telemetry.Error("ingest.dispatch_failed", map[string]any{
				"document_id": doc.ID,
				"stage":       stage,
				"err":         err.Error(),
			})
		}
	}
}

// Download links are short-lived regardless of configuration.
const maxDownloadTTL = 30 * time.Minute

func (s *Service) linkTTL() time.Duration {
	ttl := s.DownloadTTL
	if ttl <= 0 || ttl > maxDownloadTTL {
		return maxDownloadTTL
	}
	return ttl
}

func (s *Service) downloadURL(ctx context.Context, doc Document) string {
	url, err := s.Store.GetURL(ctx, doc.StorageKey, s.linkTTL())
	if err != nil {
		telemetry.Warn("ingest.url_failed", map[string]any{
			"document_id": doc.ID,
			"err":         err.Error(),
		})
		return ""
	}
	return url
}

// BulkOutcome is the per-file result of a bulk ingestion.
type BulkOutcome struct {
	FileName string
	Document *Document
	Err      error
}

// BulkProgress is reported after every file in a bulk ingestion.
type BulkProgress struct {
	Attempted int
	Succeeded int
	Failed    int
	Current   string
}

// IngestBulk folds single-document ingestion over the request list. A
// failure in one file never aborts the rest.
func (s *Service) IngestBulk(ctx context.Context, reqs []IngestRequest, progress func(BulkProgress)) []BulkOutcome {
	outcomes := make([]BulkOutcome, 0, len(reqs))
	succeeded, failed := 0, 0

	for i, req := range reqs {
		doc, _, err := s.Ingest(ctx, req)
		outcome := BulkOutcome{FileName: req.FileName, Err: err}
		if err == nil {
			stored := doc
			outcome.Document = &stored
			succeeded++
		} else {
			failed++
			telemetry.Warn("ingest.bulk_file_failed", map[string]any{
				"file_name": req.FileName,
				"err":       err.Error(),
			})
		}
		outcomes = append(outcomes, outcome)

		if progress != nil {
			progress(BulkProgress{
				Attempted: i + 1,
				Succeeded: succeeded,
				Failed:    failed,
				Current:   req.FileName,
			})
		}
	}
	return outcomes
}

// Get returns a live document scoped to an organization.
func (s *Service) Get(ctx context.Context, orgID, documentID string) (Document, error) {
	if orgID == "" || documentID == "" {
		return Document{}, fmt.Errorf("%w: organization and document id are required", ErrInvalidInput)
	}
	return s.Repo.GetByID(ctx, orgID, documentID)
}

// Search runs the query service. The read path never mutates state.
func (s *Service) Search(ctx context.Context, q SearchQuery) (SearchResult, error) {
	if q.OrganizationID == "" {
		return SearchResult{}, fmt.Errorf("%w: organization scope is required", ErrInvalidInput)
	}
	switch q.SortBy {
	case "", SortByCreatedAt, SortByFileName, SortBySizeBytes, SortByConfidence:
	default:
		return SearchResult{}, fmt.Errorf("%w: unknown sort key %q", ErrInvalidInput, q.SortBy)
	}
	return s.Repo.Search(ctx, q)
}

// UpdateMetadata applies caller-editable metadata changes.
func (s *Service) UpdateMetadata(ctx context.Context, orgID, documentID string, update MetadataUpdate) (Document, error) {
	if orgID == "" || documentID == "" {
		return Document{}, fmt.Errorf("%w: organization and document id are required", ErrInvalidInput)
	}
	return s.Repo.UpdateMetadata(ctx, orgID, documentID, update)
}

// SoftDelete marks the document deleted. Blob removal is deferred to an
// external retention process and never happens here.
func (s *Service) SoftDelete(ctx context.Context, orgID, documentID string) error {
	if orgID == "" || documentID == "" {
		return fmt.Errorf("%w: organization and document id are required", ErrInvalidInput)
	}
	return s.Repo.SoftDelete(ctx, orgID, documentID, time.Now().UTC())
}

// RequestReprocess re-enters the extraction state machine at pending.
// Only terminal states may re-enter; anything else is refused.
func (s *Service) RequestReprocess(ctx context.Context, orgID, documentID string) error {
	doc, err := s.Repo.GetByID(ctx, orgID, documentID)
	if err != nil {
		return err
	}
	if !ExtractionTerminal(doc.ExtractionStatus) {
		return ErrNotReprocessable
	}

	ok, err := s.Repo.TransitionExtraction(ctx, documentID,
		[]string{ExtractionCompleted, ExtractionFailed, ExtractionNeedsReview}, ExtractionPending)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotReprocessable
	}

	telemetry.Info("extraction.reprocess_requested", map[string]any{
		"document_id": documentID,
		"from":        doc.ExtractionStatus,
	})

	if s.Queue != nil {
		msg := queue.Message{
			DocumentID: documentID,
			Stage:      queue.StageExtraction,
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
			Version:    1,
		}
		if err := s.Queue.Send(ctx, msg); err != nil {
			telemetry.Error("extraction.reprocess_dispatch_failed", map[string]any{
				"document_id": documentID,
				"err":         err.Error(),
			})
		}
	}
	return nil
}
