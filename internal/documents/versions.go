package documents

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clientdocs-backend/internal/shared/metrics"
	"clientdocs-backend/internal/shared/telemetry"
	"clientdocs-backend/internal/shared/util"
)

// VersionRequest carries a replacement file for an existing document.
// Metadata is inherited from the parent unless overridden here.
type VersionRequest struct {
	OrganizationID string
	UploadedBy     string

	FileName string
	MimeType string
	Data     []byte

	Description             string
	ConfidentialityOverride *bool
}

// CreateVersion ingests a replacement file into an existing lineage.
// The new record becomes the single current version; the repository
// flips the previous current off in the same transaction.
func (s *Service) CreateVersion(ctx context.Context, parentID string, req VersionRequest) (Document, string, error) {
	if parentID == "" {
		return Document{}, "", fmt.Errorf("%w: parent document id is required", ErrInvalidInput)
	}
	parent, err := s.Repo.GetByID(ctx, req.OrganizationID, parentID)
	if err != nil {
		return Document{}, "", err
	}
	if err := Validate(req.FileName, int64(len(req.Data)), req.MimeType); err != nil {
		return Document{}, "", err
	}

	put, err := s.Store.Put(ctx, req.OrganizationID, req.FileName, bytes.NewReader(req.Data))
	if err != nil {
		return Document{}, "", fmt.Errorf("store blob: %w", err)
	}

	thumbnailKey := ""
	if IsImageMime(req.MimeType) {
		thumbnailer := &Thumbnailer{Store: s.Store}
		key, thumbErr := thumbnailer.Generate(ctx, req.Data, req.MimeType, put.Key)
		if thumbErr != nil {
			telemetry.Warn("version.thumbnail_failed", map[string]any{
				"file_name": req.FileName,
				"err":       thumbErr.Error(),
			})
		} else {
			thumbnailKey = key
		}
	}

	confidential := parent.IsConfidential
	if req.ConfidentialityOverride != nil {
		confidential = *req.ConfidentialityOverride
	}
	description := parent.Description
	if req.Description != "" {
		description = req.Description
	}
	extractionStatus := ExtractionNotRequested
	if s.ExtractionEnabled {
		extractionStatus = ExtractionPending
	}

	doc := Document{
		ID:               uuid.NewString(),
		OrganizationID:   parent.OrganizationID,
		ClientID:         parent.ClientID,
		UploadedBy:       req.UploadedBy,
		FileName:         req.FileName,
		MimeType:         req.MimeType,
		FileType:         util.FileExtension(req.FileName),
		SizeBytes:        put.SizeBytes,
		Checksum:         put.Checksum,
		StorageKey:       put.Key,
		ThumbnailKey:     thumbnailKey,
		Category:         parent.Category,
		Subcategory:      parent.Subcategory,
		Year:             parent.Year,
		Quarter:          parent.Quarter,
		Tags:             dedupeTags(parent.Tags),
		Description:      description,
		IsConfidential:   confidential,
		ParentDocumentID: parent.LineageRoot(),
		IsCurrentVersion: true,
		ScanVerdict:      ScanVerdictUnknown,
		ExtractionStatus: extractionStatus,
		CreatedAt:        time.Now().UTC(),
	}

	created, err := s.Repo.CreateVersion(ctx, doc)
	if err != nil {
		return Document{}, "", fmt.Errorf("create version record: %w", err)
	}
	metrics.IncVersionCreated()

	telemetry.Info("version.created", map[string]any{
		"document_id": created.ID,
		"lineage":     created.ParentDocumentID,
		"version":     created.Version,
	})

	s.dispatchStages(ctx, created)
	url := s.downloadURL(ctx, created)
	return created, url, nil
}
