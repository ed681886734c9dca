package documents

import (
	"context"
	"fmt"

	"clientdocs-backend/internal/authz"
	"clientdocs-backend/internal/shared/telemetry"
)

// GetDownloadURL issues a short-lived URL for the document blob after
// running the access checks: tenant scope, quarantine, confidentiality.
func (s *Service) GetDownloadURL(ctx context.Context, documentID string, requester authz.Requester) (string, error) {
	if documentID == "" || requester.OrganizationID == "" {
		return "", fmt.Errorf("%w: document id and organization are required", ErrInvalidInput)
	}

	doc, err := s.Repo.GetByID(ctx, requester.OrganizationID, documentID)
	if err != nil {
		return "", err
	}

	if s.QuarantineInfected && doc.ScanVerdict == ScanVerdictInfected {
		telemetry.Warn("access.quarantined", map[string]any{
			"document_id":     doc.ID,
			"organization_id": requester.OrganizationID,
			"user_id":         requester.UserID,
		})
		return "", ErrQuarantined
	}

	if doc.IsConfidential {
		if s.Authz == nil {
			return "", ErrAccessDenied
		}
		allowed, err := s.Authz.CanAccess(ctx, doc.OrganizationID, requester)
		if err != nil {
			return "", fmt.Errorf("authorize access: %w", err)
		}
		if !allowed {
			telemetry.Warn("access.denied", map[string]any{
				"document_id":     doc.ID,
				"organization_id": requester.OrganizationID,
				"user_id":         requester.UserID,
			})
			return "", ErrAccessDenied
		}
	}

	url, err := s.Store.GetURL(ctx, doc.StorageKey, s.linkTTL())
	if err != nil {
		return "", fmt.Errorf("issue download url: %w", err)
	}
	return url, nil
}
