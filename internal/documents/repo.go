package documents

import (
	"context"
	"time"
)

// Repo defines persistence operations for documents.
//
// Org-scoped reads serve the HTTP surface; the unscoped Get serves
// background workers keyed only by document id. The conditional
// transition methods return false instead of an error when the guard
// refuses, so callers can treat a refused transition as an idempotent
// no-op.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, orgID, documentID string) (Document, error)
	Get(ctx context.Context, documentID string) (Document, error)

	UpdateMetadata(ctx context.Context, orgID, documentID string, update MetadataUpdate) (Document, error)

	// SoftDelete stamps the deletion time, clears the current-version
	// flag, and promotes the newest surviving prior version when the
	// deleted record was current.
	SoftDelete(ctx context.Context, orgID, documentID string, deletedAt time.Time) error

	Search(ctx context.Context, q SearchQuery) (SearchResult, error)

	// BeginScan moves unknown -> scanning. Returns false when the
	// document is already scanning or scanned.
	BeginScan(ctx context.Context, documentID string) (bool, error)
	// FinishScan records the terminal scan verdict.
	FinishScan(ctx context.Context, documentID, verdict string, scannedAt time.Time) error

	// TransitionExtraction moves the extraction status to "to" only if
	// the current status is one of "from". Returns false otherwise.
	TransitionExtraction(ctx context.Context, documentID string, from []string, to string) (bool, error)
	// FinishExtraction records a terminal extraction outcome together
	// with whatever payload is available for reviewers.
	FinishExtraction(ctx context.Context, documentID, status string, confidence *float64, payload *ExtractedPayload, extractedText string) error

	// CreateVersion atomically flips every current record in the lineage
	// off, computes the next version number, and inserts doc with that
	// version and current=true. The passed doc's ParentDocumentID must
	// be the lineage root.
	CreateVersion(ctx context.Context, doc Document) (Document, error)
}
