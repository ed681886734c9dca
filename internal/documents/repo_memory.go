package documents

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo used in dev mode
// and tests. Lineage mutations serialize on a per-root mutex so that
// concurrent CreateVersion calls observe the same guarantees as the
// transactional Postgres implementation.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]*Document // id -> document

	lineageMu sync.Mutex
	lineages  map[string]*sync.Mutex // lineage root -> lock
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data:     make(map[string]*Document),
		lineages: make(map[string]*sync.Mutex),
	}
}

func (r *MemoryRepo) lineageLock(root string) *sync.Mutex {
	r.lineageMu.Lock()
	defer r.lineageMu.Unlock()
	if _, ok := r.lineages[root]; !ok {
		r.lineages[root] = &sync.Mutex{}
	}
	return r.lineages[root]
}

// Create stores a new document.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := doc
	r.data[doc.ID] = &stored
	return nil
}

// GetByID returns a live document scoped to an organization.
func (r *MemoryRepo) GetByID(ctx context.Context, orgID, documentID string) (Document, error) {
	doc, err := r.Get(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if doc.OrganizationID != orgID {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// Get returns a live document by id.
func (r *MemoryRepo) Get(ctx context.Context, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.data[documentID]
	if !ok || doc.DeletedAt != nil {
		return Document{}, ErrNotFound
	}
	return *doc, nil
}

// UpdateMetadata applies the non-nil fields of update.
func (r *MemoryRepo) UpdateMetadata(ctx context.Context, orgID, documentID string, update MetadataUpdate) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[documentID]
	if !ok || doc.DeletedAt != nil || doc.OrganizationID != orgID {
		return Document{}, ErrNotFound
	}
	if update.Category != nil {
		doc.Category = *update.Category
	}
	if update.Subcategory != nil {
		doc.Subcategory = *update.Subcategory
	}
	if update.Year != nil {
		doc.Year = update.Year
	}
	if update.Quarter != nil {
		doc.Quarter = update.Quarter
	}
	if update.Tags != nil {
		doc.Tags = dedupeTags(*update.Tags)
	}
	if update.Description != nil {
		doc.Description = *update.Description
	}
	if update.IsConfidential != nil {
		doc.IsConfidential = *update.IsConfidential
	}
	return *doc, nil
}

// SoftDelete stamps the deletion time and repairs the lineage's current pointer.
func (r *MemoryRepo) SoftDelete(ctx context.Context, orgID, documentID string, deletedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	doc, ok := r.data[documentID]
	if !ok || doc.DeletedAt != nil || doc.OrganizationID != orgID {
		r.mu.RUnlock()
		return ErrNotFound
	}
	root := doc.LineageRoot()
	r.mu.RUnlock()

	lock := r.lineageLock(root)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok = r.data[documentID]
	if !ok || doc.DeletedAt != nil {
		return ErrNotFound
	}

	wasCurrent := doc.IsCurrentVersion
	ts := deletedAt
	doc.DeletedAt = &ts
	doc.IsCurrentVersion = false

	if !wasCurrent {
		return nil
	}

	// Promote the newest surviving version, if any.
	var successor *Document
	for _, candidate := range r.data {
		if candidate.DeletedAt != nil || candidate.ID == documentID {
			continue
		}
		if candidate.LineageRoot() != root {
			continue
		}
		if successor == nil || candidate.Version > successor.Version {
			successor = candidate
		}
	}
	if successor != nil {
		successor.IsCurrentVersion = true
	}
	return nil
}

// BeginScan moves unknown -> scanning.
func (r *MemoryRepo) BeginScan(ctx context.Context, documentID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[documentID]
	if !ok || doc.DeletedAt != nil {
		return false, ErrNotFound
	}
	if doc.Scanned || doc.ScanVerdict == ScanVerdictScanning {
		return false, nil
	}
	doc.ScanVerdict = ScanVerdictScanning
	return true, nil
}

// FinishScan records the terminal scan verdict.
func (r *MemoryRepo) FinishScan(ctx context.Context, documentID, verdict string, scannedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[documentID]
	if !ok {
		return ErrNotFound
	}
	doc.Scanned = true
	ts := scannedAt
	doc.ScannedAt = &ts
	doc.ScanVerdict = verdict
	return nil
}

// TransitionExtraction conditionally moves the extraction status.
func (r *MemoryRepo) TransitionExtraction(ctx context.Context, documentID string, from []string, to string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[documentID]
	if !ok || doc.DeletedAt != nil {
		return false, ErrNotFound
	}
	for _, status := range from {
		if doc.ExtractionStatus == status {
			doc.ExtractionStatus = to
			if to == ExtractionPending {
				doc.NeedsReview = false
			}
			return true, nil
		}
	}
	return false, nil
}

// FinishExtraction records a terminal extraction outcome.
func (r *MemoryRepo) FinishExtraction(ctx context.Context, documentID, status string, confidence *float64, payload *ExtractedPayload, extractedText string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[documentID]
	if !ok {
		return ErrNotFound
	}
	doc.ExtractionStatus = status
	doc.Confidence = confidence
	doc.ExtractedData = payload
	doc.ExtractedText = extractedText
	doc.NeedsReview = status == ExtractionNeedsReview
	return nil
}

// CreateVersion atomically flips the lineage's current pointer and inserts doc.
func (r *MemoryRepo) CreateVersion(ctx context.Context, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	root := doc.ParentDocumentID
	if root == "" {
		return Document{}, ErrInvalidInput
	}

	lock := r.lineageLock(root)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	maxVersion := 0
	found := false
	for _, existing := range r.data {
		if existing.ID != root && existing.LineageRoot() != root {
			continue
		}
		found = true
		if existing.Version > maxVersion {
			maxVersion = existing.Version
		}
		if existing.IsCurrentVersion {
			existing.IsCurrentVersion = false
		}
	}
	if !found {
		return Document{}, ErrNotFound
	}

	doc.Version = maxVersion + 1
	doc.IsCurrentVersion = true
	stored := doc
	r.data[doc.ID] = &stored
	return doc, nil
}

// Search filters, sorts, and pages documents in memory.
func (r *MemoryRepo) Search(ctx context.Context, q SearchQuery) (SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return SearchResult{}, err
	}

	r.mu.RLock()
	matched := make([]Document, 0)
	for _, doc := range r.data {
		if matchesQuery(*doc, q) {
			matched = append(matched, *doc)
		}
	}
	r.mu.RUnlock()

	sortDocuments(matched, q.SortBy, q.SortDesc)

	total := len(matched)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	if offset >= total {
		return SearchResult{Documents: []Document{}, Total: total, HasMore: false}, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := matched[offset:end]
	return SearchResult{
		Documents: page,
		Total:     total,
		HasMore:   offset+len(page) < total,
	}, nil
}

func matchesQuery(doc Document, q SearchQuery) bool {
	if doc.DeletedAt != nil {
		return false
	}
	if doc.OrganizationID != q.OrganizationID {
		return false
	}
	if q.ClientID != "" && doc.ClientID != q.ClientID {
		return false
	}
	if q.Category != "" && doc.Category != q.Category {
		return false
	}
	if q.Subcategory != "" && doc.Subcategory != q.Subcategory {
		return false
	}
	if q.Year != nil && (doc.Year == nil || *doc.Year != *q.Year) {
		return false
	}
	if q.Quarter != nil && (doc.Quarter == nil || *doc.Quarter != *q.Quarter) {
		return false
	}
	if len(q.Tags) > 0 && !hasAnyTag(doc.Tags, q.Tags) {
		return false
	}
	if q.FileType != "" && !strings.EqualFold(doc.FileType, q.FileType) {
		return false
	}
	if q.Confidential != nil && doc.IsConfidential != *q.Confidential {
		return false
	}
	if q.ExtractionStatus != "" && doc.ExtractionStatus != q.ExtractionStatus {
		return false
	}
	if q.NeedsReview != nil && doc.NeedsReview != *q.NeedsReview {
		return false
	}
	if q.CreatedFrom != nil && doc.CreatedAt.Before(*q.CreatedFrom) {
		return false
	}
	if q.CreatedTo != nil && doc.CreatedAt.After(*q.CreatedTo) {
		return false
	}
	if q.Text != "" {
		needle := strings.ToLower(q.Text)
		if !strings.Contains(strings.ToLower(doc.FileName), needle) &&
			!strings.Contains(strings.ToLower(doc.Description), needle) &&
			!strings.Contains(strings.ToLower(doc.ExtractedText), needle) {
			return false
		}
	}
	return true
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

func sortDocuments(docs []Document, sortBy string, desc bool) {
	less := func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) }
	switch sortBy {
	case SortByFileName:
		less = func(i, j int) bool { return strings.ToLower(docs[i].FileName) < strings.ToLower(docs[j].FileName) }
	case SortBySizeBytes:
		less = func(i, j int) bool { return docs[i].SizeBytes < docs[j].SizeBytes }
	case SortByConfidence:
		less = func(i, j int) bool { return confidenceOf(docs[i]) < confidenceOf(docs[j]) }
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if desc {
			return less(j, i)
		}
		return less(i, j)
	})
}

func confidenceOf(doc Document) float64 {
	if doc.Confidence == nil {
		return -1
	}
	return *doc.Confidence
}

func dedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

var _ Repo = (*MemoryRepo)(nil)
