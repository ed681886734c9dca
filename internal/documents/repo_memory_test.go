package documents

import (
	"context"
	"testing"
	"time"
)

func seedDoc(t *testing.T, repo *MemoryRepo, doc Document) Document {
	t.Helper()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if err := repo.Create(context.Background(), doc); err != nil {
		t.Fatalf("create: %v", err)
	}
	return doc
}

func TestSoftDeletePromotesNewestSurvivor(t *testing.T) {
	repo := NewMemoryRepo()

	root := seedDoc(t, repo, Document{ID: "root", OrganizationID: "org-1", Version: 1})
	seedDoc(t, repo, Document{ID: "v2", OrganizationID: "org-1", ParentDocumentID: root.ID, Version: 2})
	seedDoc(t, repo, Document{ID: "v3", OrganizationID: "org-1", ParentDocumentID: root.ID, Version: 3, IsCurrentVersion: true})

	if err := repo.SoftDelete(context.Background(), "org-1", "v3", time.Now().UTC()); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	if _, err := repo.Get(context.Background(), "v3"); err != ErrNotFound {
		t.Fatalf("expected deleted document hidden, got %v", err)
	}
	promoted, err := repo.Get(context.Background(), "v2")
	if err != nil {
		t.Fatalf("get v2: %v", err)
	}
	if !promoted.IsCurrentVersion {
		t.Fatalf("expected v2 promoted to current")
	}
}

func TestSoftDeleteNonCurrentLeavesPointerAlone(t *testing.T) {
	repo := NewMemoryRepo()

	root := seedDoc(t, repo, Document{ID: "root", OrganizationID: "org-1", Version: 1})
	seedDoc(t, repo, Document{ID: "v2", OrganizationID: "org-1", ParentDocumentID: root.ID, Version: 2, IsCurrentVersion: true})

	if err := repo.SoftDelete(context.Background(), "org-1", "root", time.Now().UTC()); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	current, err := repo.Get(context.Background(), "v2")
	if err != nil {
		t.Fatalf("get v2: %v", err)
	}
	if !current.IsCurrentVersion {
		t.Fatalf("expected v2 to remain current")
	}
}

func TestBeginScanClaimsOnlyOnce(t *testing.T) {
	repo := NewMemoryRepo()
	seedDoc(t, repo, Document{ID: "d1", OrganizationID: "org-1", ScanVerdict: ScanVerdictUnknown})

	first, err := repo.BeginScan(context.Background(), "d1")
	if err != nil {
		t.Fatalf("begin scan: %v", err)
	}
	if !first {
		t.Fatalf("expected first claim to win")
	}
	second, err := repo.BeginScan(context.Background(), "d1")
	if err != nil {
		t.Fatalf("begin scan again: %v", err)
	}
	if second {
		t.Fatalf("expected second claim to lose")
	}
}

func TestTransitionExtractionGuardsSourceState(t *testing.T) {
	repo := NewMemoryRepo()
	seedDoc(t, repo, Document{ID: "d1", OrganizationID: "org-1", ExtractionStatus: ExtractionPending, NeedsReview: true})

	ok, err := repo.TransitionExtraction(context.Background(), "d1", []string{ExtractionCompleted}, ExtractionPending)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if ok {
		t.Fatalf("expected transition from wrong source to be refused")
	}

	ok, err = repo.TransitionExtraction(context.Background(), "d1", []string{ExtractionPending}, ExtractionProcessing)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !ok {
		t.Fatalf("expected pending -> processing to apply")
	}

	doc, err := repo.Get(context.Background(), "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.ExtractionStatus != ExtractionProcessing {
		t.Fatalf("expected processing, got %s", doc.ExtractionStatus)
	}
}

func TestTransitionToPendingClearsReviewFlag(t *testing.T) {
	repo := NewMemoryRepo()
	seedDoc(t, repo, Document{ID: "d1", OrganizationID: "org-1", ExtractionStatus: ExtractionNeedsReview, NeedsReview: true})

	ok, err := repo.TransitionExtraction(context.Background(), "d1",
		[]string{ExtractionCompleted, ExtractionFailed, ExtractionNeedsReview}, ExtractionPending)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !ok {
		t.Fatalf("expected needs_review -> pending to apply")
	}
	doc, err := repo.Get(context.Background(), "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.NeedsReview {
		t.Fatalf("expected review flag cleared on re-entry")
	}
}

func TestSearchFiltersAndPages(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	year2023 := 2023
	seedDoc(t, repo, Document{
		ID: "a", OrganizationID: "org-1", ClientID: "c1", FileName: "w2_smith.pdf",
		Category: CategoryTaxReturn, Year: &year2023, Tags: []string{"payroll"},
		FileType: "pdf", CreatedAt: base,
	})
	seedDoc(t, repo, Document{
		ID: "b", OrganizationID: "org-1", ClientID: "c1", FileName: "statement.pdf",
		Category: CategoryBankStatement, FileType: "pdf", CreatedAt: base.Add(time.Hour),
		ExtractedText: "beginning balance 100.00",
	})
	seedDoc(t, repo, Document{
		ID: "c", OrganizationID: "org-2", FileName: "w2_other_org.pdf",
		Category: CategoryTaxReturn, CreatedAt: base,
	})

	// Organization scope is absolute.
	result, err := repo.Search(context.Background(), SearchQuery{OrganizationID: "org-1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Total != 2 {
		t.Fatalf("expected 2 documents for org-1, got %d", result.Total)
	}

	// Category + year.
	result, err = repo.Search(context.Background(), SearchQuery{
		OrganizationID: "org-1", Category: CategoryTaxReturn, Year: &year2023,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Total != 1 || result.Documents[0].ID != "a" {
		t.Fatalf("expected only document a, got %+v", result.Documents)
	}

	// Free text hits extracted content.
	result, err = repo.Search(context.Background(), SearchQuery{OrganizationID: "org-1", Text: "beginning balance"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Total != 1 || result.Documents[0].ID != "b" {
		t.Fatalf("expected extracted-text match on b, got %+v", result.Documents)
	}

	// Tag match is any-of and case-insensitive.
	result, err = repo.Search(context.Background(), SearchQuery{OrganizationID: "org-1", Tags: []string{"PAYROLL", "missing"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Total != 1 || result.Documents[0].ID != "a" {
		t.Fatalf("expected tag match on a, got %+v", result.Documents)
	}

	// Paging.
	result, err = repo.Search(context.Background(), SearchQuery{
		OrganizationID: "org-1", SortBy: SortByCreatedAt, SortDesc: true, Limit: 1,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.Documents) != 1 || result.Documents[0].ID != "b" {
		t.Fatalf("expected newest first, got %+v", result.Documents)
	}
	if !result.HasMore {
		t.Fatalf("expected HasMore with limit 1")
	}
}
