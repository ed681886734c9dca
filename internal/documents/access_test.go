package documents

import (
	"context"
	"errors"
	"testing"
	"time"

	"clientdocs-backend/internal/authz"
	"clientdocs-backend/internal/shared/storage/object"
)

type denyAll struct{}

func (denyAll) CanAccess(context.Context, string, authz.Requester) (bool, error) {
	return false, nil
}

func TestGetDownloadURLQuarantinesInfectedDocuments(t *testing.T) {
	svc, repo, _ := newTestService(t)

	doc, _, err := svc.Ingest(context.Background(), textRequest("a.txt"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := repo.FinishScan(context.Background(), doc.ID, ScanVerdictInfected, time.Now()); err != nil {
		t.Fatalf("finish scan: %v", err)
	}

	requester := authz.Requester{UserID: "user-1", OrganizationID: "org-1"}
	_, err = svc.GetDownloadURL(context.Background(), doc.ID, requester)
	if !errors.Is(err, ErrQuarantined) {
		t.Fatalf("expected ErrQuarantined, got %v", err)
	}

	// With quarantine policy off, infected documents stay downloadable.
	svc.QuarantineInfected = false
	url, err := svc.GetDownloadURL(context.Background(), doc.ID, requester)
	if err != nil {
		t.Fatalf("expected url with quarantine disabled, got %v", err)
	}
	if url == "" {
		t.Fatalf("expected non-empty url")
	}
}

func TestGetDownloadURLConfidentialRequiresAuthorization(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.Authz = denyAll{}

	req := textRequest("payroll.txt")
	req.IsConfidential = true
	doc, _, err := svc.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	requester := authz.Requester{UserID: "user-1", OrganizationID: "org-1"}
	_, err = svc.GetDownloadURL(context.Background(), doc.ID, requester)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}

	svc.Authz = authz.NewMemberAuthorizer()
	url, err := svc.GetDownloadURL(context.Background(), doc.ID, requester)
	if err != nil {
		t.Fatalf("expected member access, got %v", err)
	}
	if url == "" {
		t.Fatalf("expected non-empty url")
	}
}

type ttlRecordingStore struct {
	object.BlobStore
	lastTTL time.Duration
}

func (s *ttlRecordingStore) GetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.lastTTL = ttl
	return s.BlobStore.GetURL(ctx, key, ttl)
}

func TestGetDownloadURLCapsLinkTTL(t *testing.T) {
	svc, _, _ := newTestService(t)
	store := &ttlRecordingStore{BlobStore: svc.Store}
	svc.Store = store
	svc.DownloadTTL = 4 * time.Hour

	doc, _, err := svc.Ingest(context.Background(), textRequest("a.txt"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	requester := authz.Requester{UserID: "user-1", OrganizationID: "org-1"}
	if _, err := svc.GetDownloadURL(context.Background(), doc.ID, requester); err != nil {
		t.Fatalf("download url: %v", err)
	}
	if store.lastTTL != 30*time.Minute {
		t.Fatalf("expected ttl capped at 30m, got %v", store.lastTTL)
	}

	svc.DownloadTTL = 5 * time.Minute
	if _, err := svc.GetDownloadURL(context.Background(), doc.ID, requester); err != nil {
		t.Fatalf("download url: %v", err)
	}
	if store.lastTTL != 5*time.Minute {
		t.Fatalf("expected configured ttl, got %v", store.lastTTL)
	}
}

func TestGetDownloadURLHidesOtherOrganizations(t *testing.T) {
	svc, _, _ := newTestService(t)

	doc, _, err := svc.Ingest(context.Background(), textRequest("a.txt"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	requester := authz.Requester{UserID: "user-9", OrganizationID: "org-2"}
	_, err = svc.GetDownloadURL(context.Background(), doc.ID, requester)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across organizations, got %v", err)
	}
}

func TestGetDownloadURLHidesSoftDeleted(t *testing.T) {
	svc, _, _ := newTestService(t)

	doc, _, err := svc.Ingest(context.Background(), textRequest("a.txt"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := svc.SoftDelete(context.Background(), "org-1", doc.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	requester := authz.Requester{UserID: "user-1", OrganizationID: "org-1"}
	_, err = svc.GetDownloadURL(context.Background(), doc.ID, requester)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
