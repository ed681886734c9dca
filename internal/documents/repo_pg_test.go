package documents

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM documents").
		WithArgs("doc-1", "org-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "org-1", "doc-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGBeginScanClaim(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE documents SET scan_verdict").
		WithArgs("doc-1", ScanVerdictScanning, ScanVerdictUnknown).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.BeginScan(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("begin scan: %v", err)
	}
	if !claimed {
		t.Fatalf("expected claim to win")
	}

	mock.ExpectExec("UPDATE documents SET scan_verdict").
		WithArgs("doc-1", ScanVerdictScanning, ScanVerdictUnknown).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err = repo.BeginScan(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("begin scan: %v", err)
	}
	if claimed {
		t.Fatalf("expected second claim to lose")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGTransitionExtraction(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE documents SET extraction_status").
		WithArgs("doc-1", ExtractionProcessing, ExtractionPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.TransitionExtraction(context.Background(), "doc-1",
		[]string{ExtractionPending}, ExtractionProcessing)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !ok {
		t.Fatalf("expected transition to apply")
	}

	// Multiple source states expand into the IN list.
	mock.ExpectExec("UPDATE documents SET extraction_status").
		WithArgs("doc-1", ExtractionPending, ExtractionCompleted, ExtractionFailed, ExtractionNeedsReview).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.TransitionExtraction(context.Background(), "doc-1",
		[]string{ExtractionCompleted, ExtractionFailed, ExtractionNeedsReview}, ExtractionPending)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if ok {
		t.Fatalf("expected transition from wrong state to be refused")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGFinishExtractionMissingDocument(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE documents SET extraction_status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.FinishExtraction(context.Background(), "missing", ExtractionCompleted, nil, nil, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGSoftDeletePromotesSuccessor(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("v3", "org-1").
		WillReturnRows(sqlmock.NewRows([]string{"root", "is_current_version"}).AddRow("root-id", true))
	mock.ExpectExec("SELECT id FROM documents").
		WithArgs("root-id", "v3").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE documents SET deleted_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents SET is_current_version = TRUE").
		WithArgs("root-id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.SoftDelete(context.Background(), "org-1", "v3", time.Now()); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGSoftDeleteNonCurrentSkipsPromotion(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("v1", "org-1").
		WillReturnRows(sqlmock.NewRows([]string{"root", "is_current_version"}).AddRow("root-id", false))
	mock.ExpectExec("SELECT id FROM documents").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE documents SET deleted_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.SoftDelete(context.Background(), "org-1", "v1", time.Now()); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGCreateVersionComputesNextVersion(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM documents").
		WithArgs("root-id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("root-id").AddRow("v2"))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM documents`).
		WithArgs("root-id").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(2))
	mock.ExpectExec("UPDATE documents SET is_current_version = FALSE").
		WithArgs("root-id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO documents").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc, err := repo.CreateVersion(context.Background(), Document{
		ID:               "v3",
		OrganizationID:   "org-1",
		UploadedBy:       "user-1",
		FileName:         "a_v3.txt",
		ParentDocumentID: "root-id",
		ScanVerdict:      ScanVerdictUnknown,
		ExtractionStatus: ExtractionPending,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	if doc.Version != 3 || !doc.IsCurrentVersion {
		t.Fatalf("expected v3 current, got v%d current=%v", doc.Version, doc.IsCurrentVersion)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

// The locked read's snapshot cannot see a version committed by a writer
// we waited on, so the number must come from the follow-up MAX statement.
func TestPGCreateVersionUsesFreshMaxAfterLocking(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	// Lineage as of the statement snapshot: v1 and v2 only.
	mock.ExpectQuery("SELECT id FROM documents").
		WithArgs("root-id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("root-id").AddRow("v2"))
	// A concurrent writer committed v3 while we blocked on its locks.
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM documents`).
		WithArgs("root-id").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(3))
	mock.ExpectExec("UPDATE documents SET is_current_version = FALSE").
		WithArgs("root-id").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO documents").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc, err := repo.CreateVersion(context.Background(), Document{
		ID:               "v4",
		OrganizationID:   "org-1",
		UploadedBy:       "user-1",
		FileName:         "a_v4.txt",
		ParentDocumentID: "root-id",
		ScanVerdict:      ScanVerdictUnknown,
		ExtractionStatus: ExtractionPending,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	if doc.Version != 4 {
		t.Fatalf("expected version 4 from fresh max, got %d", doc.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGCreateVersionUnknownLineage(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM documents").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.CreateVersion(context.Background(), Document{ID: "x", ParentDocumentID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEscapeLike(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"50%_off", `50\%\_off`},
		{`back\slash`, `back\\slash`},
		{"__", `\_\_`},
	}
	for _, tc := range cases {
		if got := escapeLike(tc.in); got != tc.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPGSearchEscapesFreeTextPattern(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents`).
		WithArgs("org-1", `%50\%\_off%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("FROM documents").
		WithArgs("org-1", `%50\%\_off%`, 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	result, err := repo.Search(context.Background(), SearchQuery{
		OrganizationID: "org-1",
		Text:           "50%_off",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Total != 0 || len(result.Documents) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
