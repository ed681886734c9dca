package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `
id, organization_id, client_id, uploaded_by,
file_name, mime_type, file_type, size_bytes, checksum,
storage_key, thumbnail_key,
category, subcategory, year, quarter, tags, description, is_confidential,
parent_document_id, version, is_current_version,
scanned, scanned_at, scan_verdict,
extraction_status, confidence, extracted_data, extracted_text, needs_review,
created_at, deleted_at`

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (` + documentColumns + `
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)`

	args, err := insertArgs(doc)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query, args...)
	return err
}

// GetByID fetches a live document scoped to an organization.
func (r *PGRepo) GetByID(ctx context.Context, orgID, documentID string) (Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`
	return r.queryOne(ctx, query, documentID, orgID)
}

// Get fetches a live document by id.
func (r *PGRepo) Get(ctx context.Context, documentID string) (Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE id = $1 AND deleted_at IS NULL`
	return r.queryOne(ctx, query, documentID)
}

// UpdateMetadata applies the non-nil fields of update and returns the result.
func (r *PGRepo) UpdateMetadata(ctx context.Context, orgID, documentID string, update MetadataUpdate) (Document, error) {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 9)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if update.Category != nil {
		sets = append(sets, "category = "+next(*update.Category))
	}
	if update.Subcategory != nil {
		sets = append(sets, "subcategory = "+next(nullableString(*update.Subcategory)))
	}
	if update.Year != nil {
		sets = append(sets, "year = "+next(*update.Year))
	}
	if update.Quarter != nil {
		sets = append(sets, "quarter = "+next(*update.Quarter))
	}
	if update.Tags != nil {
		encoded, err := json.Marshal(dedupeTags(*update.Tags))
		if err != nil {
			return Document{}, fmt.Errorf("encode tags: %w", err)
		}
		sets = append(sets, "tags = "+next(string(encoded)))
	}
	if update.Description != nil {
		sets = append(sets, "description = "+next(*update.Description))
	}
	if update.IsConfidential != nil {
		sets = append(sets, "is_confidential = "+next(*update.IsConfidential))
	}
	if len(sets) == 0 {
		return r.GetByID(ctx, orgID, documentID)
	}

	query := fmt.Sprintf(`
UPDATE documents SET %s
WHERE id = %s AND organization_id = %s AND deleted_at IS NULL
RETURNING `+documentColumns,
		strings.Join(sets, ", "), next(documentID), next(orgID))

	return r.queryOne(ctx, query, args...)
}

// SoftDelete stamps the deletion time and repairs the lineage's current pointer
// inside a single transaction.
func (r *PGRepo) SoftDelete(ctx context.Context, orgID, documentID string, deletedAt time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin soft delete: %w", err)
	}
	defer tx.Rollback()

	var root sql.NullString
	var wasCurrent bool
	err = tx.QueryRowContext(ctx, `
SELECT COALESCE(parent_document_id, id), is_current_version
FROM documents
WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
FOR UPDATE`, documentID, orgID).Scan(&root, &wasCurrent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	// Lock the rest of the lineage before touching current flags.
	if _, err := tx.ExecContext(ctx, `
SELECT id FROM documents
WHERE (id = $1 OR parent_document_id = $1) AND id <> $2
FOR UPDATE`, root.String, documentID); err != nil {
		return fmt.Errorf("lock lineage: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE documents SET deleted_at = $2, is_current_version = FALSE
WHERE id = $1`, documentID, deletedAt); err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}

	if wasCurrent {
		if _, err := tx.ExecContext(ctx, `
UPDATE documents SET is_current_version = TRUE
WHERE id = (
    SELECT id FROM documents
    WHERE (id = $1 OR parent_document_id = $1) AND deleted_at IS NULL
    ORDER BY version DESC
    LIMIT 1
)`, root.String); err != nil {
			return fmt.Errorf("promote successor: %w", err)
		}
	}

	return tx.Commit()
}

// BeginScan moves unknown -> scanning if no scan is recorded or in flight.
func (r *PGRepo) BeginScan(ctx context.Context, documentID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
UPDATE documents SET scan_verdict = $2
WHERE id = $1 AND deleted_at IS NULL AND scanned = FALSE AND scan_verdict = $3`,
		documentID, ScanVerdictScanning, ScanVerdictUnknown)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FinishScan records the terminal scan verdict.
func (r *PGRepo) FinishScan(ctx context.Context, documentID, verdict string, scannedAt time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE documents SET scanned = TRUE, scanned_at = $2, scan_verdict = $3
WHERE id = $1`, documentID, scannedAt, verdict)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionExtraction conditionally moves the extraction status.
func (r *PGRepo) TransitionExtraction(ctx context.Context, documentID string, from []string, to string) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	placeholders := make([]string, len(from))
	args := []any{documentID, to}
	for i, status := range from {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`
UPDATE documents SET extraction_status = $2,
    needs_review = CASE WHEN $2 = 'pending' THEN FALSE ELSE needs_review END
WHERE id = $1 AND deleted_at IS NULL AND extraction_status IN (%s)`,
		strings.Join(placeholders, ", "))

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FinishExtraction records a terminal extraction outcome.
func (r *PGRepo) FinishExtraction(ctx context.Context, documentID, status string, confidence *float64, payload *ExtractedPayload, extractedText string) error {
	var encoded sql.NullString
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode extracted payload: %w", err)
		}
		encoded = sql.NullString{String: string(raw), Valid: true}
	}

	res, err := r.DB.ExecContext(ctx, `
UPDATE documents SET extraction_status = $2, confidence = $3, extracted_data = $4,
    extracted_text = $5, needs_review = $6
WHERE id = $1`,
		documentID, status, nullableFloat(confidence), encoded, extractedText, status == ExtractionNeedsReview)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateVersion locks the lineage, flips current off, computes the next
// version number, and inserts doc, all in one transaction.
func (r *PGRepo) CreateVersion(ctx context.Context, doc Document) (Document, error) {
	if doc.ParentDocumentID == "" {
		return Document{}, ErrInvalidInput
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("begin create version: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
SELECT id FROM documents
WHERE id = $1 OR parent_document_id = $1
FOR UPDATE`, doc.ParentDocumentID)
	if err != nil {
		return Document{}, fmt.Errorf("lock lineage: %w", err)
	}
	found := false
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return Document{}, err
		}
		found = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Document{}, err
	}
	if !found {
		return Document{}, ErrNotFound
	}

	// The locking read keeps its statement snapshot when it resumes after
	// a blocking writer commits, so a row inserted by that writer stays
	// invisible to it. The max must come from a fresh statement, which at
	// READ COMMITTED sees everything committed while we waited.
	var maxVersion int
	if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(version), 0) FROM documents
WHERE id = $1 OR parent_document_id = $1`, doc.ParentDocumentID).Scan(&maxVersion); err != nil {
		return Document{}, fmt.Errorf("next version: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE documents SET is_current_version = FALSE
WHERE (id = $1 OR parent_document_id = $1) AND is_current_version`, doc.ParentDocumentID); err != nil {
		return Document{}, fmt.Errorf("flip current: %w", err)
	}

	doc.Version = maxVersion + 1
	doc.IsCurrentVersion = true

	args, err := insertArgs(doc)
	if err != nil {
		return Document{}, err
	}
	const insert = `
INSERT INTO documents (` + documentColumns + `
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)`
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return Document{}, fmt.Errorf("insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Search builds a filtered, sorted, paged query plus a count query.
func (r *PGRepo) Search(ctx context.Context, q SearchQuery) (SearchResult, error) {
	where := []string{"deleted_at IS NULL", "organization_id = $1"}
	args := []any{q.OrganizationID}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.ClientID != "" {
		where = append(where, "client_id = "+next(q.ClientID))
	}
	if q.Category != "" {
		where = append(where, "category = "+next(q.Category))
	}
	if q.Subcategory != "" {
		where = append(where, "subcategory = "+next(q.Subcategory))
	}
	if q.Year != nil {
		where = append(where, "year = "+next(*q.Year))
	}
	if q.Quarter != nil {
		where = append(where, "quarter = "+next(*q.Quarter))
	}
	if len(q.Tags) > 0 {
		// Match-any: one containment check per requested tag.
		ors := make([]string, 0, len(q.Tags))
		for _, tag := range q.Tags {
			encoded, err := json.Marshal([]string{tag})
			if err != nil {
				return SearchResult{}, fmt.Errorf("encode tag filter: %w", err)
			}
			ors = append(ors, "tags @> "+next(string(encoded))+"::jsonb")
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if q.FileType != "" {
		where = append(where, "lower(file_type) = lower("+next(q.FileType)+")")
	}
	if q.Confidential != nil {
		where = append(where, "is_confidential = "+next(*q.Confidential))
	}
	if q.ExtractionStatus != "" {
		where = append(where, "extraction_status = "+next(q.ExtractionStatus))
	}
	if q.NeedsReview != nil {
		where = append(where, "needs_review = "+next(*q.NeedsReview))
	}
	if q.CreatedFrom != nil {
		where = append(where, "created_at >= "+next(*q.CreatedFrom))
	}
	if q.CreatedTo != nil {
		where = append(where, "created_at <= "+next(*q.CreatedTo))
	}
	if q.Text != "" {
		pattern := "%" + escapeLike(strings.ToLower(q.Text)) + "%"
		arg := next(pattern)
		where = append(where, fmt.Sprintf(
			"(lower(file_name) LIKE %s ESCAPE '\\' OR lower(description) LIKE %s ESCAPE '\\' OR lower(extracted_text) LIKE %s ESCAPE '\\')",
			arg, arg, arg))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM documents WHERE " + whereClause
	if err := r.DB.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return SearchResult{}, fmt.Errorf("count documents: %w", err)
	}

	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
SELECT `+documentColumns+`
FROM documents
WHERE %s
ORDER BY %s
LIMIT %s OFFSET %s`,
		whereClause, orderClause(q.SortBy, q.SortDesc), next(limit), next(offset))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return SearchResult{}, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return SearchResult{}, err
	}

	return SearchResult{
		Documents: docs,
		Total:     total,
		HasMore:   offset+len(docs) < total,
	}, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE metacharacters so user text matches
// literally instead of as a pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func orderClause(sortBy string, desc bool) string {
	column := "created_at"
	switch sortBy {
	case SortByFileName:
		column = "lower(file_name)"
	case SortBySizeBytes:
		column = "size_bytes"
	case SortByConfidence:
		column = "confidence"
	}
	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	// Ties break on id for stable pagination.
	return fmt.Sprintf("%s %s NULLS LAST, id ASC", column, direction)
}

func (r *PGRepo) queryOne(ctx context.Context, query string, args ...any) (Document, error) {
	row := r.DB.QueryRowContext(ctx, query, args...)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var clientID, subcategory, thumbnailKey, parentID sql.NullString
	var year, quarter sql.NullInt64
	var tagsRaw, extractedRaw sql.NullString
	var scannedAt, deletedAt sql.NullTime
	var confidence sql.NullFloat64

	err := row.Scan(
		&doc.ID, &doc.OrganizationID, &clientID, &doc.UploadedBy,
		&doc.FileName, &doc.MimeType, &doc.FileType, &doc.SizeBytes, &doc.Checksum,
		&doc.StorageKey, &thumbnailKey,
		&doc.Category, &subcategory, &year, &quarter, &tagsRaw, &doc.Description, &doc.IsConfidential,
		&parentID, &doc.Version, &doc.IsCurrentVersion,
		&doc.Scanned, &scannedAt, &doc.ScanVerdict,
		&doc.ExtractionStatus, &confidence, &extractedRaw, &doc.ExtractedText, &doc.NeedsReview,
		&doc.CreatedAt, &deletedAt,
	)
	if err != nil {
		return Document{}, err
	}

	if clientID.Valid {
		doc.ClientID = clientID.String
	}
	if subcategory.Valid {
		doc.Subcategory = subcategory.String
	}
	if thumbnailKey.Valid {
		doc.ThumbnailKey = thumbnailKey.String
	}
	if parentID.Valid {
		doc.ParentDocumentID = parentID.String
	}
	if year.Valid {
		v := int(year.Int64)
		doc.Year = &v
	}
	if quarter.Valid {
		v := int(quarter.Int64)
		doc.Quarter = &v
	}
	if tagsRaw.Valid && tagsRaw.String != "" {
		if err := json.Unmarshal([]byte(tagsRaw.String), &doc.Tags); err != nil {
			return Document{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	if extractedRaw.Valid && extractedRaw.String != "" {
		var payload ExtractedPayload
		if err := json.Unmarshal([]byte(extractedRaw.String), &payload); err != nil {
			return Document{}, fmt.Errorf("decode extracted payload: %w", err)
		}
		doc.ExtractedData = &payload
	}
	if scannedAt.Valid {
		doc.ScannedAt = &scannedAt.Time
	}
	if deletedAt.Valid {
		doc.DeletedAt = &deletedAt.Time
	}
	if confidence.Valid {
		doc.Confidence = &confidence.Float64
	}
	return doc, nil
}

func insertArgs(doc Document) ([]any, error) {
	tagsEncoded, err := json.Marshal(dedupeTags(doc.Tags))
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	var extractedEncoded sql.NullString
	if doc.ExtractedData != nil {
		raw, err := json.Marshal(doc.ExtractedData)
		if err != nil {
			return nil, fmt.Errorf("encode extracted payload: %w", err)
		}
		extractedEncoded = sql.NullString{String: string(raw), Valid: true}
	}

	return []any{
		doc.ID, doc.OrganizationID, nullableString(doc.ClientID), doc.UploadedBy,
		doc.FileName, doc.MimeType, doc.FileType, doc.SizeBytes, doc.Checksum,
		doc.StorageKey, nullableString(doc.ThumbnailKey),
		doc.Category, nullableString(doc.Subcategory), nullableInt(doc.Year), nullableInt(doc.Quarter),
		string(tagsEncoded), doc.Description, doc.IsConfidential,
		nullableString(doc.ParentDocumentID), doc.Version, doc.IsCurrentVersion,
		doc.Scanned, nullableTime(doc.ScannedAt), doc.ScanVerdict,
		doc.ExtractionStatus, nullableFloat(doc.Confidence), extractedEncoded, doc.ExtractedText, doc.NeedsReview,
		doc.CreatedAt, nullableTime(doc.DeletedAt),
	}, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
