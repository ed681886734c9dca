package documents

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"clientdocs-backend/internal/authz"
	"clientdocs-backend/internal/shared/server/middleware"
	"clientdocs-backend/internal/shared/server/respond"
)

const maxBulkFiles = 20

// Handler wires HTTP handlers to the document service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.POST("/documents/bulk", h.uploadBulk)
	rg.GET("/documents", h.search)
	rg.GET("/documents/:id", h.get)
	rg.GET("/documents/:id/download", h.download)
	rg.POST("/documents/:id/versions", h.createVersion)
	rg.PATCH("/documents/:id", h.updateMetadata)
	rg.DELETE("/documents/:id", h.remove)
	rg.POST("/documents/:id/reprocess", h.reprocess)
}

func (h *Handler) upload(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	userID := middleware.UserIDFromContext(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, CodeValidation, "file is required", nil)
		return
	}

	data, mimeType, err := readUpload(fileHeader)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}

	req := IngestRequest{
		OrganizationID: orgID,
		ClientID:       c.PostForm("clientId"),
		UploadedBy:     userID,
		FileName:       fileHeader.Filename,
		MimeType:       mimeType,
		Data:           data,
		Category:       c.PostForm("category"),
		Subcategory:    c.PostForm("subcategory"),
		Year:           parseIntParam(c.PostForm("year")),
		Quarter:        parseIntParam(c.PostForm("quarter")),
		Tags:           splitTags(c.PostForm("tags")),
		Description:    c.PostForm("description"),
	}
	if b := parseBoolParam(c.PostForm("isConfidential")); b != nil {
		req.IsConfidential = *b
	}

	doc, url, err := h.Svc.Ingest(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, "failed to ingest document")
		return
	}

	respond.JSON(c, http.StatusCreated, UploadResponse{
		Document:    toDocumentResponse(doc),
		DownloadURL: url,
	})
}

func (h *Handler) uploadBulk(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	userID := middleware.UserIDFromContext(c)

	form, err := c.MultipartForm()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, CodeValidation, "multipart form is required", nil)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		respond.Error(c, http.StatusBadRequest, CodeValidation, "at least one file is required", nil)
		return
	}
	if len(files) > maxBulkFiles {
		respond.Error(c, http.StatusBadRequest, CodeValidation, "too many files in one request", nil)
		return
	}

	clientID := firstFormValue(form, "clientId")
	category := firstFormValue(form, "category")
	tags := splitTags(firstFormValue(form, "tags"))

	reqs := make([]IngestRequest, 0, len(files))
	for _, fileHeader := range files {
		data, mimeType, readErr := readUpload(fileHeader)
		if readErr != nil {
			// Surface the read failure through the per-file outcomes.
			reqs = append(reqs, IngestRequest{
				OrganizationID: orgID,
				UploadedBy:     userID,
				FileName:       fileHeader.Filename,
			})
			continue
		}
		reqs = append(reqs, IngestRequest{
			OrganizationID: orgID,
			ClientID:       clientID,
			UploadedBy:     userID,
			FileName:       fileHeader.Filename,
			MimeType:       mimeType,
			Data:           data,
			Category:       category,
			Tags:           tags,
		})
	}

	outcomes := h.Svc.IngestBulk(c.Request.Context(), reqs, nil)

	resp := BulkUploadResponse{Attempted: len(outcomes)}
	for _, outcome := range outcomes {
		fileResp := BulkFileResponse{FileName: outcome.FileName}
		if outcome.Err != nil {
			resp.Failed++
			fileResp.Error = outcome.Err.Error()
		} else {
			resp.Succeeded++
			docResp := toDocumentResponse(*outcome.Document)
			fileResp.Document = &docResp
		}
		resp.Results = append(resp.Results, fileResp)
	}

	status := http.StatusCreated
	if resp.Succeeded == 0 {
		status = http.StatusBadRequest
	} else if resp.Failed > 0 {
		status = http.StatusMultiStatus
	}
	respond.JSON(c, status, resp)
}

func (h *Handler) search(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)

	limit := 20
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	offset := 0
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			offset = parsed
		}
	}

	q := SearchQuery{
		OrganizationID:   orgID,
		ClientID:         c.Query("clientId"),
		Category:         c.Query("category"),
		Subcategory:      c.Query("subcategory"),
		Year:             parseIntParam(c.Query("year")),
		Quarter:          parseIntParam(c.Query("quarter")),
		Tags:             splitTags(c.Query("tags")),
		Text:             c.Query("q"),
		FileType:         c.Query("fileType"),
		Confidential:     parseBoolParam(c.Query("isConfidential")),
		ExtractionStatus: c.Query("extractionStatus"),
		NeedsReview:      parseBoolParam(c.Query("needsReview")),
		CreatedFrom:      parseTimeParam(c.Query("createdFrom")),
		CreatedTo:        parseTimeParam(c.Query("createdTo")),
		SortBy:           c.Query("sortBy"),
		SortDesc:         c.Query("sortDir") != "asc",
		Offset:           offset,
		Limit:            limit,
	}

	result, err := h.Svc.Search(c.Request.Context(), q)
	if err != nil {
		h.writeError(c, err, "failed to search documents")
		return
	}
	respond.OK(c, toSearchResponse(result))
}

func (h *Handler) get(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	docID := c.Param("id")

	doc, err := h.Svc.Get(c.Request.Context(), orgID, docID)
	if err != nil {
		h.writeError(c, err, "failed to fetch document")
		return
	}
	respond.OK(c, toDocumentResponse(doc))
}

func (h *Handler) download(c *gin.Context) {
	requester := authz.Requester{
		UserID:         middleware.UserIDFromContext(c),
		OrganizationID: middleware.OrgIDFromContext(c),
	}
	docID := c.Param("id")

	url, err := h.Svc.GetDownloadURL(c.Request.Context(), docID, requester)
	if err != nil {
		h.writeError(c, err, "failed to issue download url")
		return
	}
	respond.OK(c, DownloadResponse{URL: url})
}

func (h *Handler) createVersion(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	userID := middleware.UserIDFromContext(c)
	parentID := c.Param("id")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, CodeValidation, "file is required", nil)
		return
	}
	data, mimeType, err := readUpload(fileHeader)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}

	req := VersionRequest{
		OrganizationID:          orgID,
		UploadedBy:              userID,
		FileName:                fileHeader.Filename,
		MimeType:                mimeType,
		Data:                    data,
		Description:             c.PostForm("description"),
		ConfidentialityOverride: parseBoolParam(c.PostForm("isConfidential")),
	}

	doc, url, err := h.Svc.CreateVersion(c.Request.Context(), parentID, req)
	if err != nil {
		h.writeError(c, err, "failed to create version")
		return
	}
	respond.JSON(c, http.StatusCreated, UploadResponse{
		Document:    toDocumentResponse(doc),
		DownloadURL: url,
	})
}

func (h *Handler) updateMetadata(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	docID := c.Param("id")

	var body UpdateMetadataRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, CodeValidation, "invalid json body", nil)
		return
	}

	update := MetadataUpdate{
		Category:       body.Category,
		Subcategory:    body.Subcategory,
		Year:           body.Year,
		Quarter:        body.Quarter,
		Tags:           body.Tags,
		Description:    body.Description,
		IsConfidential: body.IsConfidential,
	}

	doc, err := h.Svc.UpdateMetadata(c.Request.Context(), orgID, docID, update)
	if err != nil {
		h.writeError(c, err, "failed to update document")
		return
	}
	respond.OK(c, toDocumentResponse(doc))
}

func (h *Handler) remove(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	docID := c.Param("id")

	if err := h.Svc.SoftDelete(c.Request.Context(), orgID, docID); err != nil {
		h.writeError(c, err, "failed to delete document")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) reprocess(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	docID := c.Param("id")

	if err := h.Svc.RequestReprocess(c.Request.Context(), orgID, docID); err != nil {
		h.writeError(c, err, "failed to request reprocessing")
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, CodeValidation, err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, CodeNotFound, "document not found", nil)
	case errors.Is(err, ErrAccessDenied):
		respond.Error(c, http.StatusForbidden, CodeForbidden, "access denied", nil)
	case errors.Is(err, ErrQuarantined):
		respond.Error(c, http.StatusForbidden, CodeQuarantined, "document is quarantined", nil)
	case errors.Is(err, ErrNotReprocessable):
		respond.Error(c, http.StatusConflict, CodeConflict, "extraction is not in a terminal state", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, CodeInternal, fallback, nil)
	}
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, "", errors.New("unable to read uploaded file")
	}
	defer file.Close()

	// One byte past the ceiling so Validate can reject oversize uploads
	// with the proper error instead of a silent truncation.
	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		return nil, "", errors.New("unable to read uploaded file")
	}
	return data, uploadMimeType(fileHeader), nil
}

// uploadMimeType prefers the part's Content-Type but falls back to the
// file extension for clients that send a generic octet-stream part.
func uploadMimeType(fileHeader *multipart.FileHeader) string {
	ct := fileHeader.Header.Get("Content-Type")
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if byExt := mime.TypeByExtension(filepath.Ext(fileHeader.Filename)); byExt != "" {
		return byExt
	}
	return ct
}

func firstFormValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}
