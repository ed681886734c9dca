package documents_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"clientdocs-backend/internal/bootstrap"
	"clientdocs-backend/internal/shared/config"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Port:                 "0",
		CORSAllowOrigin:      []string{"http://localhost:5173"},
		Env:                  "dev",
		ObjectStoreType:      "local",
		LocalStoreDir:        t.TempDir(),
		ExtractionEnabled:    true,
		AutoClassifyEnabled:  true,
		ScanTimeout:          5 * time.Second,
		ExtractionTimeout:    5 * time.Second,
		DownloadURLTTL:       15 * time.Minute,
		QuarantineOnInfected: true,
	}

	app, err := bootstrap.Build(cfg)
	if err != nil {
		t.Fatalf("bootstrap build: %v", err)
	}
	return app.Router
}

func addTenantHeaders(req *http.Request) {
	req.Header.Set("X-Organization-Id", "org-1")
	req.Header.Set("X-User-Id", "user-1")
}

func multipartUpload(t *testing.T, fileName, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fileWriter.Write([]byte(content)); err != nil {
		t.Fatalf("write file: %v", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

type uploadResponse struct {
	Document struct {
		ID               string   `json:"id"`
		FileName         string   `json:"fileName"`
		Category         string   `json:"category"`
		Subcategory      string   `json:"subcategory"`
		Year             *int     `json:"year"`
		Tags             []string `json:"tags"`
		Version          int      `json:"version"`
		IsCurrentVersion bool     `json:"isCurrentVersion"`
		ExtractionStatus string   `json:"extractionStatus"`
		Checksum         string   `json:"checksum"`
	} `json:"document"`
	DownloadURL string `json:"downloadUrl"`
}

func TestUploadSearchAndLifecycle(t *testing.T) {
	router := newTestRouter(t)

	// Upload.
	body, contentType := multipartUpload(t, "w2_2023.txt", "W-2 Wage and Tax Statement", map[string]string{
		"clientId": "client-7",
		"tags":     "payroll, smith",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	addTenantHeaders(req)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	doc := created.Document
	if doc.ID == "" || doc.Checksum == "" {
		t.Fatalf("expected id and checksum, got %+v", doc)
	}
	if doc.Category != "tax_return" || doc.Subcategory != "w2" {
		t.Fatalf("expected auto-classified w2, got %s/%s", doc.Category, doc.Subcategory)
	}
	if doc.Year == nil || *doc.Year != 2023 {
		t.Fatalf("expected year 2023 from filename")
	}
	if len(doc.Tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", doc.Tags)
	}
	if created.DownloadURL == "" {
		t.Fatalf("expected download url on upload")
	}

	// Fetch by id.
	reqGet := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	addTenantHeaders(reqGet)
	respGet := httptest.NewRecorder()
	router.ServeHTTP(respGet, reqGet)
	if respGet.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", respGet.Code)
	}

	// Search by category.
	reqSearch := httptest.NewRequest(http.MethodGet, "/api/v1/documents?category=tax_return", nil)
	addTenantHeaders(reqSearch)
	respSearch := httptest.NewRecorder()
	router.ServeHTTP(respSearch, reqSearch)
	if respSearch.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", respSearch.Code)
	}
	var searched struct {
		Documents []json.RawMessage `json:"documents"`
		Total     int               `json:"total"`
	}
	if err := json.NewDecoder(respSearch.Body).Decode(&searched); err != nil {
		t.Fatalf("decode search response: %v", err)
	}
	if searched.Total != 1 {
		t.Fatalf("expected one match, got %d", searched.Total)
	}

	// Update metadata.
	patch := strings.NewReader(`{"description":"Smith W-2 for FY2023","isConfidential":true}`)
	reqPatch := httptest.NewRequest(http.MethodPatch, "/api/v1/documents/"+doc.ID, patch)
	reqPatch.Header.Set("Content-Type", "application/json")
	addTenantHeaders(reqPatch)
	respPatch := httptest.NewRecorder()
	router.ServeHTTP(respPatch, reqPatch)
	if respPatch.Code != http.StatusOK {
		t.Fatalf("expected 200 on patch, got %d: %s", respPatch.Code, respPatch.Body.String())
	}

	// Download URL (same-org member may access confidential documents).
	reqDl := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID+"/download", nil)
	addTenantHeaders(reqDl)
	respDl := httptest.NewRecorder()
	router.ServeHTTP(respDl, reqDl)
	if respDl.Code != http.StatusOK {
		t.Fatalf("expected 200 on download, got %d: %s", respDl.Code, respDl.Body.String())
	}
	var dl struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(respDl.Body).Decode(&dl); err != nil {
		t.Fatalf("decode download response: %v", err)
	}
	if dl.URL == "" {
		t.Fatalf("expected download url")
	}

	// New version.
	vBody, vType := multipartUpload(t, "w2_2023_corrected.txt", "corrected W-2", nil)
	reqVer := httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+doc.ID+"/versions", vBody)
	reqVer.Header.Set("Content-Type", vType)
	addTenantHeaders(reqVer)
	respVer := httptest.NewRecorder()
	router.ServeHTTP(respVer, reqVer)
	if respVer.Code != http.StatusCreated {
		t.Fatalf("expected 201 on version, got %d: %s", respVer.Code, respVer.Body.String())
	}
	var version uploadResponse
	if err := json.NewDecoder(respVer.Body).Decode(&version); err != nil {
		t.Fatalf("decode version response: %v", err)
	}
	if version.Document.Version != 2 || !version.Document.IsCurrentVersion {
		t.Fatalf("expected v2 current, got %+v", version.Document)
	}

	// Delete the new version; lineage falls back to v1.
	reqDel := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+version.Document.ID, nil)
	addTenantHeaders(reqDel)
	respDel := httptest.NewRecorder()
	router.ServeHTTP(respDel, reqDel)
	if respDel.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d", respDel.Code)
	}

	reqGone := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+version.Document.ID, nil)
	addTenantHeaders(reqGone)
	respGone := httptest.NewRecorder()
	router.ServeHTTP(respGone, reqGone)
	if respGone.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", respGone.Code)
	}
}

func TestUploadRequiresTenantHeaders(t *testing.T) {
	router := newTestRouter(t)

	body, contentType := multipartUpload(t, "a.txt", "x", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity headers, got %d", resp.Code)
	}
}

func TestUploadRejectsMissingFile(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	addTenantHeaders(req)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file part, got %d", resp.Code)
	}
}

func TestBulkUploadReportsPerFileOutcomes(t *testing.T) {
	router := newTestRouter(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, name := range []string{"one.txt", "two.txt"} {
		fw, err := writer.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte("content of " + name)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/bulk", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	addTenantHeaders(req)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var bulk struct {
		Attempted int `json:"attempted"`
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bulk); err != nil {
		t.Fatalf("decode bulk response: %v", err)
	}
	if bulk.Attempted != 2 || bulk.Succeeded != 2 || bulk.Failed != 0 {
		t.Fatalf("unexpected bulk outcome: %+v", bulk)
	}
}
