package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/querywright/querywright/internal/auth"
	"github.com/querywright/querywright/internal/catalog"
)

func TestExportGoldenRecords(t *testing.T) {
	repo := newInMemoryCatalog()
	conn, _ := repo.CreateDatabaseConnection(t.Context(), catalog.CreateDatabaseConnectionInput{Alias: "sales", EncryptedURI: "enc"})
	for _, q := range []string{"a", "b", "c"} {
		_, _ = repo.CreateGoldenRecord(t.Context(), catalog.CreateGoldenRecordInput{DBConnectionID: conn.ID, Question: q, SQLQuery: "SELECT 1"})
	}
	exporter := &fakeExporter{}
	h := NewHandler(loadTestConfig(t, nil), Dependencies{Catalog: repo, Datasets: exporter})

	rr := doJSON(t, h, http.MethodPost, "/v1/golden-records/export", map[string]any{"db_connection_id": conn.ID}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["records"] != float64(3) || body["key"] != "datasets/"+conn.ID+"/golden-1.parquet" {
		t.Fatalf("body = %#v", body)
	}
	if exporter.connectionID != conn.ID || len(exporter.records) != 3 {
		t.Fatalf("exporter saw %q/%d records", exporter.connectionID, len(exporter.records))
	}
}

func TestExportGoldenRecordsWithoutArchive(t *testing.T) {
	h := NewHandler(loadTestConfig(t, nil), Dependencies{Catalog: newInMemoryCatalog()})
	rr := doJSON(t, h, http.MethodPost, "/v1/golden-records/export", map[string]any{"db_connection_id": "c"}, nil)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestDatasetListDownloadAndDelete(t *testing.T) {
	repo := newInMemoryCatalog()
	conn, _ := repo.CreateDatabaseConnection(t.Context(), catalog.CreateDatabaseConnectionInput{Alias: "sales", EncryptedURI: "enc"})
	exporter := &fakeExporter{}
	h := NewHandler(loadTestConfig(t, nil), Dependencies{Catalog: repo, Datasets: exporter})

	if rr := doJSON(t, h, http.MethodPost, "/v1/golden-records/export", map[string]any{"db_connection_id": conn.ID}, nil); rr.Code != http.StatusCreated {
		t.Fatalf("export status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr := doJSON(t, h, http.MethodGet, "/v1/golden-records/exports?db_connection_id="+conn.ID, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d body=%s", rr.Code, rr.Body.String())
	}
	datasets, _ := decodeBody(t, rr)["datasets"].([]any)
	if len(datasets) != 1 || datasets[0].(map[string]any)["name"] != "golden-1.parquet" {
		t.Fatalf("datasets = %#v", datasets)
	}

	download := httptest.NewRecorder()
	h.ServeHTTP(download, httptest.NewRequest(http.MethodGet, "/v1/golden-records/exports/"+conn.ID+"/golden-1.parquet", nil))
	if download.Code != http.StatusOK || download.Body.String() != "PAR1" {
		t.Fatalf("download status = %d body=%q", download.Code, download.Body.String())
	}
	if got := download.Header().Get("Content-Disposition"); got != `attachment; filename="golden-1.parquet"` {
		t.Fatalf("Content-Disposition = %q", got)
	}
	if got := download.Header().Get("Content-Length"); got != "4" {
		t.Fatalf("Content-Length = %q", got)
	}

	reader := &auth.Identity{Subject: "bob", Roles: []string{auth.RoleQueryReader}}
	if rr := doJSON(t, h, http.MethodDelete, "/v1/golden-records/exports/"+conn.ID+"/golden-1.parquet", nil, reader); rr.Code != http.StatusForbidden {
		t.Fatalf("reader delete status = %d", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodDelete, "/v1/golden-records/exports/"+conn.ID+"/golden-1.parquet", nil, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, h, http.MethodGet, "/v1/golden-records/exports/"+conn.ID+"/golden-1.parquet", nil, nil)
	if rr.Code != http.StatusNotFound || decodeBody(t, rr)["error_code"] != "DATASET_NOT_FOUND" {
		t.Fatalf("download after delete status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestDatasetListRequiresConnection(t *testing.T) {
	h := NewHandler(loadTestConfig(t, nil), Dependencies{Datasets: &fakeExporter{}})
	rr := doJSON(t, h, http.MethodGet, "/v1/golden-records/exports", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}
