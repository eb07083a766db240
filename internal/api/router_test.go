package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cellkit/cellkit/internal/dist"
	"github.com/cellkit/cellkit/internal/exprset"
	"github.com/cellkit/cellkit/internal/plot"
	"github.com/cellkit/cellkit/internal/qcstore"
	"github.com/cellkit/cellkit/internal/service"
	"github.com/cellkit/cellkit/internal/tabular"
)

func newTestRouter(t *testing.T) (*DatasetRegistry, http.Handler) {
	t.Helper()

	counts, err := tabular.NewMatrix(
		[]string{"g1", "g2", "g3"},
		[]string{"c1", "c2", "c3"},
		[]float64{
			5, 0, 1,
			3, 2, 4,
			0, 1, 2,
		},
	)
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	set, err := exprset.New(exprset.Config{Counts: counts})
	if err != nil {
		t.Fatalf("exprset.New: %v", err)
	}

	distStore, err := dist.NewStore(4)
	if err != nil {
		t.Fatalf("dist.NewStore: %v", err)
	}

	svc, err := service.NewDatasetService(service.DatasetServiceConfig{
		DatasetID: "pbmc",
		Set:       set,
		Renderer:  plot.NewRenderer(plot.Config{Width: 160, Height: 120}),
		Distances: distStore,
	})
	if err != nil {
		t.Fatalf("NewDatasetService: %v", err)
	}

	registry := NewDatasetRegistry("pbmc", []string{"pbmc"}, "")
	registry.Register("pbmc", svc)

	qcStore, err := qcstore.NewStore(filepath.Join(t.TempDir(), "qc.db"))
	if err != nil {
		t.Fatalf("qcstore.NewStore: %v", err)
	}
	t.Cleanup(func() { qcStore.Close() })

	router := NewRouter(RouterConfig{
		Registry:    registry,
		CORSOrigins: []string{"http://localhost:3000"},
		Store:       qcStore,
		NMADs:       5,
	})
	return registry, router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body string) (int, map[string]any) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to decode JSON from %s %s: %v", method, path, err)
		}
	}
	return rec.Code, payload
}

func TestHealthEndpoint(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestDatasetsEndpoint(t *testing.T) {
	_, router := newTestRouter(t)

	code, payload := doJSON(t, router, http.MethodGet, "/api/datasets", "")
	if code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, code)
	}
	if got, _ := payload["default"].(string); got != "pbmc" {
		t.Errorf("default = %q, want pbmc", got)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	_, router := newTestRouter(t)

	code, payload := doJSON(t, router, http.MethodGet, "/d/pbmc/api/summary", "")
	if code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, code)
	}
	if got, _ := payload["n_cells"].(float64); got != 3 {
		t.Errorf("n_cells = %v, want 3", payload["n_cells"])
	}
	if got, _ := payload["depth_source"].(string); got != "counts" {
		t.Errorf("depth_source = %v, want counts", payload["depth_source"])
	}
}

func TestUnknownDataset(t *testing.T) {
	_, router := newTestRouter(t)

	code, _ := doJSON(t, router, http.MethodGet, "/d/nope/api/summary", "")
	if code != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, code)
	}
}

func TestCellsEndpointPaging(t *testing.T) {
	_, router := newTestRouter(t)

	code, payload := doJSON(t, router, http.MethodGet, "/d/pbmc/api/cells?offset=1&limit=1", "")
	if code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, code)
	}
	if got, _ := payload["total"].(float64); got != 3 {
		t.Errorf("total = %v, want 3", payload["total"])
	}
	items, _ := payload["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	first, _ := items[0].(map[string]any)
	if got, _ := first["cell"].(string); got != "c2" {
		t.Errorf("first cell = %q, want c2", got)
	}
}

func TestDistancesEndpoint(t *testing.T) {
	_, router := newTestRouter(t)

	code, payload := doJSON(t, router, http.MethodGet, "/d/pbmc/api/distances/cells/euclidean", "")
	if code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, code)
	}
	labels, _ := payload["labels"].([]any)
	if len(labels) != 3 {
		t.Errorf("labels = %v, want 3 entries", labels)
	}
	values, _ := payload["values"].([]any)
	if len(values) != 3 {
		t.Errorf("values has %d rows, want 3", len(values))
	}

	code, _ = doJSON(t, router, http.MethodGet, "/d/pbmc/api/distances/cells/cosine", "")
	if code != http.StatusBadRequest {
		t.Errorf("unknown metric: expected %d, got %d", http.StatusBadRequest, code)
	}
}

func TestPlotEndpoints(t *testing.T) {
	_, router := newTestRouter(t)

	for _, path := range []string{
		"/d/pbmc/plots/qc_scatter.png",
		"/d/pbmc/plots/depth_hist.png?bins=10",
		"/d/pbmc/plots/top_features.png?n=2",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected %d, got %d: %s", path, http.StatusOK, rec.Code, rec.Body.String())
			continue
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("%s: content type = %q, want image/png", path, ct)
		}
	}
}

func TestRunLifecycle(t *testing.T) {
	_, router := newTestRouter(t)

	code, payload := doJSON(t, router, http.MethodPost, "/api/qc/runs", `{"dataset":"pbmc"}`)
	if code != http.StatusCreated {
		t.Fatalf("submit: expected %d, got %d", http.StatusCreated, code)
	}
	runID, _ := payload["run_id"].(string)
	if runID == "" {
		t.Fatal("submit returned empty run_id")
	}

	code, payload = doJSON(t, router, http.MethodGet, "/api/qc/runs/"+runID, "")
	if code != http.StatusOK {
		t.Fatalf("status: expected %d, got %d", http.StatusOK, code)
	}
	if got, _ := payload["dataset"].(string); got != "pbmc" {
		t.Errorf("run dataset = %q, want pbmc", got)
	}

	code, payload = doJSON(t, router, http.MethodGet, "/api/qc/runs/"+runID+"/cells?order_by=total_counts", "")
	if code != http.StatusOK {
		t.Fatalf("cells: expected %d, got %d", http.StatusOK, code)
	}
	if got, _ := payload["total"].(float64); got != 3 {
		t.Errorf("run cells total = %v, want 3", payload["total"])
	}

	code, payload = doJSON(t, router, http.MethodGet, "/api/qc/runs?dataset=pbmc", "")
	if code != http.StatusOK {
		t.Fatalf("list: expected %d, got %d", http.StatusOK, code)
	}
	runs, _ := payload["runs"].([]any)
	if len(runs) != 1 {
		t.Errorf("list returned %d runs, want 1", len(runs))
	}

	code, _ = doJSON(t, router, http.MethodDelete, "/api/qc/runs/"+runID, "")
	if code != http.StatusOK {
		t.Fatalf("delete: expected %d, got %d", http.StatusOK, code)
	}
	code, _ = doJSON(t, router, http.MethodGet, "/api/qc/runs/"+runID, "")
	if code != http.StatusNotFound {
		t.Errorf("after delete: expected %d, got %d", http.StatusNotFound, code)
	}
}

func TestRunMissing(t *testing.T) {
	_, router := newTestRouter(t)

	code, _ := doJSON(t, router, http.MethodGet, "/api/qc/runs/does-not-exist", "")
	if code != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, code)
	}
}
