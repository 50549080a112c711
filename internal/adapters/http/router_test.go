package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/shipment-tariff-agent/internal/config"
	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
	"github.com/kirillkom/shipment-tariff-agent/internal/jobs"
	"github.com/kirillkom/shipment-tariff-agent/internal/observability/metrics"
)

type groupFake struct {
	err error
}

func (f groupFake) Group(_ context.Context, docs []domain.ExtractedDocument) ([]domain.ShipmentGroup, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.FileID)
	}
	return []domain.ShipmentGroup{{FileIDs: ids, Reason: "Invoice #INV-1"}}, nil
}

type enrichFake struct {
	mu     sync.Mutex
	err    error
	routes []domain.TradeRoute
	block  chan struct{}
}

func (f *enrichFake) Enrich(_ context.Context, shipment *domain.Shipment, route domain.TradeRoute) (domain.EnrichmentReport, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.routes = append(f.routes, route)
	f.mu.Unlock()
	if f.err != nil {
		return domain.EnrichmentReport{}, f.err
	}
	items := 0
	for bi := range shipment.Boxes {
		for ii := range shipment.Boxes[bi].Items {
			shipment.Boxes[bi].Items[ii].ImportCode = "8302.41.60"
			items++
		}
	}
	return domain.EnrichmentReport{TotalItems: items, ItemsApplied: items}, nil
}

const enrichBody = `{"shipment": {
	"receiver_address": {"country": "United States"},
	"shipment_boxes": [{"shipment_box_items": [{"description": "Brass Door Handle 24 pcs"}]}]
}}`

func TestHealthzEndpoint(t *testing.T) {
	handler := NewRouter(config.Config{}, groupFake{}, &enrichFake{}, nil, nil).Handler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestGroupEndpointReturnsGroups(t *testing.T) {
	handler := NewRouter(config.Config{}, groupFake{}, &enrichFake{}, nil, nil).Handler()
	body := `{"files": [{"id": "f1", "filename": "a.pdf", "file_type": "invoice"}, {"id": "f2", "filename": "b.pdf", "file_type": "packing_list"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/shipments/group", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp struct {
		Groups []domain.ShipmentGroup `json:"groups"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Groups) != 1 || len(resp.Groups[0].FileIDs) != 2 {
		t.Fatalf("unexpected groups: %+v", resp.Groups)
	}
}

func TestGroupEndpointEmptyInputReturnsEmptyList(t *testing.T) {
	handler := NewRouter(config.Config{}, groupFake{}, &enrichFake{}, nil, nil).Handler()
	req := httptest.NewRequest(http.MethodPost, "/v1/shipments/group", strings.NewReader(`{"files": []}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"groups":[]`) {
		t.Fatalf("expected empty groups array, got %s", res.Body.String())
	}
}

func TestGroupEndpointMapsInvalidInputTo400(t *testing.T) {
	handler := NewRouter(config.Config{}, groupFake{
		err: domain.WrapError(domain.ErrInvalidInput, "group", errors.New("document without id")),
	}, &enrichFake{}, nil, nil).Handler()
	req := httptest.NewRequest(http.MethodPost, "/v1/shipments/group", strings.NewReader(`{"files": [{"filename": "a.pdf"}]}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestEnrichEndpointResolvesRouteFromAddresses(t *testing.T) {
	enricher := &enrichFake{}
	handler := NewRouter(config.Config{}, groupFake{}, enricher, nil, nil).Handler()
	req := httptest.NewRequest(http.MethodPost, "/v1/shipments/enrich", strings.NewReader(enrichBody))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp domain.EnrichmentResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Route != (domain.TradeRoute{Destination: "US", Origin: "IN"}) {
		t.Fatalf("unexpected route %+v", resp.Route)
	}
	if resp.Shipment.Boxes[0].Items[0].ImportCode != "8302.41.60" {
		t.Fatalf("expected enriched item, got %+v", resp.Shipment.Boxes[0].Items[0])
	}
	if resp.Report.ItemsApplied != 1 {
		t.Fatalf("expected one applied item, got %+v", resp.Report)
	}
}

func TestEnrichEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed json", `{"shipment":`, nil, http.StatusBadRequest},
		{"missing shipment", `{}`, nil, http.StatusBadRequest},
		{"temporary", enrichBody, domain.WrapError(domain.ErrTemporary, "enrich", errors.New("cache down")), http.StatusServiceUnavailable},
		{"tariff credentials", enrichBody, domain.WrapError(domain.ErrUnauthorized, "gaia.classify", errors.New("401")), http.StatusBadGateway},
		{"deadline", enrichBody, fmt.Errorf("enrich: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unexpected", enrichBody, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		handler := NewRouter(config.Config{}, groupFake{}, &enrichFake{err: tc.err}, nil, nil).Handler()
		req := httptest.NewRequest(http.MethodPost, "/v1/shipments/enrich", strings.NewReader(tc.body))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, res.Code)
		}
	}
}

func TestEnrichmentJobLifecycle(t *testing.T) {
	enricher := &enrichFake{block: make(chan struct{})}
	registry := jobs.NewRegistry(time.Minute)
	handler := NewRouter(config.Config{}, groupFake{}, enricher, registry, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/enrichment-jobs", strings.NewReader(enrichBody))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	var started jobs.Job
	if err := json.Unmarshal(res.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if started.ID == "" || started.Status != jobs.StatusRunning {
		t.Fatalf("unexpected job %+v", started)
	}
	if res.Header().Get("Location") != "/v1/enrichment-jobs/"+started.ID {
		t.Fatalf("unexpected location %q", res.Header().Get("Location"))
	}

	pending := getJob(t, handler, started.ID)
	if pending.Code != http.StatusOK || !strings.Contains(pending.Body.String(), `"status":"running"`) {
		t.Fatalf("expected running job, got %d %s", pending.Code, pending.Body.String())
	}

	close(enricher.block)
	deadline := time.Now().Add(2 * time.Second)
	var final *httptest.ResponseRecorder
	for time.Now().Before(deadline) {
		final = getJob(t, handler, started.ID)
		if strings.Contains(final.Body.String(), `"status":"succeeded"`) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(final.Body.String(), `"status":"succeeded"`) {
		t.Fatalf("job did not finish: %s", final.Body.String())
	}
	if !strings.Contains(final.Body.String(), `"8302.41.60"`) {
		t.Fatalf("expected enriched shipment in result, got %s", final.Body.String())
	}

	gone := getJob(t, handler, started.ID)
	if gone.Code != http.StatusNotFound {
		t.Fatalf("expected delivered job to be removed, got %d", gone.Code)
	}
}

func TestEnrichmentJobUnknownIDReturns404(t *testing.T) {
	handler := NewRouter(config.Config{}, groupFake{}, &enrichFake{}, nil, nil).Handler()
	res := getJob(t, handler, "missing")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	handler := NewRouter(config.Config{}, groupFake{}, &enrichFake{}, nil, metrics.NewHTTPServerMetrics("api")).Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !bytes.Contains(res.Body.Bytes(), []byte("sta_http_requests_total")) {
		t.Fatalf("expected http request counter in metrics output")
	}
}

func getJob(t *testing.T, handler http.Handler, id string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/enrichment-jobs/"+id, nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}
