package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	app "github.com/relaybridge/feed_registry/internal/app"
	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
)

const (
	testTransport = "relay-node"
	testOrigin    = "origin-deployment"
	testOperator  = "operator-secret"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{
		TrustedTransport: testTransport,
		AuthorizedOrigin: testOrigin,
	}, nil)
	if err != nil {
		t.Fatalf("build application: %v", err)
	}
	return NewHandler(application, testOperator)
}

func postJSON(t *testing.T, h http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func submitUpdate(t *testing.T, h http.Handler, feedID string, round int, updatedAt uint64) *httptest.ResponseRecorder {
	t.Helper()
	return postJSON(t, h, "/updates", map[string]any{
		"origin":          testOrigin,
		"feed_id":         feedID,
		"decimals":        8,
		"message_version": feed.ExpectedMessageVersion,
		"round_id":        fmt.Sprintf("%d", round),
		"answer":          "250000000000",
		"started_at":      updatedAt,
		"updated_at":      updatedAt,
	}, map[string]string{TransportHeader: testTransport})
}

func TestUpdates_CommitAndRead(t *testing.T) {
	h := newTestHandler(t)

	rec := submitUpdate(t, h, "BTC-USD", 1, 1700000000)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = get(t, h, "/feeds/BTC-USD/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var latest map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &latest); err != nil {
		t.Fatalf("decode latest: %v", err)
	}
	if latest["round_id"] != "1" || latest["answer"] != "250000000000" {
		t.Fatalf("unexpected latest round: %v", latest)
	}

	// The auto-registered record carries the sentinel description.
	rec = get(t, h, "/feeds/BTC-USD")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var record feed.Feed
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if record.Description != feed.AutoRegisteredDescription {
		t.Fatalf("expected auto-registered description, got %q", record.Description)
	}
}

func TestUpdates_UntrustedTransport(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(t, h, "/updates", map[string]any{
		"origin":          testOrigin,
		"feed_id":         "BTC-USD",
		"decimals":        8,
		"message_version": feed.ExpectedMessageVersion,
		"round_id":        "1",
		"answer":          "100",
		"updated_at":      1700000000,
	}, map[string]string{TransportHeader: "someone-else"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestUpdates_ReplayRejected(t *testing.T) {
	h := newTestHandler(t)

	if rec := submitUpdate(t, h, "ETH-USD", 5, 1700000000); rec.Code != http.StatusAccepted {
		t.Fatalf("first update: %d", rec.Code)
	}
	rec := submitUpdate(t, h, "ETH-USD", 5, 1700000100)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on replayed round, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdates_MalformedRound(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(t, h, "/updates", map[string]any{
		"origin":          testOrigin,
		"feed_id":         "BTC-USD",
		"decimals":        8,
		"message_version": feed.ExpectedMessageVersion,
		"round_id":        "not-a-number",
		"answer":          "100",
	}, map[string]string{TransportHeader: testTransport})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFeeds_OperatorAuth(t *testing.T) {
	h := newTestHandler(t)

	body := map[string]any{"id": "LINK-USD", "decimals": 8, "description": "LINK / USD"}

	rec := postJSON(t, h, "/feeds", body, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without operator key, got %d", rec.Code)
	}

	rec = postJSON(t, h, "/feeds", body, map[string]string{OperatorHeader: testOperator})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, h, "/feeds", body, map[string]string{OperatorHeader: testOperator})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", rec.Code)
	}
}

func TestFeeds_DisableBlocksUpdates(t *testing.T) {
	h := newTestHandler(t)

	if rec := submitUpdate(t, h, "BTC-USD", 1, 1700000000); rec.Code != http.StatusAccepted {
		t.Fatalf("seed update: %d", rec.Code)
	}

	rec := postJSON(t, h, "/feeds/BTC-USD/disable", nil, map[string]string{OperatorHeader: testOperator})
	if rec.Code != http.StatusOK {
		t.Fatalf("disable: %d: %s", rec.Code, rec.Body.String())
	}

	rec = submitUpdate(t, h, "BTC-USD", 2, 1700000100)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on disabled feed, got %d", rec.Code)
	}

	rec = postJSON(t, h, "/feeds/BTC-USD/enable", nil, map[string]string{OperatorHeader: testOperator})
	if rec.Code != http.StatusOK {
		t.Fatalf("enable: %d", rec.Code)
	}
	if rec = submitUpdate(t, h, "BTC-USD", 2, 1700000100); rec.Code != http.StatusAccepted {
		t.Fatalf("update after enable: %d", rec.Code)
	}
}

func TestReadSurface(t *testing.T) {
	h := newTestHandler(t)

	if rec := submitUpdate(t, h, "BTC-USD", 1, 1700000000); rec.Code != http.StatusAccepted {
		t.Fatalf("seed update: %d", rec.Code)
	}

	rec := get(t, h, "/feeds/BTC-USD/rounds/1")
	if rec.Code != http.StatusOK {
		t.Fatalf("round lookup: %d", rec.Code)
	}

	rec = get(t, h, "/feeds/BTC-USD/rounds/99")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing round, got %d", rec.Code)
	}

	rec = get(t, h, "/feeds/UNKNOWN/latest")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown feed, got %d", rec.Code)
	}

	rec = get(t, h, "/prices")
	if rec.Code != http.StatusOK {
		t.Fatalf("prices: %d", rec.Code)
	}
	var rows []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode prices: %v", err)
	}
	if len(rows) != 1 || rows[0]["feed_id"] != "BTC-USD" {
		t.Fatalf("unexpected price rows: %v", rows)
	}

	rec = get(t, h, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d", rec.Code)
	}
	var stats map[string]uint64
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["feeds"] != 1 || stats["total_global_updates"] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestAdmin_OriginRotation(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(t, h, "/admin/origin", map[string]string{"identity": "origin-v2"},
		map[string]string{OperatorHeader: testOperator})
	if rec.Code != http.StatusOK {
		t.Fatalf("rotate origin: %d: %s", rec.Code, rec.Body.String())
	}

	// Updates signed by the old origin are now refused.
	rec = submitUpdate(t, h, "BTC-USD", 1, 1700000000)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 after rotation, got %d", rec.Code)
	}
}

func TestAdmin_Treasury(t *testing.T) {
	h := newTestHandler(t)
	auth := map[string]string{OperatorHeader: testOperator}

	rec := postJSON(t, h, "/admin/treasury", map[string]uint64{"amount": 500}, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit: %d", rec.Code)
	}

	rec = postJSON(t, h, "/admin/treasury/withdraw", map[string]any{"amount": 200, "recipient": "ops"}, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw: %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]uint64
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode withdraw: %v", err)
	}
	if out["withdrawn"] != 200 {
		t.Fatalf("expected 200 withdrawn, got %d", out["withdrawn"])
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/treasury", nil)
	req.Header.Set(OperatorHeader, testOperator)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("balance: %d", w.Code)
	}
	var balance map[string]uint64
	if err := json.Unmarshal(w.Body.Bytes(), &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance["balance"] != 300 {
		t.Fatalf("expected balance 300, got %d", balance["balance"])
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t)
	rec := get(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}
