package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	apimw "github.com/hamed0406/tlsprober/internal/httpapi/middleware"
	"github.com/hamed0406/tlsprober/internal/probe"
	"github.com/hamed0406/tlsprober/internal/repo/memory"
)

// ---- test helpers ----

var testNotAfter = time.Date(2031, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeChecker struct {
	mu    sync.Mutex
	out   probe.Result
	calls int
}

func (f *fakeChecker) set(out probe.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = out
}

func (f *fakeChecker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeChecker) Check(_ context.Context, target string) probe.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := f.out
	if out.Host == "" {
		out.Host = target
	}
	return out
}

func validResult() probe.Result {
	return probe.Result{
		Status:    probe.StatusValid,
		Host:      "example.com",
		Port:      443,
		NotBefore: testNotAfter.AddDate(-1, 0, 0),
		NotAfter:  testNotAfter,
		LatencyMS: 12.5,
	}
}

func setupServer(t *testing.T, chk probe.Checker) *httptest.Server {
	t.Helper()
	store := memory.New()
	srv := NewServer(zap.NewNop(), store, store, chk)

	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}

	// very high rate limits to avoid flakiness in tests
	ts := httptest.NewServer(srv.Router(keys, nil, 10_000, 10_000, 10_000, 10_000))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, key string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// ---- tests ----

func TestAddTarget_OK_Duplicate_Invalid(t *testing.T) {
	chk := &fakeChecker{out: validResult()}
	ts := setupServer(t, chk)

	// 1) Add OK
	resp := do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", []byte(`{"target":"https://example.com/login"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}

	var addResp struct {
		Target struct {
			ID     string `json:"id"`
			Target string `json:"target"`
			Host   string `json:"host"`
			Port   int    `json:"port"`
		} `json:"target"`
		Summary struct {
			TargetID  string     `json:"target_id"`
			Status    string     `json:"status"`
			NotAfter  *time.Time `json:"not_after"`
			LatencyMS float64    `json:"latency_ms"`
		} `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&addResp); err != nil {
		t.Fatalf("decode add resp: %v", err)
	}
	if addResp.Summary.Status != "VALID" || addResp.Summary.NotAfter == nil || !addResp.Summary.NotAfter.Equal(testNotAfter) {
		t.Fatalf("unexpected summary: %+v", addResp.Summary)
	}
	if addResp.Target.Host != "example.com" || addResp.Target.Port != 443 || addResp.Target.ID != addResp.Summary.TargetID {
		t.Fatalf("unexpected target: %+v", addResp.Target)
	}
	if n := chk.callCount(); n != 1 {
		t.Fatalf("expected one immediate probe, got %d", n)
	}

	// 2) Same host:port in another spelling -> 409
	resp2 := do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", []byte(`{"url":"EXAMPLE.com:443"}`))
	if resp2.StatusCode != http.StatusConflict {
		t.Fatalf("want 409 on duplicate, got %d", resp2.StatusCode)
	}

	// 3) Invalid target -> 400
	for _, body := range []string{`{"target":"https://"}`, `{"target":"example.com:99999"}`, `not json`} {
		resp3 := do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", []byte(body))
		if resp3.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: want 400, got %d", body, resp3.StatusCode)
		}
	}

	// 4) Public key cannot add
	resp4 := do(t, http.MethodPost, ts.URL+"/api/targets", "pub_test", []byte(`{"target":"other.example"}`))
	if resp4.StatusCode != http.StatusForbidden {
		t.Fatalf("want 403 for public key, got %d", resp4.StatusCode)
	}
}

func TestListAndLatest(t *testing.T) {
	chk := &fakeChecker{out: probe.Result{Status: probe.StatusFailed, Reason: "connect failed: dial tcp: i/o timeout"}}
	ts := setupServer(t, chk)

	if resp := do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", []byte(`{"target":"down.example"}`)); resp.StatusCode != 200 {
		t.Fatalf("add failed: %d", resp.StatusCode)
	}

	// list (public)
	respL := do(t, http.MethodGet, ts.URL+"/api/targets", "pub_test", nil)
	if respL.StatusCode != 200 {
		t.Fatalf("want 200 list, got %d", respL.StatusCode)
	}
	var list []struct {
		ID     string `json:"id"`
		Target string `json:"target"`
	}
	if err := json.NewDecoder(respL.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].Target != "down.example" {
		t.Fatalf("unexpected list: %+v", list)
	}

	// latest (public)
	respLt := do(t, http.MethodGet, ts.URL+"/api/results/latest", "pub_test", nil)
	if respLt.StatusCode != 200 {
		t.Fatalf("want 200 latest, got %d", respLt.StatusCode)
	}
	var latest []map[string]any
	if err := json.NewDecoder(respLt.Body).Decode(&latest); err != nil {
		t.Fatalf("decode latest: %v", err)
	}
	if len(latest) != 1 {
		t.Fatalf("expected one latest row, got %d", len(latest))
	}
	if latest[0]["status"] != "FAILED" || latest[0]["reason"] != "connect failed: dial tcp: i/o timeout" {
		t.Fatalf("unexpected latest row: %v", latest[0])
	}
	if _, ok := latest[0]["not_after"]; ok {
		t.Fatalf("FAILED rows carry no expiry: %v", latest[0])
	}

	// no key -> 401
	if resp := do(t, http.MethodGet, ts.URL+"/api/targets", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401 without key, got %d", resp.StatusCode)
	}
}

func TestProbeAndVerify(t *testing.T) {
	chk := &fakeChecker{out: validResult()}
	ts := setupServer(t, chk)

	resp := do(t, http.MethodGet, ts.URL+"/api/probe?target=example.com", "pub_test", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var res probe.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Status != probe.StatusValid || !res.NotAfter.Equal(testNotAfter) {
		t.Fatalf("unexpected probe result: %+v", res)
	}

	respV := do(t, http.MethodGet, ts.URL+"/api/verify?target=https://example.com/api", "pub_test", nil)
	var v verifyResponse
	if err := json.NewDecoder(respV.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if !v.Verify || v.Target != "https://example.com/api" {
		t.Fatalf("unexpected verify response: %+v", v)
	}

	chk.set(probe.Result{Status: probe.StatusSkipped, Reason: "loopback host"})
	respV2 := do(t, http.MethodGet, ts.URL+"/api/verify?target=localhost", "pub_test", nil)
	var v2 verifyResponse
	if err := json.NewDecoder(respV2.Body).Decode(&v2); err != nil {
		t.Fatal(err)
	}
	if v2.Verify || v2.Result.Status != probe.StatusSkipped {
		t.Fatalf("loopback should not verify: %+v", v2)
	}

	if resp := do(t, http.MethodGet, ts.URL+"/api/probe", "pub_test", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 without target, got %d", resp.StatusCode)
	}
}
