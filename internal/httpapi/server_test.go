package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Yuzori/l-Agence/internal/agency"
	"github.com/Yuzori/l-Agence/internal/realtime"
)

type errorEnvelope struct {
	OK    bool `json:"ok"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestErrorEnvelopeShape(t *testing.T) {
	hub := realtime.NewHub(realtime.Config{})
	ts := httptest.NewServer(newContractHandler(t, newMemoryBackend(t, hub), hub))
	defer ts.Close()
	c := ts.Client()

	resp := doJSON(t, c, http.MethodPost, ts.URL+"/api/contacts/request",
		map[string]any{"sender": "Omar", "recipient": "Omar"})
	blob := mustStatus(t, resp, 400)

	var env errorEnvelope
	decode(t, blob, &env)
	if env.OK {
		t.Fatalf("expected ok=false")
	}
	if env.Error.Code != agency.CodeInvalidInput || env.Error.Message == "" {
		t.Fatalf("unexpected error payload: %+v", env.Error)
	}
}

func TestInvalidJSONBodyRejected(t *testing.T) {
	hub := realtime.NewHub(realtime.Config{})
	ts := httptest.NewServer(newContractHandler(t, newMemoryBackend(t, hub), hub))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/contacts/request", bytes.NewReader([]byte("{broken")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	mustStatus(t, resp, 400)
}

func TestInvalidPathIDRejected(t *testing.T) {
	hub := realtime.NewHub(realtime.Config{})
	ts := httptest.NewServer(newContractHandler(t, newMemoryBackend(t, hub), hub))
	defer ts.Close()

	resp := doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/api/notifications/abc/read",
		map[string]any{"agentName": "Omar"})
	blob := mustStatus(t, resp, 400)
	var env errorEnvelope
	decode(t, blob, &env)
	if env.Error.Code != agency.CodeInvalidInput {
		t.Fatalf("code=%s want=%s", env.Error.Code, agency.CodeInvalidInput)
	}
}

func TestRequestIDHeaderStamped(t *testing.T) {
	hub := realtime.NewHub(realtime.Config{})
	ts := httptest.NewServer(newContractHandler(t, newMemoryBackend(t, hub), hub))
	defer ts.Close()

	resp := doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/api/agents", nil)
	mustStatus(t, resp, 200)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header on response")
	}

	// A caller-supplied id is echoed back.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/agents", nil)
	req.Header.Set("X-Request-ID", "caller-42")
	resp2, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	mustStatus(t, resp2, 200)
	if got := resp2.Header.Get("X-Request-ID"); got != "caller-42" {
		t.Fatalf("request id=%q want caller-42", got)
	}
}

func TestRateLimiterRejectsBursts(t *testing.T) {
	hub := realtime.NewHub(realtime.Config{})
	store := newMemoryBackend(t, hub)
	if err := store.SeedAgents([]agency.Agent{{Name: "Omar"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := NewServer(Options{
		Store:   store,
		Hub:     hub,
		RateRPS: 1,
		Burst:   2,
	})
	ts := httptest.NewServer(h)
	defer ts.Close()
	c := ts.Client()

	saw429 := false
	for i := 0; i < 10; i++ {
		resp := doJSON(t, c, http.MethodGet, ts.URL+"/api/notifications/Omar", nil)
		if resp.StatusCode == http.StatusTooManyRequests {
			var env errorEnvelope
			decode(t, mustStatus(t, resp, http.StatusTooManyRequests), &env)
			if env.Error.Code != "rate_limited" {
				t.Fatalf("code=%s want=rate_limited", env.Error.Code)
			}
			saw429 = true
			break
		}
		mustStatus(t, resp, 200)
	}
	if !saw429 {
		t.Fatalf("expected the burst to exhaust the bucket")
	}

	// Ops endpoints bypass the limiter.
	for i := 0; i < 5; i++ {
		mustStatus(t, doJSON(t, c, http.MethodGet, ts.URL+"/healthz", nil), 200)
	}
}

func TestRateLimiterKeyedPerAgent(t *testing.T) {
	hub := realtime.NewHub(realtime.Config{})
	store := newMemoryBackend(t, hub)
	if err := store.SeedAgents([]agency.Agent{{Name: "Omar"}, {Name: "Achraf"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := NewServer(Options{Store: store, Hub: hub, RateRPS: 1, Burst: 2})
	ts := httptest.NewServer(h)
	defer ts.Close()
	c := ts.Client()

	// Exhaust Omar's bucket.
	for i := 0; i < 5; i++ {
		resp := doJSON(t, c, http.MethodGet, ts.URL+"/api/notifications/Omar", nil)
		resp.Body.Close()
	}
	// Achraf's bucket is untouched.
	mustStatus(t, doJSON(t, c, http.MethodGet, ts.URL+"/api/notifications/Achraf", nil), 200)
}

type stubReviewer struct {
	verdict string
	reason  string
	calls   int
}

func (r *stubReviewer) ReviewDossier(_ context.Context, _ int64) (string, string, error) {
	r.calls++
	return r.verdict, r.reason, nil
}

func TestAdminReviewRequiresAdmin(t *testing.T) {
	hub := realtime.NewHub(realtime.Config{})
	store := newMemoryBackend(t, hub)
	if err := store.SeedAgents([]agency.Agent{{Name: "Omar"}, {Name: "Moderator"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	d, err := store.CreateDossier(agency.CreateDossierInput{Author: "Omar", Title: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	reviewer := &stubReviewer{verdict: "keep", reason: "fine"}
	h := NewServer(Options{
		Store:    store,
		Hub:      hub,
		Reviewer: reviewer,
		Admins:   []string{"Moderator"},
		RateRPS:  1000,
		Burst:    1000,
	})
	ts := httptest.NewServer(h)
	defer ts.Close()
	c := ts.Client()

	resp := doJSON(t, c, http.MethodPost, ts.URL+"/api/admin/dossiers/"+itoa(d.ID)+"/review",
		map[string]any{"agentName": "Omar"})
	mustStatus(t, resp, 403)
	if reviewer.calls != 0 {
		t.Fatalf("reviewer must not run for non-admins")
	}

	blob := mustStatus(t, doJSON(t, c, http.MethodPost, ts.URL+"/api/admin/dossiers/"+itoa(d.ID)+"/review",
		map[string]any{"agentName": "Moderator"}), 200)
	var reviewResp struct {
		OK      bool   `json:"ok"`
		Verdict string `json:"verdict"`
		Reason  string `json:"reason"`
	}
	decode(t, blob, &reviewResp)
	if !reviewResp.OK || reviewResp.Verdict != "keep" {
		t.Fatalf("unexpected review response: %+v", reviewResp)
	}
	if reviewer.calls != 1 {
		t.Fatalf("expected one reviewer call, got %d", reviewer.calls)
	}
}

type stubExporter struct {
	pdf []byte
}

func (e *stubExporter) RenderDossierPDF(_ context.Context, _ agency.Dossier) ([]byte, error) {
	return e.pdf, nil
}

func TestExportPDFEndpoint(t *testing.T) {
	hub := realtime.NewHub(realtime.Config{})
	store := newMemoryBackend(t, hub)
	if err := store.SeedAgents([]agency.Agent{{Name: "Omar"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	d, err := store.CreateDossier(agency.CreateDossierInput{Author: "Omar", Title: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h := NewServer(Options{
		Store:    store,
		Hub:      hub,
		Exporter: &stubExporter{pdf: []byte("%PDF-1.7 fake")},
		RateRPS:  1000,
		Burst:    1000,
	})
	ts := httptest.NewServer(h)
	defer ts.Close()

	resp := doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/api/dossiers/"+itoa(d.ID)+"/export.pdf", nil)
	blob := mustStatus(t, resp, 200)
	if resp.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("content-type=%q", resp.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(blob, []byte("%PDF")) {
		t.Fatalf("unexpected body: %q", blob)
	}

	// Unknown dossier surfaces before the renderer runs.
	mustStatus(t, doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/api/dossiers/999/export.pdf", nil), 404)
}

func TestHealthzReportsCounts(t *testing.T) {
	hub := realtime.NewHub(realtime.Config{})
	ts := httptest.NewServer(newContractHandler(t, newMemoryBackend(t, hub), hub))
	defer ts.Close()

	blob := mustStatus(t, doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/healthz", nil), 200)
	var health map[string]any
	if err := json.Unmarshal(blob, &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health["ok"] != true {
		t.Fatalf("expected ok=true, got %v", health)
	}
	if _, ok := health["agents"]; !ok {
		t.Fatalf("expected entity counts in health payload: %v", health)
	}
}
