package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parleylabs/parley/internal/llm"
	"github.com/parleylabs/parley/internal/orchestrator"
	"github.com/parleylabs/parley/internal/scenario"
	"github.com/parleylabs/parley/internal/state"
)

func parseScenario() (*scenario.Scenario, error) {
	return scenario.Parse([]byte(testScenario))
}

const testScenario = `
name: valve-procurement
max_rounds: 2
reference_id: cp-ref
baseline:
  - sku: VLV-100
    description: Control valve
    quantity: 100
    unit_price: 500
  - sku: PMP-200
    description: Booster pump
    quantity: 50
    unit_price: 400
counterparties:
  - id: cp-ref
    name: Meridian Flow
    code: MERID
    quality_rating: 4
    price_tier: mid
    lead_time_days: 30
    payment_terms: Net 30
    is_simulated: true
  - id: cp-alt
    name: Coastal Industrial
    code: COAST
    quality_rating: 3
    price_tier: cheap
    lead_time_days: 45
    payment_terms: Net 60
    is_simulated: true
`

// stubCompleter answers every model call the negotiation makes by
// inspecting the system prompt.
type stubCompleter struct {
	mu    sync.Mutex
	calls int
}

func (s *stubCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	switch {
	case strings.Contains(req.System, "extract structured purchase offers"):
		return `{"total_cost": 66000, "items": [
			{"sku": "VLV-100", "unit_price": 480, "quantity": 100},
			{"sku": "PMP-200", "unit_price": 360, "quantity": 50}],
			"lead_time_days": 30, "payment_terms": "Net 30"}`, nil
	case strings.Contains(req.System, "procurement decision analyst"):
		return `{"scores": [
			{"counterparty_id": "cp-ref", "cost": 75, "quality": 80, "lead_time": 70, "terms": 65},
			{"counterparty_id": "cp-alt", "cost": 85, "quality": 60, "lead_time": 60, "terms": 80}],
			"recommendation": {"primary": "cp-ref", "split_order": false,
				"allocations": [{"counterparty_id": "cp-ref", "percent": 100}]},
			"summary": "Award to the reference counterparty.",
			"key_points": {}, "reasoning": "r", "tradeoffs": "t"}`, nil
	default:
		return "We hold at $66,000 with the stated terms.", nil
	}
}

func newTestServer(t *testing.T) (*Server, *Manager) {
	t.Helper()
	store := state.NewMemoryStore()
	manager := NewManager(store, &stubCompleter{}, Defaults{})
	return New(manager, store), manager
}

func waitForRun(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("negotiation did not finish")
	}
}

func TestStartAndFetchDecision(t *testing.T) {
	server, manager := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/negotiations", strings.NewReader(testScenario))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body.String())
	}
	var started struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil || started.ID == "" {
		t.Fatalf("start body = %s (%v)", rec.Body.String(), err)
	}
	id := started.ID

	run, ok := manager.Get(id)
	if !ok {
		t.Fatalf("manager does not know run %s", id)
	}
	waitForRun(t, run)
	if err := run.Err(); err != nil {
		t.Fatalf("negotiation failed: %v", err)
	}

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/negotiations/"+id+"/decision", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("decision status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"cp-ref"`) {
		t.Errorf("decision body missing primary: %s", rec.Body.String())
	}

	// Idempotent re-fetch.
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/negotiations/"+id+"/decision", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("repeat decision status = %d", rec.Code)
	}
}

func TestStartRejectsInvalidScenario(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/negotiations", strings.NewReader("name: broken\n"))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestDecisionUnknownNegotiation(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/negotiations/nope/decision", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestEventsUnknownNegotiation(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/negotiations/nope/events", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestEventsStreamReplaysFinishedRun(t *testing.T) {
	server, manager := newTestServer(t)

	start := httptest.NewRequest(http.MethodPost, "/api/negotiations", strings.NewReader(testScenario))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, start)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d", rec.Code)
	}

	var started struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("start body = %s", rec.Body.String())
	}
	run, ok := manager.Get(started.ID)
	if !ok {
		t.Fatalf("manager does not know run %s", started.ID)
	}
	waitForRun(t, run)

	// A late subscriber sees the full replayed stream and a terminal
	// done message.
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/negotiations/"+run.ID+"/events", nil))

	body := rec.Body.String()
	for _, want := range []string{`"connected"`, string(orchestrator.EventRoundStart), string(orchestrator.EventDecision), `"done"`} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %s:\n%s", want, body)
		}
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestSubscriberHistoryReplay(t *testing.T) {
	store := state.NewMemoryStore()
	manager := NewManager(store, &stubCompleter{}, Defaults{MaxRounds: 2})

	scn, err := parseScenario()
	if err != nil {
		t.Fatalf("scenario: %v", err)
	}
	run, err := manager.Start(scn)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForRun(t, run)

	events, cancel := run.Subscribe()
	defer cancel()

	var sawDecision bool
	for {
		select {
		case event := <-events:
			if event.Type == orchestrator.EventDecision {
				sawDecision = true
			}
			continue
		default:
		}
		break
	}
	if !sawDecision {
		t.Error("replayed history missing decision event")
	}
}
