package api

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/open-rover/controller/pkg/command"
	"github.com/open-rover/controller/pkg/log"
	"github.com/open-rover/controller/pkg/nav"
	"github.com/open-rover/controller/pkg/state"
	"github.com/open-rover/controller/pkg/supervisor"
)

type fakeStatus struct {
	status supervisor.Status
}

func (f *fakeStatus) Status() supervisor.Status { return f.status }

type fakeSystem struct {
	mu   sync.Mutex
	cmds []command.SystemCommand
}

func (f *fakeSystem) HandleSystemCommand(cmd command.SystemCommand) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
}

type fakePlanner struct {
	mu    sync.Mutex
	plans [][]nav.Command
}

func (f *fakePlanner) RunPlan(plan []nav.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, plan)
}

func newTestApp(t *testing.T) (*fiber.App, *state.Store, *fakeSystem, *fakePlanner) {
	t.Helper()
	app := fiber.New()
	store := state.NewStore()
	status := &fakeStatus{status: supervisor.Status{State: "running"}}
	system := &fakeSystem{}
	planner := &fakePlanner{}
	RegisterRoverRoutes(app, store, status, system, planner, nav.DefaultConfig(), log.NewTestLogger())
	return app, store, system, planner
}

func decodeBody(t *testing.T, body io.Reader, out interface{}) {
	t.Helper()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("failed to decode response %q: %v", data, err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	app, _, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	app, _, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var got supervisor.Status
	decodeBody(t, resp.Body, &got)
	if got.State != "running" {
		t.Errorf("expected state running, got %s", got.State)
	}
}

func TestSensorsEndpoint(t *testing.T) {
	app, store, _, _ := newTestApp(t)
	store.SetDistance(state.SensorFront, 42.5)
	store.SetBlocked(state.BlockedFlags{ForwardBlocked: true})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/sensors", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var snap state.Snapshot
	decodeBody(t, resp.Body, &snap)
	if snap.FrontCm != 42.5 {
		t.Errorf("expected front distance 42.5, got %v", snap.FrontCm)
	}
	if !snap.ForwardBlocked {
		t.Error("expected forward_blocked true")
	}
}

func TestObservationEndpointRunsPlan(t *testing.T) {
	app, _, _, planner := newTestApp(t)

	body := `{"direction":"Centered","distance_mm":1200,"pitch_deg":0}`
	req := httptest.NewRequest("POST", "/api/navigation/observation", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var got struct {
		Plan []string `json:"plan"`
	}
	decodeBody(t, resp.Body, &got)
	if len(got.Plan) != 1 || got.Plan[0] != "forward" {
		t.Errorf("expected plan [forward], got %v", got.Plan)
	}

	planner.mu.Lock()
	defer planner.mu.Unlock()
	if len(planner.plans) != 1 {
		t.Fatalf("expected 1 executed plan, got %d", len(planner.plans))
	}
	if len(planner.plans[0]) != 1 || planner.plans[0][0] != nav.Forward {
		t.Errorf("unexpected executed plan: %v", planner.plans[0])
	}
}

func TestObservationEndpointMissingDataWaits(t *testing.T) {
	app, _, _, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/navigation/observation", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var got struct {
		Plan []string `json:"plan"`
	}
	decodeBody(t, resp.Body, &got)
	if len(got.Plan) != 1 || got.Plan[0] != "wait" {
		t.Errorf("expected plan [wait], got %v", got.Plan)
	}
}

func TestObservationEndpointBadPayload(t *testing.T) {
	app, _, _, planner := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/navigation/observation", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	planner.mu.Lock()
	defer planner.mu.Unlock()
	if len(planner.plans) != 0 {
		t.Error("bad payload must not execute a plan")
	}
}

func TestSystemEndpoint(t *testing.T) {
	app, _, system, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/system", strings.NewReader(`{"type":"videocall_on","callId":"call-9"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Errorf("expected 202, got %d", resp.StatusCode)
	}
	system.mu.Lock()
	defer system.mu.Unlock()
	if len(system.cmds) != 1 || system.cmds[0].Type != command.SystemVideocallOn || system.cmds[0].CallID != "call-9" {
		t.Errorf("unexpected forwarded commands: %+v", system.cmds)
	}
}

func TestSystemEndpointRejectsUnknown(t *testing.T) {
	app, _, system, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/system", strings.NewReader(`{"type":"self_destruct"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	system.mu.Lock()
	defer system.mu.Unlock()
	if len(system.cmds) != 0 {
		t.Error("unknown command must not be forwarded")
	}
}
