package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"terminal-core/internal/events"
	"terminal-core/internal/monitor"
	"terminal-core/internal/pool"
	"terminal-core/internal/registry"
	"terminal-core/internal/scheduler"
	"terminal-core/internal/terminal"
	"terminal-core/pkg/bridge"
	"terminal-core/pkg/db"
)

type noopSession struct{}

func (noopSession) GetPositions(context.Context, string) ([]bridge.Position, error) {
	return nil, nil
}
func (noopSession) GetQuote(ctx context.Context, symbol string) (*bridge.Quote, error) {
	return &bridge.Quote{Symbol: symbol, Bid: 1, Ask: 1}, nil
}
func (noopSession) SubmitOrder(context.Context, bridge.OrderRequest) (*bridge.OrderResult, error) {
	return &bridge.OrderResult{OrderID: "o-1", Status: "FILLED"}, nil
}
func (noopSession) GetAccountInfo(context.Context) (*bridge.AccountInfo, error) {
	return &bridge.AccountInfo{Balance: 1000, Equity: 1000}, nil
}
func (noopSession) Close() error { return nil }

type testCreds struct{}

func (testCreds) Credentials(accountID string) (bridge.Credentials, error) {
	return bridge.Credentials{Login: 1, Server: "test"}, nil
}

func newTestAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	bus := events.NewBus()
	metrics := monitor.NewMetrics()

	connect := func(ctx context.Context, isolationPath string, creds bridge.Credentials) (terminal.Session, error) {
		return noopSession{}, nil
	}
	poolMgr := pool.NewManager(t.TempDir(), time.Second, connect, testCreds{}, bus)

	sources := []registry.Source{
		registry.NewSessionSource(database),
		registry.NewWorkerSource(poolMgr),
	}
	runners := map[registry.Namespace]scheduler.PassFunc{
		registry.NamespaceSession: func(ctx context.Context, ref registry.AccountRef) error { return nil },
		registry.NamespaceWorker:  func(ctx context.Context, ref registry.AccountRef) error { return nil },
	}
	sched := scheduler.New(time.Minute, 8, sources, runners, bus, metrics)

	server := NewServer(bus, database, poolMgr, sched, metrics, SystemMeta{
		DryRun:  true,
		Version: "test",
	}, "test-secret")

	httpServer := httptest.NewServer(server.Router)
	t.Cleanup(httpServer.Close)
	return httpServer
}

func doJSON(t *testing.T, method, url, token string, payload any, out any) int {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func loginToken(t *testing.T, base string) string {
	t.Helper()
	creds := map[string]string{"email": "op@example.com", "password": "hunter22"}

	if code := doJSON(t, http.MethodPost, base+"/api/auth/register", "", creds, nil); code != http.StatusCreated {
		t.Fatalf("register status=%d", code)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	if code := doJSON(t, http.MethodPost, base+"/api/auth/login", "", creds, &loginResp); code != http.StatusOK {
		t.Fatalf("login status=%d", code)
	}
	if loginResp.Token == "" {
		t.Fatal("login returned empty token")
	}
	return loginResp.Token
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestAPIServer(t)
	if code := doJSON(t, http.MethodGet, srv.URL+"/health", "", nil, nil); code != http.StatusOK {
		t.Fatalf("health status=%d", code)
	}
}

func TestSchedulerStatusIsPublic(t *testing.T) {
	srv := newTestAPIServer(t)

	var status scheduler.Status
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/scheduler/status", "", nil, &status); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if status.IsRunning {
		t.Fatal("scheduler reported running without Start")
	}
	if status.SessionBasedAccountCount != 0 || status.WorkerBasedAccountCount != 0 {
		t.Fatalf("unexpected counts: %+v", status)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestAPIServer(t)

	for _, url := range []string{
		srv.URL + "/api/workers",
		srv.URL + "/api/sessions",
		srv.URL + "/api/cycles",
		srv.URL + "/api/orders",
	} {
		if code := doJSON(t, http.MethodGet, url, "", nil, nil); code != http.StatusUnauthorized {
			t.Fatalf("%s without token: status=%d, expected 401", url, code)
		}
	}

	if code := doJSON(t, http.MethodGet, srv.URL+"/api/workers", "not-a-token", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("bogus token accepted: status=%d", code)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	srv := newTestAPIServer(t)
	creds := map[string]string{"email": "op@example.com", "password": "hunter22"}

	if code := doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", "", creds, nil); code != http.StatusCreated {
		t.Fatalf("first register status=%d", code)
	}
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", "", creds, nil); code != http.StatusConflict {
		t.Fatalf("duplicate register status=%d, expected 409", code)
	}
}

func TestWorkerLifecycleOverAPI(t *testing.T) {
	srv := newTestAPIServer(t)
	token := loginToken(t, srv.URL)

	var view workerView
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/workers/alpha/start", token, nil, &view); code != http.StatusCreated {
		t.Fatalf("start status=%d", code)
	}
	if view.AccountID != "alpha" || view.State != "RUNNING" {
		t.Fatalf("worker view=%+v", view)
	}

	if code := doJSON(t, http.MethodPost, srv.URL+"/api/workers/alpha/start", token, nil, nil); code != http.StatusConflict {
		t.Fatalf("double start status=%d, expected 409", code)
	}

	var list struct {
		Count   int          `json:"count"`
		Workers []workerView `json:"workers"`
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/workers", token, nil, &list); code != http.StatusOK {
		t.Fatalf("list status=%d", code)
	}
	if list.Count != 1 || list.Workers[0].AccountID != "alpha" {
		t.Fatalf("worker list=%+v", list)
	}

	if code := doJSON(t, http.MethodPost, srv.URL+"/api/workers/alpha/stop", token, nil, nil); code != http.StatusOK {
		t.Fatalf("stop status=%d", code)
	}
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/workers/alpha/stop", token, nil, nil); code != http.StatusNotFound {
		t.Fatalf("double stop status=%d, expected 404", code)
	}
}

func TestManualCycleAndHistory(t *testing.T) {
	srv := newTestAPIServer(t)
	token := loginToken(t, srv.URL)

	var record scheduler.CycleRecord
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/cycles/run", token, nil, &record); code != http.StatusOK {
		t.Fatalf("run cycle status=%d", code)
	}

	var history struct {
		Count int `json:"count"`
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/cycles", token, nil, &history); code != http.StatusOK {
		t.Fatalf("history status=%d", code)
	}
	if history.Count < 1 {
		t.Fatalf("history count=%d, expected at least the manual cycle", history.Count)
	}
}

func TestListOrdersEmpty(t *testing.T) {
	srv := newTestAPIServer(t)
	token := loginToken(t, srv.URL)

	var resp struct {
		Count int `json:"count"`
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/orders?limit=10", token, nil, &resp); code != http.StatusOK {
		t.Fatalf("orders status=%d", code)
	}
	if resp.Count != 0 {
		t.Fatalf("orders count=%d, expected 0", resp.Count)
	}
}
