package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"brewboard/internal/config"
	"brewboard/internal/db"
	"brewboard/internal/engine"
	"brewboard/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	if err := e.EnsureAdmin(context.Background(), "boss"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			TokenTTLSeconds:        3600,
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asActor(actorID string) map[string]string {
	return map[string]string{"X-Actor-Id": actorID}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error body %s: %v", string(data), err)
	}
	return envelope.Error.Code
}

func TestRewardFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":       "Coffee run",
		"description": "two flat whites",
		"reward":      40,
		"category":    "coffee",
	}, asActor("boss"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add task status %d: %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/users/register", map[string]any{
		"username": "Alice",
	}, asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/1/completions", nil, asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/1/completions/alice/approve", nil, asActor("boss"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}
	var approved CompletionResponse
	if err := json.Unmarshal(data, &approved); err != nil {
		t.Fatalf("unmarshal completion: %v", err)
	}
	if !approved.Approved || approved.ApprovedBy == nil || *approved.ApprovedBy != "boss" {
		t.Fatalf("unexpected approval: %+v", approved)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me/balance", nil, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("balance status %d: %s", res.StatusCode, string(data))
	}
	var balance BalanceResponse
	if err := json.Unmarshal(data, &balance); err != nil {
		t.Fatalf("unmarshal balance: %v", err)
	}
	if balance.Balance != task.Reward {
		t.Fatalf("expected balance %d, got %d", task.Reward, balance.Balance)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// unregistered caller reading a balance
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/me/balance", nil, asActor("ghost"))
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "unauthenticated" {
		t.Fatalf("unregistered balance: %d %s", res.StatusCode, string(data))
	}

	// non-admin adding a task
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/users/register", map[string]any{"username": "Bob"}, asActor("bob"))
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title": "x", "description": "y", "reward": 1, "category": "tea",
	}, asActor("bob"))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("non-admin add task: %d %s", res.StatusCode, string(data))
	}

	// username over the 32-character cap is rejected at the schema
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/users/register", map[string]any{
		"username": strings.Repeat("x", 33),
	}, asActor("carol"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("overlong username: %d %s", res.StatusCode, string(data))
	}

	// missing task
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/9999", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task: %d", res.StatusCode)
	}

	// duplicate registration
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/users/register", map[string]any{"username": "Bob"}, asActor("bob"))
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "already_registered" {
		t.Fatalf("duplicate register: %d %s", res.StatusCode, string(data))
	}

	// withdrawal over balance
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/withdrawals", map[string]any{"amount": 100}, asActor("bob"))
	if res.StatusCode != http.StatusUnprocessableEntity || errorCode(t, data) != "invalid_amount" {
		t.Fatalf("withdrawal over balance: %d %s", res.StatusCode, string(data))
	}
}

func TestPublicRoutes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// anonymous task browsing
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("anonymous task list: %d %s", res.StatusCode, string(data))
	}

	// anonymous contact form
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/contact", map[string]any{
		"name":    "Visitor",
		"message": "The kettle leaks",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("anonymous contact: %d %s", res.StatusCode, string(data))
	}

	// everything else wants credentials
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous /me: %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res.StatusCode)
	}
}

func TestBoardStatusEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	for _, title := range []string{"One", "Two"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
			"title": title, "description": "see title", "reward": 5, "category": "tea",
		}, asActor("boss"))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("add task: %d %s", res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/status", nil, asActor("boss"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status: %d %s", res.StatusCode, string(data))
	}
	var status struct {
		TaskCounts map[string]int `json:"task_counts"`
		TotalTasks int            `json:"total_tasks"`
	}
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.TotalTasks != 2 || status.TaskCounts["available"] != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/status", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status: %d", res.StatusCode)
	}
}

func TestJWTLogin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "alice",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("unmarshal token: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with token: %d %s", res.StatusCode, string(data))
	}
	var me MeResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ActorID != "alice" || me.Source != "jwt" {
		t.Fatalf("unexpected principal: %+v", me)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: %d", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{
		"actor_id": "bot",
		"name":     "ci",
	}, asActor("boss"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key: %d %s", res.StatusCode, string(data))
	}
	var created APIKeyResponse
	if err := json.Unmarshal(data, &created); err != nil || created.Key == "" {
		t.Fatalf("plaintext key missing: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"X-Api-Key": created.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with api key: %d %s", res.StatusCode, string(data))
	}
	var me MeResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ActorID != "bot" || me.Source != "api_key" {
		t.Fatalf("unexpected principal: %+v", me)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"X-Api-Key": "bb_bogus",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bogus key: %d", res.StatusCode)
	}
}
