package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/roadops/operator-console/internal/console"
)

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
	if c.httpClient == nil {
		t.Error("httpClient is nil")
	}
}

func TestClient_AgainstServer(t *testing.T) {
	s, _ := newTestServer(t)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	c := NewClient(server.URL)
	if err := c.Healthcheck(); err != nil {
		t.Fatalf("healthcheck failed: %v", err)
	}

	st, err := c.Status()
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if st.Session.Scenario != console.ScenarioStuck {
		t.Errorf("expected scenario stuck, got %s", st.Session.Scenario)
	}
	if st.PathPoints != 4 {
		t.Errorf("expected 4 path points, got %d", st.PathPoints)
	}

	raw, err := c.Command(console.CmdPathSubmit)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !strings.Contains(string(raw), `"status":"submitted"`) {
		t.Errorf("expected submitted proposal, got %s", raw)
	}

	_, err = c.Command(console.CmdPathSubmit)
	if err == nil || !strings.Contains(err.Error(), "status 409") {
		t.Errorf("expected 409 on second submit, got %v", err)
	}
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewClient(server.URL).Healthcheck()
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("expected status code in error, got: %v", err)
	}
}

func TestHealthcheck_Unreachable(t *testing.T) {
	err := NewClient("http://127.0.0.1:1").Healthcheck()
	if err == nil {
		t.Fatal("expected error for unreachable server")
	}
}

func TestStatus_BadBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Status()
	if err == nil || !strings.Contains(err.Error(), "failed to decode response") {
		t.Errorf("expected decode error, got %v", err)
	}
}
