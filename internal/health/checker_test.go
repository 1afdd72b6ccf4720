package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestChecker_ProbeHealthyEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewChecker(map[string]string{"read_rpc": srv.URL}, time.Hour)
	c.check()

	statuses := c.GetStatuses()
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	if !statuses[0].Healthy {
		t.Errorf("expected endpoint to be healthy, got error %q", statuses[0].Error)
	}
}

func TestChecker_ProbeUnreachableEndpoint(t *testing.T) {
	c := NewChecker(map[string]string{"read_rpc": "http://127.0.0.1:1"}, time.Hour)
	c.check()

	statuses := c.GetStatuses()
	if len(statuses) != 1 || statuses[0].Healthy {
		t.Fatalf("expected unreachable endpoint to be unhealthy, got %+v", statuses)
	}
}

func TestChecker_StartRunsUntilCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewChecker(map[string]string{"read_rpc": srv.URL}, 10*time.Millisecond)
	c.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()

	statuses := c.GetStatuses()
	if len(statuses) != 1 || !statuses[0].Healthy {
		t.Fatalf("expected at least one healthy probe recorded, got %+v", statuses)
	}
}
