package imageio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/dcengine/internal/platform/logger"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
}

func newServer(t *testing.T, status func(n int32) int) (*httptest.Server, func() []recorded) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recorded
		n     atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path}
		if r.ContentLength > 0 {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		mu.Lock()
		calls = append(calls, rec)
		mu.Unlock()
		w.WriteHeader(status(n.Add(1)))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), calls...)
	}
}

func TestTicketLifecycle(t *testing.T) {
	srv, calls := newServer(t, func(int32) int { return http.StatusOK })
	agent, err := New(logger.Nop(), Config{BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := agent.AddTicket(ctx, Ticket{UUID: "t1", Size: 1024, URL: "file:///images/x", Timeout: 300, Ops: []string{"write"}}); err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	if err := agent.ExtendTicket(ctx, "t1", 5*time.Minute); err != nil {
		t.Fatalf("ExtendTicket: %v", err)
	}
	if err := agent.RemoveTicket(ctx, "t1"); err != nil {
		t.Fatalf("RemoveTicket: %v", err)
	}

	got := calls()
	want := []struct{ method, path string }{
		{http.MethodPut, "/tickets/t1"},
		{http.MethodPatch, "/tickets/t1"},
		{http.MethodDelete, "/tickets/t1"},
	}
	if len(got) != len(want) {
		t.Fatalf("calls: want %d got=%d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].method != w.method || got[i].path != w.path {
			t.Fatalf("call %d: want %s %s got=%s %s", i, w.method, w.path, got[i].method, got[i].path)
		}
	}
	if got[0].body["size"] != float64(1024) {
		t.Fatalf("add body: %v", got[0].body)
	}
	if got[1].body["timeout"] != float64(300) {
		t.Fatalf("extend body: %v", got[1].body)
	}
}

func TestRetriesUnavailable(t *testing.T) {
	srv, calls := newServer(t, func(n int32) int {
		if n < 3 {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	})
	agent, err := New(logger.Nop(), Config{BaseURL: srv.URL, MaxRetries: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := agent.ExtendTicket(context.Background(), "t2", time.Minute); err != nil {
		t.Fatalf("ExtendTicket: %v", err)
	}
	if n := len(calls()); n != 3 {
		t.Fatalf("attempts: want 3 got=%d", n)
	}
}

func TestClientErrorsAreFinal(t *testing.T) {
	srv, calls := newServer(t, func(int32) int { return http.StatusBadRequest })
	agent, _ := New(logger.Nop(), Config{BaseURL: srv.URL, MaxRetries: 3})
	err := agent.AddTicket(context.Background(), Ticket{UUID: "t3"})
	he, ok := err.(*HTTPError)
	if !ok || he.StatusCode != http.StatusBadRequest {
		t.Fatalf("want HTTPError 400 got=%v", err)
	}
	if n := len(calls()); n != 1 {
		t.Fatalf("attempts: want 1 got=%d", n)
	}
}

func TestRemoveMissingTicket(t *testing.T) {
	srv, _ := newServer(t, func(int32) int { return http.StatusNotFound })
	agent, _ := New(logger.Nop(), Config{BaseURL: srv.URL})
	if err := agent.RemoveTicket(context.Background(), "gone"); err != nil {
		t.Fatalf("RemoveTicket of missing ticket: %v", err)
	}
}
