package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dexgrad/internal/config"
)

const registryBody = `{"success":true,"data":{"rows":[{"broker_id":"woofi_pro"},{"broker_id":"MyEx"},{"broker_id":""}]}}`

func newTestRegistry(t *testing.T, handler http.HandlerFunc, ttl time.Duration) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.RegistryConfig{URL: server.URL, CacheTTL: ttl, Timeout: time.Second}, server.Client())
}

func TestClient_ListBrokerIDs(t *testing.T) {
	c := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(registryBody))
	}, time.Minute)

	ids, err := c.ListBrokerIDs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "myex" || ids[1] != "woofi_pro" {
		t.Errorf("ListBrokerIDs() = %v", ids)
	}
}

func TestClient_Contains(t *testing.T) {
	c := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(registryBody))
	}, time.Minute)

	tests := []struct {
		id   string
		want bool
	}{
		{"myex", true},
		{"MYEX", true},
		{"woofi_pro", true},
		{"freshid", false},
	}
	for _, tt := range tests {
		got, err := c.Contains(context.Background(), tt.id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestClient_CachesAndCollapsesRequests(t *testing.T) {
	var calls atomic.Int32
	c := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(registryBody))
	}, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Contains(context.Background(), "myex"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := c.Contains(context.Background(), "myex"); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected a single registry request, got %d", n)
	}

	c.Invalidate()
	if _, err := c.Contains(context.Background(), "myex"); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("Invalidate should force refetch, calls = %d", n)
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"HTTP 500", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"success=false", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"success":false}`)) }},
		{"битый JSON", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[`)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestRegistry(t, tt.handler, time.Minute)
			if _, err := c.Contains(context.Background(), "myex"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestClient_Disabled(t *testing.T) {
	c := NewClient(config.RegistryConfig{}, nil)
	if c.Enabled() {
		t.Error("client without URL should be disabled")
	}
	taken, err := c.Contains(context.Background(), "myex")
	if err != nil || taken {
		t.Errorf("disabled registry: Contains() = %v, %v", taken, err)
	}
}
