package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"dexgrad/internal/deploy"
	"dexgrad/internal/service"
)

// ============ AdminHandler Tests ============

func TestAdminHandler_ApproveAccount(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		approveErr error
		wantStatus int
	}{
		{name: "successfully approves", id: "7", wantStatus: http.StatusOK},
		{name: "rejects non numeric id", id: "abc", wantStatus: http.StatusBadRequest},
		{name: "rejects zero id", id: "0", wantStatus: http.StatusBadRequest},
		{
			name:       "returns 404 for unknown account",
			id:         "404",
			approveErr: &service.Error{Code: service.CodeNotFound, Message: "Not found"},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "returns 409 when not pending",
			id:         "7",
			approveErr: &service.Error{Code: service.CodeInvalidStateTransition, Message: "Graduation state does not allow this operation"},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := NewMockGraduationService()
			mockSvc.approveErr = tt.approveErr
			handler := NewAdminHandler(mockSvc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/accounts/"+tt.id+"/approve", nil)
			req = mux.SetURLVars(req, map[string]string{"id": tt.id})
			w := httptest.NewRecorder()

			handler.ApproveAccount(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantStatus == http.StatusOK && (len(mockSvc.approved) != 1 || mockSvc.approved[0] != 7) {
				t.Errorf("unexpected approve calls: %v", mockSvc.approved)
			}
		})
	}
}

func TestAdminHandler_DeregisterBroker(t *testing.T) {
	t.Run("successfully deregisters", func(t *testing.T) {
		mockSvc := NewMockGraduationService()
		handler := NewAdminHandler(mockSvc)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/brokers/mydex", nil)
		req = mux.SetURLVars(req, map[string]string{"brokerId": "mydex"})
		w := httptest.NewRecorder()

		handler.DeregisterBroker(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("expected status %d, got %d", http.StatusNoContent, w.Code)
		}
		if len(mockSvc.deregistered) != 1 || mockSvc.deregistered[0] != "mydex" {
			t.Errorf("unexpected deregister calls: %v", mockSvc.deregistered)
		}
	})

	t.Run("reports stores where broker remains", func(t *testing.T) {
		mockSvc := NewMockGraduationService()
		mockSvc.deregErr = &service.DeregisterError{BrokerID: "mydex", Remaining: []string{"partner"}, Err: ErrMockDatabase}
		handler := NewAdminHandler(mockSvc)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/brokers/mydex", nil)
		req = mux.SetURLVars(req, map[string]string{"brokerId": "mydex"})
		w := httptest.NewRecorder()

		handler.DeregisterBroker(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
		}

		var response ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !strings.Contains(response.Details, "partner") {
			t.Errorf("details should list remaining stores: %+v", response)
		}
	})
}

// ============ DeployHandler Tests ============

func TestDeployHandler_RequestDeploy(t *testing.T) {
	t.Run("accepts request", func(t *testing.T) {
		mockSvc := &MockDeployService{}
		handler := NewDeployHandler(mockSvc)

		req := withAccount(httptest.NewRequest(http.MethodPost, "/api/v1/dex/deploy", nil), testAccount())
		w := httptest.NewRecorder()

		handler.RequestDeploy(w, req)

		if w.Code != http.StatusAccepted {
			t.Errorf("expected status %d, got %d", http.StatusAccepted, w.Code)
		}
		if mockSvc.calls != 1 {
			t.Errorf("expected 1 call, got %d", mockSvc.calls)
		}
	})

	t.Run("returns 429 with Retry-After during cooldown", func(t *testing.T) {
		mockSvc := &MockDeployService{
			err: &service.Error{
				Code:    service.CodeDeployCooldown,
				Message: "Deployment was requested recently, retry in 1m30s",
				Err:     &deploy.CooldownError{RetryAfter: 89500 * time.Millisecond},
			},
		}
		handler := NewDeployHandler(mockSvc)

		req := withAccount(httptest.NewRequest(http.MethodPost, "/api/v1/dex/deploy", nil), testAccount())
		w := httptest.NewRecorder()

		handler.RequestDeploy(w, req)

		if w.Code != http.StatusTooManyRequests {
			t.Errorf("expected status %d, got %d", http.StatusTooManyRequests, w.Code)
		}
		if got := w.Header().Get("Retry-After"); got != "90" {
			t.Errorf("expected Retry-After 90, got %q", got)
		}
	})
}

// ============ HealthHandler Tests ============

func TestHealthHandler_Health(t *testing.T) {
	t.Run("ok without checks", func(t *testing.T) {
		handler := NewHealthHandler(nil)

		w := httptest.NewRecorder()
		handler.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
	})

	t.Run("returns 503 when a dependency is down", func(t *testing.T) {
		handler := NewHealthHandler(map[string]HealthCheck{
			"postgres": func(ctx context.Context) error { return nil },
			"primary":  func(ctx context.Context) error { return ErrMockDatabase },
		})

		w := httptest.NewRecorder()
		handler.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
		}

		var response HealthResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Checks["postgres"] != "ok" || response.Checks["primary"] != "unavailable" {
			t.Errorf("unexpected checks: %+v", response.Checks)
		}
	})
}
