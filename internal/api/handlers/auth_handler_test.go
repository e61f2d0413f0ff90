package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dexgrad/internal/service"
)

// ============ AuthHandler Tests ============

func TestAuthHandler_Nonce(t *testing.T) {
	t.Run("successfully returns challenge", func(t *testing.T) {
		handler := NewAuthHandler(NewMockAuthService())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/nonce", strings.NewReader(`{"address":"0xabc"}`))
		w := httptest.NewRecorder()

		handler.Nonce(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response service.NonceChallenge
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Nonce == "" || !strings.Contains(response.Message, response.Nonce) {
			t.Errorf("unexpected challenge: %+v", response)
		}
	})

	t.Run("returns 400 on invalid address", func(t *testing.T) {
		mockSvc := NewMockAuthService()
		mockSvc.nonceErr = &service.Error{Code: service.CodeInvalidRequest, Message: "invalid address"}
		handler := NewAuthHandler(mockSvc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/nonce", strings.NewReader(`{"address":"0x1"}`))
		w := httptest.NewRecorder()

		handler.Nonce(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestAuthHandler_Login(t *testing.T) {
	t.Run("successfully returns token", func(t *testing.T) {
		handler := NewAuthHandler(NewMockAuthService())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"address":"0xabc","signature":"0x01"}`))
		w := httptest.NewRecorder()

		handler.Login(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response["token"] != "new-token" {
			t.Errorf("unexpected token: %v", response["token"])
		}
		account, ok := response["account"].(map[string]interface{})
		if !ok {
			t.Fatal("response should contain account")
		}
		if _, leaked := account["nonce"]; leaked {
			t.Error("nonce should not be serialized")
		}
	})

	t.Run("returns 401 on bad signature", func(t *testing.T) {
		mockSvc := NewMockAuthService()
		mockSvc.loginErr = &service.Error{Code: service.CodeUnauthorized, Message: "Signature does not match"}
		handler := NewAuthHandler(mockSvc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"address":"0xabc","signature":"0x01"}`))
		w := httptest.NewRecorder()

		handler.Login(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
		}
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	t.Run("deletes session", func(t *testing.T) {
		mockSvc := NewMockAuthService()
		handler := NewAuthHandler(mockSvc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()

		handler.Logout(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("expected status %d, got %d", http.StatusNoContent, w.Code)
		}
		if len(mockSvc.loggedOut) != 1 || mockSvc.loggedOut[0] != "valid-token" {
			t.Errorf("unexpected logout calls: %v", mockSvc.loggedOut)
		}
	})

	t.Run("returns 401 without token", func(t *testing.T) {
		handler := NewAuthHandler(NewMockAuthService())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
		w := httptest.NewRecorder()

		handler.Logout(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
		}
	})
}

func TestAuthHandler_Me(t *testing.T) {
	handler := NewAuthHandler(NewMockAuthService())

	req := withAccount(httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil), testAccount())
	w := httptest.NewRecorder()

	handler.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if !strings.Contains(w.Body.String(), testAccount().Address) {
		t.Errorf("response should contain address: %s", w.Body.String())
	}
}
