package handlers

import (
	"net/http"

	"dexgrad/internal/api/middleware"
	"dexgrad/internal/service"
)

// AuthHandler отвечает за вход подписью кошелька
//
// Endpoints:
// - POST /api/v1/auth/nonce  - сообщение для подписи
// - POST /api/v1/auth/login  - вход по подписи, выдача токена сессии
// - POST /api/v1/auth/logout - завершение сессии
// - GET /api/v1/auth/me      - текущий аккаунт
type AuthHandler struct {
	authService service.AuthServiceInterface
}

// NewAuthHandler создает новый AuthHandler
func NewAuthHandler(authService service.AuthServiceInterface) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// NonceRequest тело запроса nonce
type NonceRequest struct {
	Address string `json:"address"`
}

// LoginRequest тело запроса входа
type LoginRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"` // personal_sign от message из /auth/nonce
}

// Nonce выдает сообщение для подписи кошельком
// POST /api/v1/auth/nonce
//
// Request Body:
//
//	{"address": "0x..."}
//
// Response:
// - 200 OK: {address, nonce, message}
// - 400 Bad Request: невалидный адрес
func (h *AuthHandler) Nonce(w http.ResponseWriter, r *http.Request) {
	var req NonceRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondWithError(w, http.StatusBadRequest, string(service.CodeInvalidRequest), "Invalid JSON body", "")
		return
	}

	challenge, err := h.authService.Nonce(r.Context(), req.Address)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, challenge)
}

// Login проверяет подпись и выдает токен сессии
// POST /api/v1/auth/login
//
// Response:
// - 200 OK: {token, expires_at, account}
// - 400 Bad Request: невалидный адрес или формат подписи
// - 401 Unauthorized: подпись не совпала с адресом или nonce
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondWithError(w, http.StatusBadRequest, string(service.CodeInvalidRequest), "Invalid JSON body", "")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Address, req.Signature)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// Logout завершает текущую сессию
// POST /api/v1/auth/logout
//
// Response:
// - 204 No Content
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, string(service.CodeUnauthorized), "Unauthorized", "")
		return
	}

	if err := h.authService.Logout(r.Context(), token); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me возвращает текущий аккаунт
// GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, account)
}
