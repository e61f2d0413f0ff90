package middleware

import (
	"context"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"dexgrad/internal/models"
)

type ctxKey int

const (
	accountKey ctxKey = iota
	requestIDKey
)

// WithAccount добавляет аутентифицированный аккаунт в context
func WithAccount(ctx context.Context, account *models.Account) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

// AccountFromContext возвращает аккаунт, положенный Auth
func AccountFromContext(ctx context.Context) (*models.Account, bool) {
	account, ok := ctx.Value(accountKey).(*models.Account)
	return account, ok && account != nil
}

// RequestIDFromContext возвращает id запроса, выданный Logging
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// errorBody повторяет формат handlers.ErrorResponse
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(errorBody{Error: message, Code: code})
}
