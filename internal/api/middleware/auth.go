package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"dexgrad/internal/models"
	"dexgrad/pkg/crypto"
	"dexgrad/pkg/utils"
)

// Authenticator проверяет токен сессии
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Account, error)
}

// Auth - middleware аутентификации по токену сессии
//
// Токен передается в заголовке Authorization: Bearer <token> и выдается
// после входа подписью кошелька (POST /api/v1/auth/login).
// Аккаунт добавляется в context запроса, handlers читают его через
// AccountFromContext.
//
// Ответы:
// - 401 Unauthorized: токена нет, он неизвестен или сессия истекла
func Auth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header with Bearer token is required")
				return
			}

			account, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Session is invalid or expired")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
		})
	}
}

// BearerToken извлекает токен из заголовка Authorization
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AdminAuth - middleware для административных endpoints
//
// HTTP Basic Authentication. Имя сравнивается за постоянное время,
// пароль проверяется по bcrypt хешу из конфигурации (ADMIN_PASSWORD_HASH).
// Если администратор не настроен, endpoints закрыты (403).
//
// Использование:
//
//	admin := api.PathPrefix("/admin").Subrouter()
//	admin.Use(middleware.AdminAuth(cfg.Security.AdminUser, cfg.Security.AdminPasswordHash))
func AdminAuth(username, passwordHash string) func(http.Handler) http.Handler {
	log := utils.L().WithComponent("admin_auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username == "" || passwordHash == "" {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin endpoints disabled. Set ADMIN_USER and ADMIN_PASSWORD_HASH.")
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="Admin endpoints"`)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
				return
			}

			userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			// bcrypt проверяется и при неверном имени
			passErr := crypto.VerifyPassword(pass, passwordHash)

			if !userMatch || passErr != nil {
				log.Warn("admin authentication failed",
					utils.String("remote_addr", r.RemoteAddr),
					utils.RequestID(RequestIDFromContext(r.Context())),
				)
				w.Header().Set("WWW-Authenticate", `Basic realm="Admin endpoints"`)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
