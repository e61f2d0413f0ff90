package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"dexgrad/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers
//
// Перехватывает panic, логирует значение и stack trace и возвращает
// клиенту 500 Internal Server Error. Значение panic в ответ не попадает.
func Recovery(next http.Handler) http.Handler {
	log := utils.L().WithComponent("recovery")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}

				log.Error("panic in handler",
					utils.String("panic", fmt.Sprint(err)),
					utils.String("stack", string(debug.Stack())),
					utils.String("method", r.Method),
					utils.String("path", r.URL.Path),
					utils.RequestID(w.Header().Get(RequestIDHeader)),
				)

				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
