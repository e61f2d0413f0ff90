package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"dexgrad/internal/api/middleware"
	"dexgrad/internal/deploy"
	"dexgrad/internal/models"
	"dexgrad/internal/service"
	"dexgrad/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxRequestBodySize ограничение размера тела запроса (64 KB)
const MaxRequestBodySize = 64 << 10

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// GraduationResponse - конверт ответов градуации и комиссий
//
// success=false всегда сопровождается code из закрытого набора
// и сообщением, которое можно показать пользователю.
type GraduationResponse struct {
	Success     bool                   `json:"success"`
	Code        string                 `json:"code,omitempty"`
	Message     string                 `json:"message"`
	Amount      string                 `json:"amount,omitempty"`
	BrokerID    string                 `json:"broker_id,omitempty"`
	BrokerIndex int64                  `json:"broker_index,omitempty"`
	State       models.GraduationState `json:"state,omitempty"`
}

// statusForKind переводит категорию ошибки в HTTP статус
func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindVerification:
		return http.StatusUnprocessableEntity
	case service.KindConfiguration:
		return http.StatusInternalServerError
	case service.KindConflict:
		return http.StatusConflict
	case service.KindPrecondition:
		return http.StatusNotFound
	case service.KindTransient:
		return http.StatusServiceUnavailable
	case service.KindFatal:
		return http.StatusInternalServerError
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	respondWithJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// handleServiceError отвечает ErrorResponse по ошибке сервиса.
// Причина ошибки в ответ не попадает.
func handleServiceError(w http.ResponseWriter, err error) {
	svcErr := service.AsError(err)
	setRetryAfter(w, err)
	respondWithError(w, statusForKind(svcErr.Kind()), string(svcErr.Code), svcErr.Message, "")
}

// respondGraduationError отвечает конвертом {success: false, code, message}
func respondGraduationError(w http.ResponseWriter, err error) {
	svcErr := service.AsError(err)
	setRetryAfter(w, err)
	respondWithJSON(w, statusForKind(svcErr.Kind()), GraduationResponse{
		Success: false,
		Code:    string(svcErr.Code),
		Message: svcErr.Message,
	})
}

// setRetryAfter выставляет Retry-After для ошибок cooldown
func setRetryAfter(w http.ResponseWriter, err error) {
	var cooldown *deploy.CooldownError
	if errors.As(err, &cooldown) && cooldown.RetryAfter > 0 {
		seconds := int((cooldown.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
}

// decodeJSON читает тело запроса с ограничением размера.
// Пустое тело допустимо, если allowEmpty.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	return err
}

// currentAccount возвращает аккаунт из context или отвечает 401
func currentAccount(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, string(service.CodeUnauthorized), "Unauthorized", "")
		return nil, false
	}
	return account, true
}

// requestLogger - логгер handler с id запроса
func requestLogger(r *http.Request, component string) *utils.Logger {
	return utils.L().WithComponent(component).With(utils.RequestID(middleware.RequestIDFromContext(r.Context())))
}
