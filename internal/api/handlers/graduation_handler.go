package handlers

import (
	"net/http"

	"dexgrad/internal/service"
)

// GraduationHandler отвечает за градуацию аккаунта в собственный broker
//
// Endpoints:
// - POST /api/v1/graduation/verify-transaction - проверка платежа и создание broker
// - POST /api/v1/graduation/retry              - повтор провижининга после сбоя
// - GET /api/v1/graduation/status              - состояние градуации
type GraduationHandler struct {
	graduationService service.GraduationServiceInterface
}

// NewGraduationHandler создает новый GraduationHandler
func NewGraduationHandler(graduationService service.GraduationServiceInterface) *GraduationHandler {
	return &GraduationHandler{
		graduationService: graduationService,
	}
}

// VerifyTransactionRequest тело запроса проверки платежа
type VerifyTransactionRequest struct {
	TxHash            string `json:"tx_hash"`
	Chain             string `json:"chain"`
	PreferredBrokerID string `json:"preferred_broker_id"`
	MakerFeeBps       *int   `json:"maker_fee_bps,omitempty"`
	TakerFeeBps       *int   `json:"taker_fee_bps,omitempty"`
}

// RetryRequest тело запроса повтора провижининга
type RetryRequest struct {
	BrokerID string `json:"broker_id,omitempty"` // пустой: broker id из первой попытки
}

// VerifyTransaction проверяет платеж и создает broker
// POST /api/v1/graduation/verify-transaction
//
// Request Body:
//
//	{
//	  "tx_hash": "0x...",
//	  "chain": "arbitrum",
//	  "preferred_broker_id": "mydex"
//	}
//
// Response:
// - 200 OK: {success: true, message, amount, broker_id, broker_index, state}
// - 400 Bad Request: невалидный хеш, broker id или комиссии
// - 409 Conflict: хеш уже использован, broker id занят, аккаунт уже с broker
// - 422 Unprocessable Entity: транзакция не прошла проверку
// - 503 Service Unavailable: узел сети или хранилища недоступны
func (h *GraduationHandler) VerifyTransaction(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}

	var req VerifyTransactionRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondWithJSON(w, http.StatusBadRequest, GraduationResponse{
			Success: false,
			Code:    string(service.CodeInvalidRequest),
			Message: "Invalid JSON body",
		})
		return
	}

	result, err := h.graduationService.VerifyTransaction(r.Context(), account.ID, &service.VerifyTransactionRequest{
		TxHash:            req.TxHash,
		Chain:             req.Chain,
		PreferredBrokerID: req.PreferredBrokerID,
		MakerFeeBps:       req.MakerFeeBps,
		TakerFeeBps:       req.TakerFeeBps,
	})
	if err != nil {
		respondGraduationError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, resultToResponse(result))
}

// Retry повторяет провижининг для уже потраченного платежа
// POST /api/v1/graduation/retry
//
// Request Body (опционально):
//
//	{"broker_id": "otherdex"}
//
// Response:
// - 200 OK: broker создан
// - 404 Not Found: платеж для аккаунта не найден
// - 409 Conflict: broker уже создан или id занят
func (h *GraduationHandler) Retry(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}

	var req RetryRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondWithJSON(w, http.StatusBadRequest, GraduationResponse{
			Success: false,
			Code:    string(service.CodeInvalidRequest),
			Message: "Invalid JSON body",
		})
		return
	}

	result, err := h.graduationService.RetryProvisioning(r.Context(), account.ID, req.BrokerID)
	if err != nil {
		respondGraduationError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, resultToResponse(result))
}

// GetStatus возвращает состояние градуации текущего аккаунта
// GET /api/v1/graduation/status
//
// Response:
// - 200 OK: {state, preferred_broker_id, current_broker_id, approved, needs_retry, ...}
func (h *GraduationHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}

	status, err := h.graduationService.GetStatus(r.Context(), account.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

func resultToResponse(result *service.VerifyTransactionResult) GraduationResponse {
	return GraduationResponse{
		Success:     true,
		Message:     result.Message,
		Amount:      result.Amount,
		BrokerID:    result.BrokerID,
		BrokerIndex: result.BrokerIndex,
		State:       result.State,
	}
}
