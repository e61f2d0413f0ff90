package handlers

import (
	"net/http"

	"dexgrad/internal/service"
)

// FeeHandler отвечает за комиссии брокера
//
// Endpoints:
// - GET /api/v1/fees - текущие комиссии
// - PUT /api/v1/fees - изменение комиссий
type FeeHandler struct {
	feeService service.FeeServiceInterface
}

// NewFeeHandler создает новый FeeHandler
func NewFeeHandler(feeService service.FeeServiceInterface) *FeeHandler {
	return &FeeHandler{
		feeService: feeService,
	}
}

// UpdateFeesRequest тело запроса изменения комиссий
type UpdateFeesRequest struct {
	MakerFeeBps *int `json:"maker_fee_bps"`
	TakerFeeBps *int `json:"taker_fee_bps"`
}

// FeesResponse ответ с комиссиями
type FeesResponse struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	MakerFeeBps        int    `json:"maker_fee_bps"`
	TakerFeeBps        int    `json:"taker_fee_bps"`
	DeploymentDeferred bool   `json:"deployment_deferred,omitempty"`
	RetryAfterSeconds  int    `json:"retry_after_seconds,omitempty"`
}

// GetFees возвращает комиссии broker текущего аккаунта
// GET /api/v1/fees
//
// Response:
// - 200 OK: {maker_fee_bps, taker_fee_bps}
// - 404 Not Found: у аккаунта еще нет broker
func (h *FeeHandler) GetFees(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}

	fees, err := h.feeService.GetFees(r.Context(), account.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, FeesResponse{
		Success:     true,
		Message:     "OK",
		MakerFeeBps: fees.MakerFeeBps,
		TakerFeeBps: fees.TakerFeeBps,
	})
}

// UpdateFees изменяет комиссии broker
// PUT /api/v1/fees
//
// Request Body:
//
//	{"maker_fee_bps": 3, "taker_fee_bps": 6}
//
// Response:
// - 200 OK: комиссии применены (пересборка может быть отложена cooldown)
// - 400 Bad Request: комиссии вне диапазона
// - 404 Not Found: у аккаунта еще нет broker
// - 503 Service Unavailable: хранилище торговой инфраструктуры недоступно
func (h *FeeHandler) UpdateFees(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}

	var req UpdateFeesRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondWithJSON(w, http.StatusBadRequest, GraduationResponse{
			Success: false,
			Code:    string(service.CodeInvalidRequest),
			Message: "Invalid JSON body",
		})
		return
	}
	if req.MakerFeeBps == nil || req.TakerFeeBps == nil {
		respondWithJSON(w, http.StatusBadRequest, GraduationResponse{
			Success: false,
			Code:    string(service.CodeInvalidFee),
			Message: "Both maker_fee_bps and taker_fee_bps are required",
		})
		return
	}

	result, err := h.feeService.SetFees(r.Context(), account.ID, *req.MakerFeeBps, *req.TakerFeeBps)
	if err != nil {
		respondGraduationError(w, err)
		return
	}

	resp := FeesResponse{
		Success:            true,
		Message:            "Fees updated",
		MakerFeeBps:        result.Fees.MakerFeeBps,
		TakerFeeBps:        result.Fees.TakerFeeBps,
		DeploymentDeferred: result.DeploymentDeferred,
		RetryAfterSeconds:  int(result.RetryAfter.Seconds()),
	}
	if result.DeploymentDeferred {
		resp.Message = "Fees updated, DEX redeploy will happen later"
	}
	respondWithJSON(w, http.StatusOK, resp)
}
