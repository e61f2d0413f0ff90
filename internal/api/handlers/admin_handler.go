package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"dexgrad/internal/service"
	"dexgrad/pkg/utils"
)

// AdminHandler - действия оператора
//
// Endpoints:
// - POST /api/v1/admin/accounts/{id}/approve - одобрение broker аккаунта
// - DELETE /api/v1/admin/brokers/{brokerId}  - удаление broker из хранилищ
type AdminHandler struct {
	graduationService service.GraduationServiceInterface
}

// NewAdminHandler создает новый AdminHandler
func NewAdminHandler(graduationService service.GraduationServiceInterface) *AdminHandler {
	return &AdminHandler{
		graduationService: graduationService,
	}
}

// ApproveAccount переводит аккаунт из pending_approval в approved
// POST /api/v1/admin/accounts/{id}/approve
//
// Response:
// - 200 OK: новое состояние градуации
// - 400 Bad Request: невалидный id
// - 404 Not Found: аккаунт не найден
// - 409 Conflict: аккаунт не в pending_approval
func (h *AdminHandler) ApproveAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, string(service.CodeInvalidRequest), "Invalid account ID", "")
		return
	}

	status, err := h.graduationService.Approve(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	requestLogger(r, "admin").Info("account approved", utils.AccountID(id), utils.BrokerID(status.CurrentBrokerID))
	respondWithJSON(w, http.StatusOK, status)
}

// DeregisterBroker удаляет broker из обоих хранилищ
// DELETE /api/v1/admin/brokers/{brokerId}
//
// Отсутствие записи не ошибка.
//
// Response:
// - 204 No Content: записи нет ни в одном хранилище
// - 503 Service Unavailable: запись осталась в хранилищах из details
func (h *AdminHandler) DeregisterBroker(w http.ResponseWriter, r *http.Request) {
	brokerID := mux.Vars(r)["brokerId"]

	err := h.graduationService.Deregister(r.Context(), brokerID)
	if err != nil {
		var deregErr *service.DeregisterError
		if errors.As(err, &deregErr) {
			requestLogger(r, "admin").Error("broker deregistration incomplete",
				utils.BrokerID(brokerID),
				utils.Strings("remaining", deregErr.Remaining),
				utils.Err(err),
			)
			respondWithError(w, http.StatusServiceUnavailable,
				string(service.CodeBrokerRegistrationFailed),
				"Broker is still present in some stores, retry the request",
				"remaining: "+strings.Join(deregErr.Remaining, ", "),
			)
			return
		}
		handleServiceError(w, err)
		return
	}

	requestLogger(r, "admin").Info("broker deregistered", utils.BrokerID(brokerID))
	w.WriteHeader(http.StatusNoContent)
}
