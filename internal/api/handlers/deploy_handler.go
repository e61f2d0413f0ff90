package handlers

import (
	"net/http"

	"dexgrad/internal/service"
)

// DeployHandler отвечает за ручную пересборку фронтенда DEX
//
// Endpoints:
// - POST /api/v1/dex/deploy - запрос пересборки
type DeployHandler struct {
	deployService service.DeployServiceInterface
}

// NewDeployHandler создает новый DeployHandler
func NewDeployHandler(deployService service.DeployServiceInterface) *DeployHandler {
	return &DeployHandler{
		deployService: deployService,
	}
}

// RequestDeploy запрашивает пересборку
// POST /api/v1/dex/deploy
//
// Response:
// - 202 Accepted: запрос опубликован
// - 429 Too Many Requests: пересборка уже запрашивалась, заголовок Retry-After
func (h *DeployHandler) RequestDeploy(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}

	req, err := h.deployService.RequestDeploy(r.Context(), account.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, SuccessResponse{
		Message: "Deployment requested",
		Data:    req,
	})
}
