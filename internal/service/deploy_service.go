package service

import (
	"context"
	"errors"
	"time"

	"dexgrad/internal/deploy"
	"dexgrad/internal/repository"
	"dexgrad/pkg/utils"
)

// DeployService - ручной запрос пересборки фронтенда DEX
type DeployService struct {
	accounts AccountRepositoryInterface
	trigger  DeployTrigger
	log      *utils.Logger
}

// NewDeployService создает сервис деплоя
func NewDeployService(accounts AccountRepositoryInterface, trigger DeployTrigger) *DeployService {
	return &DeployService{
		accounts: accounts,
		trigger:  trigger,
		log:      utils.L().WithComponent("deploy"),
	}
}

// RequestDeploy запрашивает пересборку; не чаще одного раза за окно cooldown
func (s *DeployService) RequestDeploy(ctx context.Context, accountID int64) (*deploy.DeployRequested, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, newError(CodeNotFound, err)
		}
		return nil, newError(CodeInternal, err)
	}

	brokerID := account.BrokerID
	if account.PreferredBrokerID != nil && account.HasBroker() {
		brokerID = *account.PreferredBrokerID
	}

	req, err := s.trigger.Request(ctx, accountID, brokerID, deploy.ReasonManual)
	if err != nil {
		var cd *deploy.CooldownError
		if errors.As(err, &cd) {
			return nil, newErrorf(CodeDeployCooldown, err, "Deployment was requested recently, retry in %s", cd.RetryAfter.Round(time.Second))
		}
		s.log.Warn("deployment request failed", utils.AccountID(accountID), utils.Err(err))
		return nil, newError(CodeInternal, err)
	}
	return req, nil
}
