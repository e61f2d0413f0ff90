package service

import (
	"context"
	"errors"
	"time"

	"dexgrad/internal/deploy"
	"dexgrad/internal/models"
	"dexgrad/internal/repository"
	"dexgrad/pkg/utils"
)

// SetFeesResult - результат изменения комиссий
type SetFeesResult struct {
	Fees               models.FeeConfig `json:"fees"`
	DeploymentDeferred bool             `json:"deployment_deferred"` // пересборка не запрошена (cooldown или сбой)
	RetryAfter         time.Duration    `json:"-"`
}

// FeeService - комиссии брокера аккаунта
//
// Порядок записи: проверка границ, затем хранилище, которое применяет
// комиссии при матчинге, затем локальная запись. Сбой инфраструктуры
// никогда не оставляет локально записанную, но не применяемую комиссию.
type FeeService struct {
	accounts AccountRepositoryInterface
	primary  BrokerStoreInterface
	trigger  DeployTrigger
	timeout  time.Duration
	log      *utils.Logger
}

// NewFeeService создает сервис комиссий
func NewFeeService(accounts AccountRepositoryInterface, primary BrokerStoreInterface, trigger DeployTrigger) *FeeService {
	return &FeeService{
		accounts: accounts,
		primary:  primary,
		trigger:  trigger,
		timeout:  15 * time.Second,
		log:      utils.L().WithComponent("fees"),
	}
}

// GetFees возвращает комиссии аккаунта с собственным broker
func (s *FeeService) GetFees(ctx context.Context, accountID int64) (*models.FeeConfig, error) {
	account, err := s.brokerAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	fees := account.Fees()
	return &fees, nil
}

// SetFees проверяет и применяет комиссии
//
// При ошибке сохраненные значения не меняются.
func (s *FeeService) SetFees(ctx context.Context, accountID int64, makerFeeBps, takerFeeBps int) (result *SetFeesResult, err error) {
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(CodeOf(err))
		}
		FeeUpdates.WithLabelValues(outcome).Inc()
	}()

	fees := models.FeeConfig{MakerFeeBps: makerFeeBps, TakerFeeBps: takerFeeBps}
	if err := fees.Validate(); err != nil {
		return nil, newErrorf(CodeInvalidFee, err, "%s", err.Error())
	}

	account, err := s.brokerAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	brokerID := *account.PreferredBrokerID

	log := s.log.With(utils.AccountID(accountID), utils.BrokerID(brokerID))

	// Запись в инфраструктуру и локально доводится до конца даже при отмене запроса
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.primary.UpdateFees(writeCtx, brokerID, fees); err != nil {
		log.Error("fee propagation failed", utils.Store(s.primary.Name()), utils.Err(err))
		return nil, newError(CodeFeePropagationFailed, err)
	}

	if err := s.accounts.UpdateFees(writeCtx, accountID, fees); err != nil {
		// Инфраструктура уже применяет новые значения, локальная запись отстает
		log.Error("fees applied to trading store but not persisted locally",
			utils.Int("maker_fee_bps", makerFeeBps),
			utils.Int("taker_fee_bps", takerFeeBps),
			utils.Err(err),
		)
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, newError(CodeNoBroker, err)
		}
		return nil, newError(CodeInternal, err)
	}

	log.Info("fees updated",
		utils.Int("maker_fee_bps", makerFeeBps),
		utils.Int("taker_fee_bps", takerFeeBps),
	)

	result = &SetFeesResult{Fees: fees}
	if _, err := s.trigger.Request(ctx, accountID, brokerID, deploy.ReasonFeesUpdated); err != nil {
		result.DeploymentDeferred = true
		var cd *deploy.CooldownError
		if errors.As(err, &cd) {
			result.RetryAfter = cd.RetryAfter
		} else {
			log.Warn("deployment trigger failed after fee update", utils.Err(err))
		}
	}
	return result, nil
}

// brokerAccount загружает аккаунт и проверяет, что у него есть broker
func (s *FeeService) brokerAccount(ctx context.Context, accountID int64) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, newError(CodeNotFound, err)
		}
		return nil, newError(CodeInternal, err)
	}
	if !account.HasBroker() || account.PreferredBrokerID == nil {
		return nil, newError(CodeNoBroker, nil)
	}
	return account, nil
}
