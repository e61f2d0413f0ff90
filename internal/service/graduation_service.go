package service

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"time"

	"dexgrad/internal/deploy"
	"dexgrad/internal/models"
	"dexgrad/internal/repository"
	"dexgrad/pkg/utils"
)

// GraduationConfig - параметры градуации
type GraduationConfig struct {
	RequiredAmount    *big.Int // в минимальных единицах токена
	ReservedSubstring string
	DefaultFees       models.FeeConfig
	EventTopic        string        // topic событий graduation.pending
	Timeout           time.Duration // провижининг после claim
}

// VerifyTransactionRequest - запрос на градуацию
type VerifyTransactionRequest struct {
	TxHash            string `json:"tx_hash"`
	Chain             string `json:"chain"`
	PreferredBrokerID string `json:"preferred_broker_id"`
	MakerFeeBps       *int   `json:"maker_fee_bps,omitempty"`
	TakerFeeBps       *int   `json:"taker_fee_bps,omitempty"`
}

// VerifyTransactionResult - результат успешной градуации
type VerifyTransactionResult struct {
	Success     bool                   `json:"success"`
	Message     string                 `json:"message"`
	Amount      string                 `json:"amount,omitempty"`
	BrokerID    string                 `json:"broker_id"`
	BrokerIndex int64                  `json:"broker_index"`
	State       models.GraduationState `json:"state"`
}

// GraduationPending - событие: broker создан, ожидает одобрения
type GraduationPending struct {
	AccountID   int64     `json:"account_id"`
	Address     string    `json:"address"`
	BrokerID    string    `json:"broker_id"`
	BrokerIndex int64     `json:"broker_index"`
	TxHash      string    `json:"tx_hash"`
	Chain       string    `json:"chain"`
	ChainID     int64     `json:"chain_id"`
	Amount      string    `json:"amount"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// GraduationService - оркестрация градуации
//
// Порядок: проверка входа, проверка в сети, claim хеша в леджере,
// выделение индекса, регистрация в хранилищах, переход в pending_approval.
// Claim происходит строго после проверки и до любой записи в хранилища.
// После claim хеш потрачен навсегда: сбой провижининга исправляется
// через RetryProvisioning по аккаунту.
type GraduationService struct {
	accounts  AccountRepositoryInterface
	ledger    LedgerRepositoryInterface
	indexes   BrokerIndexRepositoryInterface
	registrar *Registrar
	verifier  *Verifier
	registry  BrokerRegistry
	publisher EventPublisher
	trigger   DeployTrigger
	cfg       GraduationConfig
	now       func() time.Time
	log       *utils.Logger
}

// NewGraduationService создает сервис градуации
func NewGraduationService(
	accounts AccountRepositoryInterface,
	ledger LedgerRepositoryInterface,
	indexes BrokerIndexRepositoryInterface,
	registrar *Registrar,
	verifier *Verifier,
	registry BrokerRegistry,
	publisher EventPublisher,
	trigger DeployTrigger,
	cfg GraduationConfig,
) *GraduationService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &GraduationService{
		accounts:  accounts,
		ledger:    ledger,
		indexes:   indexes,
		registrar: registrar,
		verifier:  verifier,
		registry:  registry,
		publisher: publisher,
		trigger:   trigger,
		cfg:       cfg,
		now:       time.Now,
		log:       utils.L().WithComponent("graduation"),
	}
}

// VerifyTransaction проверяет платеж и создает broker
func (s *GraduationService) VerifyTransaction(ctx context.Context, accountID int64, req *VerifyTransactionRequest) (result *VerifyTransactionResult, err error) {
	log := s.log.With(utils.AccountID(accountID), utils.TxHash(req.TxHash), utils.BrokerID(req.PreferredBrokerID))
	defer func() {
		recordOutcome("verify", err)
		s.logFailure(log, "graduation failed", err)
	}()

	if err := utils.ValidateTxHash(req.TxHash); err != nil {
		return nil, newError(CodeInvalidTxHash, err)
	}
	txHash := utils.NormalizeTxHash(req.TxHash)

	c, ok := models.ParseChain(req.Chain)
	if !ok {
		return nil, newErrorf(CodeChainNotSupported, nil, "Chain %q is not supported", req.Chain)
	}

	brokerID := strings.TrimSpace(req.PreferredBrokerID)
	if err := utils.ValidateBrokerID(brokerID, s.cfg.ReservedSubstring); err != nil {
		return nil, newErrorf(CodeInvalidBrokerID, err, "%s", err.Error())
	}

	fees := s.cfg.DefaultFees
	if req.MakerFeeBps != nil {
		fees.MakerFeeBps = *req.MakerFeeBps
	}
	if req.TakerFeeBps != nil {
		fees.TakerFeeBps = *req.TakerFeeBps
	}
	// Дефолты проходят ту же проверку, что и явные значения
	if err := fees.Validate(); err != nil {
		return nil, newErrorf(CodeInvalidFee, err, "%s", err.Error())
	}

	// Потраченный хеш отклоняется для любого аккаунта, включая владельца
	if _, err := s.ledger.GetByTxHash(ctx, txHash); err == nil {
		return nil, newError(CodeTxAlreadyUsed, nil)
	} else if !errors.Is(err, repository.ErrClaimNotFound) {
		return nil, newError(CodeInternal, err)
	}

	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// Ранние отказы без обращения к сети; окончательно решает Claim
	existing, err := s.ledger.GetByAccount(ctx, accountID)
	switch {
	case err == nil && existing.TxHash == txHash:
		// Хеш потрачен параллельным запросом после первой проверки
		return nil, newError(CodeTxAlreadyUsed, nil)
	case err == nil && account.HasBroker():
		return nil, newError(CodeAlreadyGraduated, nil)
	case err == nil:
		return nil, newError(CodeGraduationInProgress, nil)
	case !errors.Is(err, repository.ErrClaimNotFound):
		return nil, newError(CodeInternal, err)
	case account.HasBroker():
		return nil, newError(CodeAlreadyGraduated, nil)
	}

	// Занятый id не должен сжечь платеж: проверяем до верификации
	if err := s.checkBrokerAvailable(ctx, brokerID, accountID); err != nil {
		return nil, err
	}

	start := time.Now()
	verified, err := s.verifier.Verify(ctx, txHash, c, account.Address, s.cfg.RequiredAmount)
	VerificationLatency.WithLabelValues(c.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	claim := &models.GraduationTransaction{
		TxHash:    verified.TxHash,
		Chain:     verified.Chain,
		AccountID: accountID,
		BrokerID:  brokerID,
		Amount:    verified.Amount.String(),
	}
	if err := s.ledger.Claim(ctx, claim); err != nil {
		switch {
		case errors.Is(err, repository.ErrTxAlreadyClaimed):
			return nil, newError(CodeTxAlreadyUsed, err)
		case errors.Is(err, repository.ErrAccountAlreadyClaimed):
			// Порядок проверки ограничений в БД не задан: тот же хеш - повтор
			if existing, getErr := s.ledger.GetByAccount(ctx, accountID); getErr == nil && existing.TxHash == claim.TxHash {
				return nil, newError(CodeTxAlreadyUsed, err)
			}
			return nil, newError(CodeGraduationInProgress, err)
		default:
			return nil, newError(CodeInternal, err)
		}
	}
	log.Info("graduation payment claimed",
		utils.Chain(claim.Chain.String()),
		utils.Amount(claim.Amount),
	)

	res, err := s.provision(ctx, account, claim, brokerID, fees)
	if err != nil {
		return nil, err
	}
	res.Amount = verified.FormattedAmount
	return res, nil
}

// RetryProvisioning повторяет провижининг для уже потраченного платежа
//
// brokerID - новый broker id; пустой означает id из claim.
func (s *GraduationService) RetryProvisioning(ctx context.Context, accountID int64, brokerID string) (result *VerifyTransactionResult, err error) {
	log := s.log.With(utils.AccountID(accountID))
	defer func() {
		recordOutcome("retry", err)
		s.logFailure(log, "provisioning retry failed", err)
	}()

	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.HasBroker() {
		return nil, newError(CodeAlreadyGraduated, nil)
	}

	claim, err := s.ledger.GetByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrClaimNotFound) {
			return nil, newErrorf(CodeNotFound, err, "No graduation payment found for this account")
		}
		return nil, newError(CodeInternal, err)
	}

	brokerID = strings.TrimSpace(brokerID)
	if brokerID == "" {
		brokerID = claim.BrokerID
	}
	if err := utils.ValidateBrokerID(brokerID, s.cfg.ReservedSubstring); err != nil {
		return nil, newErrorf(CodeInvalidBrokerID, err, "%s", err.Error())
	}

	fees := account.Fees()
	if err := fees.Validate(); err != nil {
		fees = s.cfg.DefaultFees
	}

	// Id мог появиться в публичном реестре после прерванной попытки
	if err := s.checkBrokerAvailable(ctx, brokerID, accountID); err != nil {
		return nil, err
	}

	log.Info("retrying provisioning", utils.TxHash(claim.TxHash), utils.BrokerID(brokerID))
	return s.provision(ctx, account, claim, brokerID, fees)
}

// provision выделяет индекс, регистрирует broker и переводит аккаунт в pending
func (s *GraduationService) provision(ctx context.Context, account *models.Account, claim *models.GraduationTransaction, brokerID string, fees models.FeeConfig) (*VerifyTransactionResult, error) {
	if err := checkTransition(account.GraduationState, models.GraduationStatePendingApproval); err != nil {
		return nil, err
	}

	// Платеж уже потрачен: отмена запроса не должна обрывать провижининг
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()

	log := s.log.With(utils.AccountID(account.ID), utils.TxHash(claim.TxHash), utils.BrokerID(brokerID))

	presence, err := s.registrar.CheckAvailable(ctx, brokerID, account.ID)
	if err != nil {
		return nil, err
	}

	// Запись уже есть (прерванная попытка) - используем ее индекс, новый не тратим
	index := presence.Index()
	if index == 0 {
		index, err = s.indexes.NextIndex(ctx)
		if err != nil {
			return nil, newError(CodeBrokerIndexUnavailable, err)
		}
	}

	reg, err := s.registrar.Register(ctx, &models.BrokerRecord{
		BrokerID:       brokerID,
		BrokerIndex:    index,
		AdminAccountID: account.ID,
		MakerFeeBps:    fees.MakerFeeBps,
		TakerFeeBps:    fees.TakerFeeBps,
	}, claim.TxHash)
	if err != nil {
		return nil, err
	}

	err = s.accounts.TransitionToPending(ctx, account.ID, models.GraduationStateUngraduated, brokerID, reg.BrokerIndex, fees)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrStateConflict):
		// Параллельный запрос мог завершить тот же провижининг
		current, getErr := s.accounts.GetByID(ctx, account.ID)
		if getErr != nil || !sameProvisioning(current, brokerID, reg.BrokerIndex) {
			return nil, newError(CodeInvalidStateTransition, err)
		}
	case errors.Is(err, repository.ErrPreferredBrokerIDUsed):
		return nil, newError(CodeBrokerIDTaken, err)
	default:
		log.Error("broker registered but account state not updated, retry required", utils.Err(err))
		return nil, newError(CodeInternal, err)
	}

	if s.registry != nil {
		s.registry.Invalidate()
	}
	s.publish(ctx, account, claim, brokerID, reg.BrokerIndex)

	log.Info("graduation pending approval", utils.BrokerIndex(reg.BrokerIndex))
	return &VerifyTransactionResult{
		Success:     true,
		Message:     "Broker created, awaiting approval",
		BrokerID:    brokerID,
		BrokerIndex: reg.BrokerIndex,
		State:       models.GraduationStatePendingApproval,
	}, nil
}

// checkBrokerAvailable проверяет broker id в публичном реестре и хранилищах
//
// Запись в реестре допустима, только если это собственная незавершенная
// регистрация аккаунта (есть в хранилищах и принадлежит ему).
func (s *GraduationService) checkBrokerAvailable(ctx context.Context, brokerID string, accountID int64) error {
	listed := false
	if s.registry != nil {
		taken, err := s.registry.Contains(ctx, brokerID)
		if err != nil {
			return newErrorf(CodeBrokerRegistrationFailed, err, "Broker registry is unavailable, try again later")
		}
		listed = taken
	}

	presence, err := s.registrar.CheckAvailable(ctx, brokerID, accountID)
	if err != nil {
		return err
	}
	if listed && presence.Empty() {
		return newErrorf(CodeBrokerIDTaken, nil, "Broker ID %q is already taken, try a different one", brokerID)
	}
	return nil
}

// GetStatus возвращает статус градуации
func (s *GraduationService) GetStatus(ctx context.Context, accountID int64) (*models.GraduationStatus, error) {
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	claim, err := s.ledger.GetByAccount(ctx, accountID)
	if err != nil {
		if !errors.Is(err, repository.ErrClaimNotFound) {
			return nil, newError(CodeInternal, err)
		}
		claim = nil
	}
	return BuildStatus(account, claim), nil
}

// Approve переводит аккаунт в approved (действие оператора)
func (s *GraduationService) Approve(ctx context.Context, accountID int64) (*models.GraduationStatus, error) {
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(account.GraduationState, models.GraduationStateApproved); err != nil {
		return nil, err
	}

	if err := s.accounts.TransitionToApproved(ctx, accountID, account.GraduationState); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, newError(CodeInvalidStateTransition, err)
		}
		return nil, newError(CodeInternal, err)
	}

	status, err := s.GetStatus(ctx, accountID)
	if err != nil {
		return nil, err
	}

	s.log.Info("graduation approved", utils.AccountID(accountID), utils.BrokerID(status.CurrentBrokerID))
	recordOutcome("approve", nil)

	// Фронтенд должен пересобраться с новым broker id
	if s.trigger != nil {
		if _, err := s.trigger.Request(ctx, accountID, status.CurrentBrokerID, deploy.ReasonGraduation); err != nil && !errors.Is(err, deploy.ErrDeployCooldown) {
			s.log.Warn("deployment trigger failed after approval", utils.AccountID(accountID), utils.Err(err))
		}
	}
	return status, nil
}

// Deregister удаляет broker из хранилищ (административный откат)
//
// Возвращает *DeregisterError, если запись осталась в каком-либо хранилище.
func (s *GraduationService) Deregister(ctx context.Context, brokerID string) error {
	brokerID = strings.TrimSpace(brokerID)
	if brokerID == "" {
		return newErrorf(CodeInvalidBrokerID, nil, "Broker ID is required")
	}
	if err := s.registrar.Deregister(ctx, brokerID); err != nil {
		return err
	}
	if s.registry != nil {
		s.registry.Invalidate()
	}
	return nil
}

func (s *GraduationService) loadAccount(ctx context.Context, accountID int64) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, newErrorf(CodeNotFound, err, "Account not found")
		}
		return nil, newError(CodeInternal, err)
	}
	return account, nil
}

// publish отправляет событие graduation.pending; сбой только логируется
func (s *GraduationService) publish(ctx context.Context, account *models.Account, claim *models.GraduationTransaction, brokerID string, index int64) {
	if s.publisher == nil || s.cfg.EventTopic == "" {
		return
	}
	event := &GraduationPending{
		AccountID:   account.ID,
		Address:     account.Address,
		BrokerID:    brokerID,
		BrokerIndex: index,
		TxHash:      claim.TxHash,
		Chain:       claim.Chain.String(),
		ChainID:     claim.Chain.ChainID(),
		Amount:      claim.Amount,
		OccurredAt:  s.now().UTC(),
	}
	key := strconv.FormatInt(account.ID, 10)
	if err := s.publisher.Publish(ctx, s.cfg.EventTopic, key, event); err != nil {
		s.log.Warn("failed to publish graduation event", utils.AccountID(account.ID), utils.Err(err))
	}
}

// logFailure логирует ошибку с уровнем по ее категории
func (s *GraduationService) logFailure(log *utils.Logger, msg string, err error) {
	if err == nil {
		return
	}
	svcErr := AsError(err)
	fields := []utils.Field{utils.Code(string(svcErr.Code)), utils.Err(err)}

	switch svcErr.Kind() {
	case KindConfiguration, KindFatal, KindInternal:
		log.Error(msg, fields...)
	case KindTransient:
		log.Warn(msg, fields...)
	default:
		log.Info(msg, fields...)
	}
}

// sameProvisioning - аккаунт уже в pending с тем же broker
func sameProvisioning(a *models.Account, brokerID string, index int64) bool {
	return a.GraduationState == models.GraduationStatePendingApproval &&
		a.PreferredBrokerID != nil && *a.PreferredBrokerID == brokerID &&
		a.BrokerIndex != nil && *a.BrokerIndex == index
}
