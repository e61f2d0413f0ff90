package service

import (
	"context"
	"time"

	"dexgrad/internal/chain"
	"dexgrad/internal/deploy"
	"dexgrad/internal/models"
	"dexgrad/internal/registry"
	"dexgrad/internal/repository"
)

// AccountRepositoryInterface определяет интерфейс репозитория аккаунтов
type AccountRepositoryInterface interface {
	UpsertNonce(ctx context.Context, address, nonce string, defaults repository.AccountDefaults) (*models.Account, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetByAddress(ctx context.Context, address string) (*models.Account, error)
	RotateNonce(ctx context.Context, id int64, expected, next string) error
	TransitionToPending(ctx context.Context, id int64, from models.GraduationState, brokerID string, brokerIndex int64, fees models.FeeConfig) error
	TransitionToApproved(ctx context.Context, id int64, from models.GraduationState) error
	UpdateFees(ctx context.Context, id int64, fees models.FeeConfig) error
}

// LedgerRepositoryInterface определяет интерфейс леджера платежей
type LedgerRepositoryInterface interface {
	Claim(ctx context.Context, tx *models.GraduationTransaction) error
	GetByTxHash(ctx context.Context, txHash string) (*models.GraduationTransaction, error)
	GetByAccount(ctx context.Context, accountID int64) (*models.GraduationTransaction, error)
}

// BrokerIndexRepositoryInterface определяет интерфейс счетчика broker index
type BrokerIndexRepositoryInterface interface {
	NextIndex(ctx context.Context) (int64, error)
}

// BrokerStoreInterface определяет интерфейс хранилища брокеров торговой инфраструктуры
type BrokerStoreInterface interface {
	Name() string
	Get(ctx context.Context, brokerID string) (*models.BrokerRecord, error)
	Insert(ctx context.Context, rec *models.BrokerRecord) error
	Delete(ctx context.Context, brokerID string) error
	UpdateFees(ctx context.Context, brokerID string, fees models.FeeConfig) error
}

// SessionRepositoryInterface определяет интерфейс репозитория сессий
type SessionRepositoryInterface interface {
	Create(ctx context.Context, s *models.Session) error
	GetActive(ctx context.Context, token string, now time.Time) (*models.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ AccountRepositoryInterface = (*repository.AccountRepository)(nil)
var _ LedgerRepositoryInterface = (*repository.LedgerRepository)(nil)
var _ BrokerIndexRepositoryInterface = (*repository.BrokerIndexRepository)(nil)
var _ BrokerStoreInterface = (*repository.TradingBrokerRepository)(nil)
var _ SessionRepositoryInterface = (*repository.SessionRepository)(nil)

// ============ Внешние коллабораторы ============

// ChainClient читает квитанции транзакций из узла сети
type ChainClient interface {
	TransactionReceipt(ctx context.Context, c models.Chain, txHash string) (*chain.Receipt, error)
}

// BrokerRegistry - публичный реестр broker id
type BrokerRegistry interface {
	Contains(ctx context.Context, brokerID string) (bool, error)
	Invalidate()
}

// DeployTrigger запрашивает пересборку фронтенда DEX
type DeployTrigger interface {
	Request(ctx context.Context, accountID int64, brokerID, reason string) (*deploy.DeployRequested, error)
}

// EventPublisher публикует доменные события
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

var _ ChainClient = (*chain.Client)(nil)
var _ BrokerRegistry = (*registry.Client)(nil)
var _ DeployTrigger = (*deploy.Trigger)(nil)
var _ EventPublisher = (deploy.Publisher)(nil)

// ============ Интерфейсы сервисов для Dependency Injection ============

// GraduationServiceInterface определяет интерфейс сервиса градуации
type GraduationServiceInterface interface {
	VerifyTransaction(ctx context.Context, accountID int64, req *VerifyTransactionRequest) (*VerifyTransactionResult, error)
	RetryProvisioning(ctx context.Context, accountID int64, brokerID string) (*VerifyTransactionResult, error)
	GetStatus(ctx context.Context, accountID int64) (*models.GraduationStatus, error)
	Approve(ctx context.Context, accountID int64) (*models.GraduationStatus, error)
	Deregister(ctx context.Context, brokerID string) error
}

// FeeServiceInterface определяет интерфейс сервиса комиссий
type FeeServiceInterface interface {
	GetFees(ctx context.Context, accountID int64) (*models.FeeConfig, error)
	SetFees(ctx context.Context, accountID int64, makerFeeBps, takerFeeBps int) (*SetFeesResult, error)
}

// AuthServiceInterface определяет интерфейс сервиса аутентификации
type AuthServiceInterface interface {
	Nonce(ctx context.Context, address string) (*NonceChallenge, error)
	Login(ctx context.Context, address, signature string) (*LoginResult, error)
	Authenticate(ctx context.Context, token string) (*models.Account, error)
	Logout(ctx context.Context, token string) error
}

// DeployServiceInterface определяет интерфейс ручной пересборки
type DeployServiceInterface interface {
	RequestDeploy(ctx context.Context, accountID int64) (*deploy.DeployRequested, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ GraduationServiceInterface = (*GraduationService)(nil)
var _ FeeServiceInterface = (*FeeService)(nil)
var _ AuthServiceInterface = (*AuthService)(nil)
var _ DeployServiceInterface = (*DeployService)(nil)
