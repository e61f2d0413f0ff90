package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dexgrad/internal/models"
	"dexgrad/internal/repository"
	"dexgrad/pkg/crypto"
	"dexgrad/pkg/utils"
)

// AuthConfig - параметры входа подписью кошелька
type AuthConfig struct {
	SessionTTL   time.Duration
	LoginMessage string // первая строка сообщения для подписи
	Defaults     repository.AccountDefaults
}

// NonceChallenge - сообщение, которое кошелек должен подписать
type NonceChallenge struct {
	Address string `json:"address"`
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// LoginResult - выданная сессия
type LoginResult struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Account   *models.Account `json:"account"`
}

// AuthService - вход по подписи personal_sign (EIP-191)
//
// Nonce одноразовый: после успешного входа он заменяется, и то же
// подписанное сообщение повторно не принимается.
type AuthService struct {
	accounts AccountRepositoryInterface
	sessions SessionRepositoryInterface
	cfg      AuthConfig
	now      func() time.Time
	log      *utils.Logger
}

// NewAuthService создает сервис аутентификации
func NewAuthService(accounts AccountRepositoryInterface, sessions SessionRepositoryInterface, cfg AuthConfig) *AuthService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.LoginMessage == "" {
		cfg.LoginMessage = "Sign in to DEX dashboard"
	}
	return &AuthService{
		accounts: accounts,
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
		log:      utils.L().WithComponent("auth"),
	}
}

// Nonce создает аккаунт при первом обращении и выдает новый nonce
func (s *AuthService) Nonce(ctx context.Context, address string) (*NonceChallenge, error) {
	if err := utils.ValidateEVMAddress(address); err != nil {
		return nil, newErrorf(CodeInvalidRequest, err, "Invalid wallet address")
	}
	address = utils.NormalizeAddress(address)

	nonce := uuid.NewString()
	account, err := s.accounts.UpsertNonce(ctx, address, nonce, s.cfg.Defaults)
	if err != nil {
		return nil, newError(CodeInternal, err)
	}

	return &NonceChallenge{
		Address: account.Address,
		Nonce:   account.Nonce,
		Message: s.message(account.Address, account.Nonce),
	}, nil
}

// Login проверяет подпись текущего nonce и открывает сессию
func (s *AuthService) Login(ctx context.Context, address, signature string) (*LoginResult, error) {
	if err := utils.ValidateEVMAddress(address); err != nil {
		return nil, newErrorf(CodeInvalidRequest, err, "Invalid wallet address")
	}
	if err := utils.ValidateSignature(signature); err != nil {
		return nil, newErrorf(CodeInvalidRequest, err, "Invalid signature format")
	}
	address = utils.NormalizeAddress(address)
	log := s.log.With(utils.Address(address))

	account, err := s.accounts.GetByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, newErrorf(CodeUnauthorized, err, "Request a nonce first")
		}
		return nil, newError(CodeInternal, err)
	}
	if account.Nonce == "" {
		return nil, newErrorf(CodeUnauthorized, nil, "Request a nonce first")
	}

	if err := crypto.VerifyPersonalSignature(address, s.message(address, account.Nonce), signature); err != nil {
		log.Info("login rejected", utils.Err(err))
		return nil, newErrorf(CodeUnauthorized, err, "Signature does not match wallet")
	}

	// Nonce сжигается до выдачи сессии: параллельный вход с той же подписью не пройдет
	if err := s.accounts.RotateNonce(ctx, account.ID, account.Nonce, uuid.NewString()); err != nil {
		if errors.Is(err, repository.ErrNonceMismatch) {
			return nil, newErrorf(CodeUnauthorized, err, "Nonce already used, request a new one")
		}
		return nil, newError(CodeInternal, err)
	}

	now := s.now().UTC()
	session := &models.Session{
		Token:     uuid.NewString(),
		AccountID: account.ID,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, newError(CodeInternal, err)
	}

	log.Info("wallet logged in", utils.AccountID(account.ID))
	return &LoginResult{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Account:   account,
	}, nil
}

// Authenticate возвращает аккаунт по токену сессии
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Account, error) {
	token = strings.TrimSpace(token)
	if _, err := uuid.Parse(token); err != nil {
		return nil, newError(CodeUnauthorized, err)
	}

	session, err := s.sessions.GetActive(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, newErrorf(CodeUnauthorized, err, "Session expired, sign in again")
		}
		return nil, newError(CodeInternal, err)
	}

	account, err := s.accounts.GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, newError(CodeUnauthorized, err)
		}
		return nil, newError(CodeInternal, err)
	}
	return account, nil
}

// Logout закрывает сессию; повторный logout не ошибка
func (s *AuthService) Logout(ctx context.Context, token string) error {
	err := s.sessions.Delete(ctx, strings.TrimSpace(token))
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return newError(CodeInternal, err)
	}
	return nil
}

// RunSessionJanitor периодически удаляет истекшие сессии до отмены ctx
func (s *AuthService) RunSessionJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sessions.DeleteExpired(ctx, s.now())
			if err != nil {
				s.log.Warn("failed to delete expired sessions", utils.Err(err))
				continue
			}
			if n > 0 {
				s.log.Debug("expired sessions deleted", utils.Int64("count", n))
			}
		}
	}
}

// message - текст для personal_sign
func (s *AuthService) message(address, nonce string) string {
	return fmt.Sprintf("%s\n\nAddress: %s\nNonce: %s", s.cfg.LoginMessage, address, nonce)
}
