package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"dexgrad/internal/api/middleware"
	"dexgrad/internal/deploy"
	"dexgrad/internal/models"
	"dexgrad/internal/service"
)

// ErrMockDatabase ошибка для тестов, не из закрытого набора
var ErrMockDatabase = errors.New("mock database error")

func testAccount() *models.Account {
	return &models.Account{
		ID:              7,
		Address:         "0x3333333333333333333333333333333333333333",
		BrokerID:        "demo",
		GraduationState: models.GraduationStateUngraduated,
		MakerFeeBps:     3,
		TakerFeeBps:     6,
	}
}

// withAccount возвращает запрос с аккаунтом в context, как после middleware.Auth
func withAccount(r *http.Request, account *models.Account) *http.Request {
	return r.WithContext(middleware.WithAccount(r.Context(), account))
}

// ============ Mock Graduation Service ============

// MockGraduationService мок для GraduationServiceInterface
type MockGraduationService struct {
	mu sync.Mutex

	verifyResult *service.VerifyTransactionResult
	verifyErr    error
	retryErr     error
	statusErr    error
	approveErr   error
	deregErr     error

	verifyCalls  []*service.VerifyTransactionRequest
	retryCalls   []string
	approved     []int64
	deregistered []string
	lastAccount  int64
}

// NewMockGraduationService создает мок с успешными ответами
func NewMockGraduationService() *MockGraduationService {
	return &MockGraduationService{
		verifyResult: &service.VerifyTransactionResult{
			Success:     true,
			Message:     "Broker created, waiting for approval",
			Amount:      "1000",
			BrokerID:    "mydex",
			BrokerIndex: 1,
			State:       models.GraduationStatePendingApproval,
		},
	}
}

func (m *MockGraduationService) VerifyTransaction(_ context.Context, accountID int64, req *service.VerifyTransactionRequest) (*service.VerifyTransactionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastAccount = accountID
	m.verifyCalls = append(m.verifyCalls, req)
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return m.verifyResult, nil
}

func (m *MockGraduationService) RetryProvisioning(_ context.Context, accountID int64, brokerID string) (*service.VerifyTransactionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastAccount = accountID
	m.retryCalls = append(m.retryCalls, brokerID)
	if m.retryErr != nil {
		return nil, m.retryErr
	}
	return m.verifyResult, nil
}

func (m *MockGraduationService) GetStatus(_ context.Context, accountID int64) (*models.GraduationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastAccount = accountID
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return &models.GraduationStatus{
		State:           models.GraduationStateUngraduated,
		CurrentBrokerID: "demo",
	}, nil
}

func (m *MockGraduationService) Approve(_ context.Context, accountID int64) (*models.GraduationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.approveErr != nil {
		return nil, m.approveErr
	}
	m.approved = append(m.approved, accountID)
	preferred := "mydex"
	return &models.GraduationStatus{
		State:             models.GraduationStateApproved,
		PreferredBrokerID: &preferred,
		CurrentBrokerID:   "mydex",
		Approved:          true,
	}, nil
}

func (m *MockGraduationService) Deregister(_ context.Context, brokerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deregErr != nil {
		return m.deregErr
	}
	m.deregistered = append(m.deregistered, brokerID)
	return nil
}

// ============ Mock Fee Service ============

// MockFeeService мок для FeeServiceInterface
type MockFeeService struct {
	mu sync.Mutex

	fees     models.FeeConfig
	getErr   error
	setErr   error
	deferred time.Duration // >0: пересборка отложена cooldown
	setCalls int
}

// NewMockFeeService создает мок с комиссиями 3/6
func NewMockFeeService() *MockFeeService {
	return &MockFeeService{fees: models.FeeConfig{MakerFeeBps: 3, TakerFeeBps: 6}}
}

func (m *MockFeeService) GetFees(_ context.Context, _ int64) (*models.FeeConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	fees := m.fees
	return &fees, nil
}

func (m *MockFeeService) SetFees(_ context.Context, _ int64, makerFeeBps, takerFeeBps int) (*service.SetFeesResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setCalls++
	if m.setErr != nil {
		return nil, m.setErr
	}
	m.fees = models.FeeConfig{MakerFeeBps: makerFeeBps, TakerFeeBps: takerFeeBps}
	return &service.SetFeesResult{
		Fees:               m.fees,
		DeploymentDeferred: m.deferred > 0,
		RetryAfter:         m.deferred,
	}, nil
}

// ============ Mock Auth Service ============

// MockAuthService мок для AuthServiceInterface
type MockAuthService struct {
	mu sync.Mutex

	tokens    map[string]*models.Account
	nonceErr  error
	loginErr  error
	loggedOut []string
}

// NewMockAuthService создает мок с одним действующим токеном "valid-token"
func NewMockAuthService() *MockAuthService {
	return &MockAuthService{
		tokens: map[string]*models.Account{"valid-token": testAccount()},
	}
}

func (m *MockAuthService) Nonce(_ context.Context, address string) (*service.NonceChallenge, error) {
	if m.nonceErr != nil {
		return nil, m.nonceErr
	}
	return &service.NonceChallenge{Address: address, Nonce: "n-1", Message: "Sign in\n\nAddress: " + address + "\nNonce: n-1"}, nil
}

func (m *MockAuthService) Login(_ context.Context, address, _ string) (*service.LoginResult, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	account := testAccount()
	account.Address = address
	return &service.LoginResult{Token: "new-token", ExpiresAt: time.Now().Add(time.Hour), Account: account}, nil
}

func (m *MockAuthService) Authenticate(_ context.Context, token string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.tokens[token]
	if !ok {
		return nil, &service.Error{Code: service.CodeUnauthorized, Message: "Unauthorized"}
	}
	return account, nil
}

func (m *MockAuthService) Logout(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tokens, token)
	m.loggedOut = append(m.loggedOut, token)
	return nil
}

// ============ Mock Deploy Service ============

// MockDeployService мок для DeployServiceInterface
type MockDeployService struct {
	err   error
	calls int
}

func (m *MockDeployService) RequestDeploy(_ context.Context, accountID int64) (*deploy.DeployRequested, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &deploy.DeployRequested{
		AccountID:   accountID,
		BrokerID:    "demo",
		Reason:      deploy.ReasonManual,
		RequestedAt: time.Now(),
	}, nil
}

// Проверяем, что моки реализуют интерфейсы
var _ service.GraduationServiceInterface = (*MockGraduationService)(nil)
var _ service.FeeServiceInterface = (*MockFeeService)(nil)
var _ service.AuthServiceInterface = (*MockAuthService)(nil)
var _ service.DeployServiceInterface = (*MockDeployService)(nil)
