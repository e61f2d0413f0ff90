package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"dexgrad/internal/chain"
	"dexgrad/internal/config"
	"dexgrad/internal/deploy"
	"dexgrad/internal/models"
	"dexgrad/internal/repository"
	"dexgrad/pkg/retry"
)

// ============ Тестовые адреса ============

const (
	testToken    = "0x1111111111111111111111111111111111111111"
	testReceiver = "0x2222222222222222222222222222222222222222"
	testSender   = "0x3333333333333333333333333333333333333333"
	testOther    = "0x4444444444444444444444444444444444444444"
	testTxHash   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testTxHash2  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// tokens переводит целые токены в минимальные единицы (6 знаков)
func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000))
}

func testChains() map[models.Chain]config.ChainConfig {
	return map[models.Chain]config.ChainConfig{
		models.ChainArbitrum: {
			Chain:           models.ChainArbitrum,
			RPCURL:          "http://rpc.local",
			TokenAddress:    testToken,
			ReceiverAddress: testReceiver,
		},
	}
}

func topicFor(addr string) string {
	return "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(addr, "0x")
}

// transferLog собирает лог ERC-20 Transfer
func transferLog(token, from, to string, amount *big.Int) chain.Log {
	return chain.Log{
		Address: token,
		Topics:  []string{TransferEventTopic, topicFor(from), topicFor(to)},
		Data:    fmt.Sprintf("0x%064x", amount),
	}
}

func successReceipt(logs ...chain.Log) *chain.Receipt {
	return &chain.Receipt{TransactionHash: testTxHash, Status: "0x1", Logs: logs}
}

func fastRegistrarConfig() RegistrarConfig {
	return RegistrarConfig{
		Timeout: time.Second,
		Rollback: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1,
		},
	}
}

func strPtr(s string) *string { return &s }
func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

// ============ Mock AccountRepository ============

type MockAccountRepository struct {
	mu         sync.Mutex
	accounts   map[int64]*models.Account
	nextID     int64
	getErr     error
	pendingErr error
	feesErr    error
	upsertErr  error
	rotateErr  error
	feeWrites  int
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{accounts: make(map[int64]*models.Account), nextID: 1}
}

// add регистрирует ungraduated аккаунт с адресом
func (m *MockAccountRepository) add(address string) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &models.Account{
		ID:              m.nextID,
		Address:         address,
		Nonce:           "nonce-1",
		BrokerID:        "demo",
		GraduationState: models.GraduationStateUngraduated,
		MakerFeeBps:     3,
		TakerFeeBps:     6,
	}
	m.nextID++
	m.accounts[a.ID] = a
	cp := *a
	return &cp
}

func (m *MockAccountRepository) snapshot(id int64) models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.accounts[id]
}

func (m *MockAccountRepository) UpsertNonce(_ context.Context, address, nonce string, d repository.AccountDefaults) (*models.Account, error) {
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Address == address {
			a.Nonce = nonce
			cp := *a
			return &cp, nil
		}
	}
	a := &models.Account{
		ID:              m.nextID,
		Address:         address,
		Nonce:           nonce,
		BrokerID:        d.BrokerID,
		GraduationState: models.GraduationStateUngraduated,
		MakerFeeBps:     d.MakerFeeBps,
		TakerFeeBps:     d.TakerFeeBps,
	}
	m.nextID++
	m.accounts[a.ID] = a
	cp := *a
	return &cp, nil
}

func (m *MockAccountRepository) GetByID(_ context.Context, id int64) (*models.Account, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockAccountRepository) GetByAddress(_ context.Context, address string) (*models.Account, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Address == address {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (m *MockAccountRepository) RotateNonce(_ context.Context, id int64, expected, next string) error {
	if m.rotateErr != nil {
		return m.rotateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.Nonce != expected {
		return repository.ErrNonceMismatch
	}
	a.Nonce = next
	return nil
}

func (m *MockAccountRepository) TransitionToPending(_ context.Context, id int64, from models.GraduationState, brokerID string, brokerIndex int64, fees models.FeeConfig) error {
	if m.pendingErr != nil {
		return m.pendingErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.GraduationState != from {
		return repository.ErrStateConflict
	}
	for _, other := range m.accounts {
		if other.ID != id && other.PreferredBrokerID != nil && *other.PreferredBrokerID == brokerID {
			return repository.ErrPreferredBrokerIDUsed
		}
	}
	a.GraduationState = models.GraduationStatePendingApproval
	a.PreferredBrokerID = strPtr(brokerID)
	a.BrokerIndex = int64Ptr(brokerIndex)
	a.MakerFeeBps = fees.MakerFeeBps
	a.TakerFeeBps = fees.TakerFeeBps
	return nil
}

func (m *MockAccountRepository) TransitionToApproved(_ context.Context, id int64, from models.GraduationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.GraduationState != from || a.PreferredBrokerID == nil {
		return repository.ErrStateConflict
	}
	a.GraduationState = models.GraduationStateApproved
	a.IsGraduated = true
	a.BrokerID = *a.PreferredBrokerID
	return nil
}

func (m *MockAccountRepository) UpdateFees(_ context.Context, id int64, fees models.FeeConfig) error {
	if m.feesErr != nil {
		return m.feesErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || !a.HasBroker() {
		return repository.ErrAccountNotFound
	}
	a.MakerFeeBps = fees.MakerFeeBps
	a.TakerFeeBps = fees.TakerFeeBps
	m.feeWrites++
	return nil
}

// ============ Mock LedgerRepository ============

// MockLedgerRepository повторяет уникальность по tx_hash и account_id
type MockLedgerRepository struct {
	mu        sync.Mutex
	byHash    map[string]*models.GraduationTransaction
	byAccount map[int64]*models.GraduationTransaction
	claimErr  error
	getErr    error
	claims    int
}

func NewMockLedgerRepository() *MockLedgerRepository {
	return &MockLedgerRepository{
		byHash:    make(map[string]*models.GraduationTransaction),
		byAccount: make(map[int64]*models.GraduationTransaction),
	}
}

func (m *MockLedgerRepository) Claim(_ context.Context, tx *models.GraduationTransaction) error {
	if m.claimErr != nil {
		return m.claimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byHash[tx.TxHash]; ok {
		return repository.ErrTxAlreadyClaimed
	}
	if _, ok := m.byAccount[tx.AccountID]; ok {
		return repository.ErrAccountAlreadyClaimed
	}
	cp := *tx
	cp.ConsumedAt = time.Now()
	m.byHash[tx.TxHash] = &cp
	m.byAccount[tx.AccountID] = &cp
	m.claims++
	return nil
}

func (m *MockLedgerRepository) GetByTxHash(_ context.Context, txHash string) (*models.GraduationTransaction, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.byHash[txHash]; ok {
		cp := *tx
		return &cp, nil
	}
	return nil, repository.ErrClaimNotFound
}

func (m *MockLedgerRepository) GetByAccount(_ context.Context, accountID int64) (*models.GraduationTransaction, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.byAccount[accountID]; ok {
		cp := *tx
		return &cp, nil
	}
	return nil, repository.ErrClaimNotFound
}

// ============ Mock BrokerIndexRepository ============

type MockBrokerIndexRepository struct {
	mu    sync.Mutex
	last  int64
	err   error
	calls int
}

func (m *MockBrokerIndexRepository) NextIndex(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	m.last++
	return m.last, nil
}

// ============ Mock BrokerStore ============

// MockBrokerStore - хранилище брокеров с инъекцией сбоев
//
// deleteFailures - сколько первых Delete вернут deleteErr.
type MockBrokerStore struct {
	mu             sync.Mutex
	name           string
	records        map[string]*models.BrokerRecord
	getErr         error
	insertErr      error
	deleteErr      error
	deleteFailures int
	updateErr      error
	inserts        int
	deletes        int
	feeUpdates     int
}

func NewMockBrokerStore(name string) *MockBrokerStore {
	return &MockBrokerStore{name: name, records: make(map[string]*models.BrokerRecord)}
}

func (m *MockBrokerStore) put(rec *models.BrokerRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.BrokerID] = &cp
}

func (m *MockBrokerStore) has(brokerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[brokerID]
	return ok
}

func (m *MockBrokerStore) Name() string { return m.name }

func (m *MockBrokerStore) Get(_ context.Context, brokerID string) (*models.BrokerRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[brokerID]
	if !ok {
		return nil, repository.ErrBrokerNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MockBrokerStore) Insert(_ context.Context, rec *models.BrokerRecord) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.BrokerID]; ok {
		return repository.ErrBrokerExists
	}
	cp := *rec
	m.records[rec.BrokerID] = &cp
	m.inserts++
	return nil
}

func (m *MockBrokerStore) Delete(_ context.Context, brokerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil && (m.deleteFailures < 0 || m.deletes <= m.deleteFailures) {
		return m.deleteErr
	}
	if _, ok := m.records[brokerID]; !ok {
		return repository.ErrBrokerNotFound
	}
	delete(m.records, brokerID)
	return nil
}

func (m *MockBrokerStore) UpdateFees(_ context.Context, brokerID string, fees models.FeeConfig) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[brokerID]
	if !ok {
		return repository.ErrBrokerNotFound
	}
	rec.MakerFeeBps = fees.MakerFeeBps
	rec.TakerFeeBps = fees.TakerFeeBps
	m.feeUpdates++
	return nil
}

// ============ Mock SessionRepository ============

type MockSessionRepository struct {
	mu        sync.Mutex
	sessions  map[string]*models.Session
	createErr error
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{sessions: make(map[string]*models.Session)}
}

func (m *MockSessionRepository) Create(_ context.Context, s *models.Session) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.Token] = &cp
	return nil
}

func (m *MockSessionRepository) GetActive(_ context.Context, token string, now time.Time) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok || s.Expired(now) {
		return nil, repository.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSessionRepository) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[token]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(m.sessions, token)
	return nil
}

func (m *MockSessionRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for token, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

// ============ Mock ChainClient ============

type MockChainClient struct {
	mu       sync.Mutex
	receipts map[string]*chain.Receipt
	err      error
	calls    int
}

func NewMockChainClient() *MockChainClient {
	return &MockChainClient{receipts: make(map[string]*chain.Receipt)}
}

func (m *MockChainClient) TransactionReceipt(ctx context.Context, _ models.Chain, txHash string) (*chain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.receipts[txHash], nil
}

// ============ Mock BrokerRegistry ============

type MockBrokerRegistry struct {
	mu          sync.Mutex
	ids         map[string]struct{}
	err         error
	invalidated int
	calls       int
}

func NewMockBrokerRegistry(ids ...string) *MockBrokerRegistry {
	m := &MockBrokerRegistry{ids: make(map[string]struct{})}
	for _, id := range ids {
		m.ids[id] = struct{}{}
	}
	return m
}

func (m *MockBrokerRegistry) Contains(_ context.Context, brokerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.ids[strings.ToLower(brokerID)]
	return ok, nil
}

func (m *MockBrokerRegistry) add(id string) {
	m.mu.Lock()
	m.ids[id] = struct{}{}
	m.mu.Unlock()
}

func (m *MockBrokerRegistry) Invalidate() {
	m.mu.Lock()
	m.invalidated++
	m.mu.Unlock()
}

// ============ Mock DeployTrigger ============

type MockDeployTrigger struct {
	mu       sync.Mutex
	err      error
	requests []deploy.DeployRequested
}

func (m *MockDeployTrigger) Request(_ context.Context, accountID int64, brokerID, reason string) (*deploy.DeployRequested, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := deploy.DeployRequested{AccountID: accountID, BrokerID: brokerID, Reason: reason, RequestedAt: time.Now()}
	m.requests = append(m.requests, ev)
	return &ev, nil
}

// ============ Mock EventPublisher ============

type publishedEvent struct {
	topic string
	key   string
	event any
}

type MockEventPublisher struct {
	mu     sync.Mutex
	err    error
	events []publishedEvent
}

func (m *MockEventPublisher) Publish(_ context.Context, topic, key string, event any) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{topic: topic, key: key, event: event})
	return nil
}
