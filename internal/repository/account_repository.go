package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dexgrad/internal/models"
)

// Ошибки репозитория аккаунтов
var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrNonceMismatch         = errors.New("nonce already used")
	ErrStateConflict         = errors.New("graduation state changed concurrently")
	ErrPreferredBrokerIDUsed = errors.New("preferred broker id already used by another account")
)

const accountColumns = `id, address, nonce, broker_id, preferred_broker_id, graduation_state,
		is_graduated, broker_index, maker_fee_bps, taker_fee_bps, created_at, updated_at`

// AccountDefaults - значения для нового аккаунта
type AccountDefaults struct {
	BrokerID    string // demo broker
	MakerFeeBps int
	TakerFeeBps int
}

// AccountRepository - работа с таблицей accounts
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository создает новый экземпляр репозитория
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// UpsertNonce создает аккаунт для адреса или обновляет nonce существующего
//
// Адрес должен быть уже нормализован (lowercase).
func (r *AccountRepository) UpsertNonce(ctx context.Context, address, nonce string, defaults AccountDefaults) (*models.Account, error) {
	query := `
		INSERT INTO accounts (address, nonce, broker_id, graduation_state, maker_fee_bps, taker_fee_bps)
		VALUES ($1, $2, $3, 'ungraduated', $4, $5)
		ON CONFLICT (address) DO UPDATE
		SET nonce = EXCLUDED.nonce, updated_at = NOW()
		RETURNING ` + accountColumns

	row := r.db.QueryRowContext(ctx, query,
		address,
		nonce,
		defaults.BrokerID,
		defaults.MakerFeeBps,
		defaults.TakerFeeBps,
	)
	account, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("upsert account %s: %w", address, err)
	}
	return account, nil
}

// GetByID возвращает аккаунт по ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// GetByAddress возвращает аккаунт по адресу кошелька
func (r *AccountRepository) GetByAddress(ctx context.Context, address string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE address = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// RotateNonce заменяет nonce, только если текущий равен expected
//
// Повторное использование подписанного сообщения возвращает ErrNonceMismatch.
func (r *AccountRepository) RotateNonce(ctx context.Context, id int64, expected, next string) error {
	query := `
		UPDATE accounts
		SET nonce = $1, updated_at = NOW()
		WHERE id = $2 AND nonce = $3`

	result, err := r.db.ExecContext(ctx, query, next, id, expected)
	if err != nil {
		return err
	}
	return requireRow(result, ErrNonceMismatch)
}

// TransitionToPending фиксирует созданный broker и переводит аккаунт в pending_approval
//
// Compare-and-set: обновление проходит, только если состояние все еще from.
func (r *AccountRepository) TransitionToPending(ctx context.Context, id int64, from models.GraduationState, brokerID string, brokerIndex int64, fees models.FeeConfig) error {
	query := `
		UPDATE accounts
		SET graduation_state = 'pending_approval',
		    preferred_broker_id = $1,
		    broker_index = $2,
		    maker_fee_bps = $3,
		    taker_fee_bps = $4,
		    updated_at = NOW()
		WHERE id = $5 AND graduation_state = $6`

	result, err := r.db.ExecContext(ctx, query,
		brokerID,
		brokerIndex,
		fees.MakerFeeBps,
		fees.TakerFeeBps,
		id,
		string(from),
	)
	if err != nil {
		if _, ok := pgUniqueConstraint(err); ok {
			return ErrPreferredBrokerIDUsed
		}
		return err
	}
	return requireRow(result, ErrStateConflict)
}

// TransitionToApproved переводит аккаунт в approved и делает preferred broker текущим
func (r *AccountRepository) TransitionToApproved(ctx context.Context, id int64, from models.GraduationState) error {
	query := `
		UPDATE accounts
		SET graduation_state = 'approved',
		    is_graduated = TRUE,
		    broker_id = preferred_broker_id,
		    updated_at = NOW()
		WHERE id = $1 AND graduation_state = $2 AND preferred_broker_id IS NOT NULL`

	result, err := r.db.ExecContext(ctx, query, id, string(from))
	if err != nil {
		return err
	}
	return requireRow(result, ErrStateConflict)
}

// UpdateFees сохраняет комиссии аккаунта с собственным broker
func (r *AccountRepository) UpdateFees(ctx context.Context, id int64, fees models.FeeConfig) error {
	query := `
		UPDATE accounts
		SET maker_fee_bps = $1, taker_fee_bps = $2, updated_at = NOW()
		WHERE id = $3 AND graduation_state <> 'ungraduated'`

	result, err := r.db.ExecContext(ctx, query, fees.MakerFeeBps, fees.TakerFeeBps, id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrAccountNotFound)
}

// scanAccount сканирует строку в Account
func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	a := &models.Account{}
	var (
		preferred   sql.NullString
		brokerIndex sql.NullInt64
		state       string
	)

	err := row.Scan(
		&a.ID,
		&a.Address,
		&a.Nonce,
		&a.BrokerID,
		&preferred,
		&state,
		&a.IsGraduated,
		&brokerIndex,
		&a.MakerFeeBps,
		&a.TakerFeeBps,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.GraduationState = models.GraduationState(state)
	if preferred.Valid {
		a.PreferredBrokerID = &preferred.String
	}
	if brokerIndex.Valid {
		a.BrokerIndex = &brokerIndex.Int64
	}
	return a, nil
}

// requireRow возвращает notFound, если запрос не затронул ни одной строки
func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
