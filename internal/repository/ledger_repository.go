package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dexgrad/internal/models"
)

// Ошибки леджера
var (
	ErrTxAlreadyClaimed      = errors.New("transaction hash already claimed")
	ErrAccountAlreadyClaimed = errors.New("account already claimed a graduation payment")
	ErrClaimNotFound         = errors.New("graduation claim not found")
)

// Имена constraint'ов таблицы graduation_transactions
const (
	ledgerTxHashConstraint  = "graduation_transactions_pkey"
	ledgerAccountConstraint = "graduation_transactions_account_id_key"
)

const ledgerColumns = `tx_hash, chain, account_id, broker_id, amount, consumed_at`

// LedgerRepository - леджер потраченных платежей
//
// Только вставка и чтение: записи не изменяются и не удаляются,
// даже если провижининг после claim не удался.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository создает новый экземпляр репозитория
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Claim атомарно помечает хеш как потраченный
//
// Первый писатель побеждает: повторный claim того же хеша (любым аккаунтом)
// возвращает ErrTxAlreadyClaimed, второй платеж того же аккаунта -
// ErrAccountAlreadyClaimed.
func (r *LedgerRepository) Claim(ctx context.Context, tx *models.GraduationTransaction) error {
	query := `
		INSERT INTO graduation_transactions (tx_hash, chain, account_id, broker_id, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING consumed_at`

	err := r.db.QueryRowContext(ctx, query,
		tx.TxHash,
		string(tx.Chain),
		tx.AccountID,
		tx.BrokerID,
		tx.Amount,
	).Scan(&tx.ConsumedAt)

	if err != nil {
		if constraint, ok := pgUniqueConstraint(err); ok {
			if constraint == ledgerAccountConstraint {
				return ErrAccountAlreadyClaimed
			}
			return ErrTxAlreadyClaimed
		}
		return fmt.Errorf("claim %s: %w", tx.TxHash, err)
	}
	return nil
}

// GetByTxHash возвращает запись по хешу
func (r *LedgerRepository) GetByTxHash(ctx context.Context, txHash string) (*models.GraduationTransaction, error) {
	query := `SELECT ` + ledgerColumns + ` FROM graduation_transactions WHERE tx_hash = $1`
	return r.getOne(ctx, query, txHash)
}

// GetByAccount возвращает потраченный платеж аккаунта (для повторного провижининга)
func (r *LedgerRepository) GetByAccount(ctx context.Context, accountID int64) (*models.GraduationTransaction, error) {
	query := `SELECT ` + ledgerColumns + ` FROM graduation_transactions WHERE account_id = $1`
	return r.getOne(ctx, query, accountID)
}

func (r *LedgerRepository) getOne(ctx context.Context, query string, arg any) (*models.GraduationTransaction, error) {
	tx := &models.GraduationTransaction{}
	var chain string

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&tx.TxHash,
		&chain,
		&tx.AccountID,
		&tx.BrokerID,
		&tx.Amount,
		&tx.ConsumedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClaimNotFound
		}
		return nil, err
	}

	tx.Chain = models.Chain(chain)
	return tx, nil
}
