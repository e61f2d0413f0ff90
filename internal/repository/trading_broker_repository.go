package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dexgrad/internal/models"
)

// Ошибки хранилища брокеров
var (
	ErrBrokerNotFound = errors.New("broker not found")
	ErrBrokerExists   = errors.New("broker already exists")
)

// TradingBrokerRepository - таблица broker во внешнем хранилище торговой
// инфраструктуры (MySQL). Один экземпляр на хранилище: primary и partner.
type TradingBrokerRepository struct {
	db   *sql.DB
	name string
}

// NewTradingBrokerRepository создает репозиторий для хранилища name
func NewTradingBrokerRepository(db *sql.DB, name string) *TradingBrokerRepository {
	return &TradingBrokerRepository{db: db, name: name}
}

// Name возвращает имя хранилища (для логов и алертов)
func (r *TradingBrokerRepository) Name() string {
	return r.name
}

// Get возвращает запись брокера
func (r *TradingBrokerRepository) Get(ctx context.Context, brokerID string) (*models.BrokerRecord, error) {
	query := `
		SELECT broker_id, broker_index, admin_account_id, maker_fee_bps, taker_fee_bps, created_at
		FROM broker
		WHERE broker_id = ?`

	rec := &models.BrokerRecord{}
	err := r.db.QueryRowContext(ctx, query, brokerID).Scan(
		&rec.BrokerID,
		&rec.BrokerIndex,
		&rec.AdminAccountID,
		&rec.MakerFeeBps,
		&rec.TakerFeeBps,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBrokerNotFound
		}
		return nil, fmt.Errorf("%s store: get broker %s: %w", r.name, brokerID, err)
	}
	return rec, nil
}

// Insert создает запись брокера
//
// Дубликат broker_id или broker_index возвращает ErrBrokerExists.
func (r *TradingBrokerRepository) Insert(ctx context.Context, rec *models.BrokerRecord) error {
	query := `
		INSERT INTO broker (broker_id, broker_index, admin_account_id, maker_fee_bps, taker_fee_bps)
		VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		rec.BrokerID,
		rec.BrokerIndex,
		rec.AdminAccountID,
		rec.MakerFeeBps,
		rec.TakerFeeBps,
	)
	if err != nil {
		if isMySQLDuplicate(err) {
			return ErrBrokerExists
		}
		return fmt.Errorf("%s store: insert broker %s: %w", r.name, rec.BrokerID, err)
	}
	return nil
}

// Delete удаляет запись брокера
func (r *TradingBrokerRepository) Delete(ctx context.Context, brokerID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM broker WHERE broker_id = ?`, brokerID)
	if err != nil {
		return fmt.Errorf("%s store: delete broker %s: %w", r.name, brokerID, err)
	}
	return requireRow(result, ErrBrokerNotFound)
}

// UpdateFees обновляет комиссии брокера
//
// DSN использует clientFoundRows, поэтому запись с теми же значениями
// не считается отсутствующей.
func (r *TradingBrokerRepository) UpdateFees(ctx context.Context, brokerID string, fees models.FeeConfig) error {
	query := `UPDATE broker SET maker_fee_bps = ?, taker_fee_bps = ? WHERE broker_id = ?`

	result, err := r.db.ExecContext(ctx, query, fees.MakerFeeBps, fees.TakerFeeBps, brokerID)
	if err != nil {
		return fmt.Errorf("%s store: update fees %s: %w", r.name, brokerID, err)
	}
	return requireRow(result, ErrBrokerNotFound)
}
