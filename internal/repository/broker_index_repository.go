package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrCounterMissing - строка счетчика не инициализирована миграцией
var ErrCounterMissing = errors.New("broker index counter row missing")

// BrokerIndexRepository - глобальный счетчик broker index
//
// Инкремент выполняется одним UPDATE ... RETURNING: строка блокируется
// на время оператора, поэтому параллельные вызовы (в т.ч. с разных
// инстансов) получают разные значения. Выданный индекс не переиспользуется.
type BrokerIndexRepository struct {
	db *sql.DB
}

// NewBrokerIndexRepository создает новый экземпляр репозитория
func NewBrokerIndexRepository(db *sql.DB) *BrokerIndexRepository {
	return &BrokerIndexRepository{db: db}
}

// NextIndex выделяет следующий индекс
func (r *BrokerIndexRepository) NextIndex(ctx context.Context) (int64, error) {
	query := `UPDATE broker_index_counter SET value = value + 1 WHERE id = 1 RETURNING value`

	var value int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrCounterMissing
		}
		return 0, fmt.Errorf("allocate broker index: %w", err)
	}
	return value, nil
}
