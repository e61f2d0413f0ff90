package models

import "time"

// GraduationState - этап жизненного цикла градуации
type GraduationState string

// Состояния градуации
const (
	GraduationStateUngraduated     GraduationState = "ungraduated"      // demo broker
	GraduationStatePendingApproval GraduationState = "pending_approval" // broker создан, ждет оператора
	GraduationStateApproved        GraduationState = "approved"         // терминальное
)

func (s GraduationState) String() string {
	return string(s)
}

// GraduationTransaction - потраченный платеж (запись леджера)
//
// Вставляется один раз и больше не изменяется.
type GraduationTransaction struct {
	TxHash     string    `json:"tx_hash" db:"tx_hash"` // lowercase
	Chain      Chain     `json:"chain" db:"chain"`
	AccountID  int64     `json:"account_id" db:"account_id"`
	BrokerID   string    `json:"broker_id" db:"broker_id"` // запрошенный при claim
	Amount     string    `json:"amount" db:"amount"`       // в минимальных единицах токена, NUMERIC(78,0)
	ConsumedAt time.Time `json:"consumed_at" db:"consumed_at"`
}

// GraduationStatus - статус для API
type GraduationStatus struct {
	State             GraduationState `json:"state"`
	PreferredBrokerID *string         `json:"preferred_broker_id"`
	CurrentBrokerID   string          `json:"current_broker_id"`
	Approved          bool            `json:"approved"`
	BrokerIndex       *int64          `json:"broker_index,omitempty"`
	// Хеш потраченного платежа, если есть
	TxHash            *string         `json:"tx_hash,omitempty"`
	// Платеж потрачен, broker не создан
	NeedsRetry        bool            `json:"needs_retry"`
}
