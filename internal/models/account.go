package models

import "time"

// Account - аккаунт владельца DEX, привязанный к кошельку
type Account struct {
	ID                int64           `json:"id" db:"id"`
	Address           string          `json:"address" db:"address"`                                   // lowercase 0x адрес кошелька
	Nonce             string          `json:"-" db:"nonce"`                                           // challenge для логина
	BrokerID          string          `json:"broker_id" db:"broker_id"`                               // текущий (demo до одобрения)
	PreferredBrokerID *string         `json:"preferred_broker_id,omitempty" db:"preferred_broker_id"` // запрошенный при градуации
	GraduationState   GraduationState `json:"graduation_state" db:"graduation_state"`
	IsGraduated       bool            `json:"is_graduated" db:"is_graduated"` // true только в approved
	BrokerIndex       *int64          `json:"broker_index,omitempty" db:"broker_index"`
	MakerFeeBps       int             `json:"maker_fee_bps" db:"maker_fee_bps"`
	TakerFeeBps       int             `json:"taker_fee_bps" db:"taker_fee_bps"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// HasBroker - у аккаунта есть собственный broker (pending или approved)
func (a *Account) HasBroker() bool {
	return a.GraduationState == GraduationStatePendingApproval ||
		a.GraduationState == GraduationStateApproved
}

// Fees возвращает текущие комиссии аккаунта
func (a *Account) Fees() FeeConfig {
	return FeeConfig{MakerFeeBps: a.MakerFeeBps, TakerFeeBps: a.TakerFeeBps}
}

// Session - сессия после логина подписью кошелька
type Session struct {
	Token     string    `json:"token" db:"token"`
	AccountID int64     `json:"account_id" db:"account_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Expired - сессия истекла к моменту now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
