package models

import "time"

// Имена хранилищ брокеров
const (
	StorePrimary = "primary" // основное хранилище торговой инфраструктуры, применяет комиссии
	StorePartner = "partner" // партнерское хранилище, только идентичность
)

// BrokerRecord - запись брокера в хранилище торговой инфраструктуры
type BrokerRecord struct {
	BrokerID       string    `json:"broker_id" db:"broker_id"`
	BrokerIndex    int64     `json:"broker_index" db:"broker_index"`
	AdminAccountID int64     `json:"admin_account_id" db:"admin_account_id"`
	MakerFeeBps    int       `json:"maker_fee_bps" db:"maker_fee_bps"`
	TakerFeeBps    int       `json:"taker_fee_bps" db:"taker_fee_bps"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
