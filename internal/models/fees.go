package models

import (
	"errors"
	"fmt"
)

// Границы комиссий в базисных пунктах (1 bps = 0.01%)
const (
	MinMakerFeeBps = 0
	MaxMakerFeeBps = 15
	MinTakerFeeBps = 3
	MaxTakerFeeBps = 15
)

// ErrFeeOutOfRange - комиссия вне допустимого диапазона
var ErrFeeOutOfRange = errors.New("fee out of range")

// FeeConfig - комиссии брокера
type FeeConfig struct {
	MakerFeeBps int `json:"maker_fee_bps" db:"maker_fee_bps"`
	TakerFeeBps int `json:"taker_fee_bps" db:"taker_fee_bps"`
}

// ValidateFees проверяет границы комиссий
//
// Единственная точка проверки: вызывается при записи через API,
// при провижининге с дефолтами и при загрузке конфигурации.
func ValidateFees(makerFeeBps, takerFeeBps int) error {
	if makerFeeBps < MinMakerFeeBps || makerFeeBps > MaxMakerFeeBps {
		return fmt.Errorf("%w: maker fee %d bps, allowed [%d, %d]",
			ErrFeeOutOfRange, makerFeeBps, MinMakerFeeBps, MaxMakerFeeBps)
	}
	if takerFeeBps < MinTakerFeeBps || takerFeeBps > MaxTakerFeeBps {
		return fmt.Errorf("%w: taker fee %d bps, allowed [%d, %d]",
			ErrFeeOutOfRange, takerFeeBps, MinTakerFeeBps, MaxTakerFeeBps)
	}
	return nil
}

// Validate проверяет конфигурацию комиссий
func (f FeeConfig) Validate() error {
	return ValidateFees(f.MakerFeeBps, f.TakerFeeBps)
}
