package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// validator.go - валидация входных данных градуации
//
// Все проверки выполняются до любых сетевых вызовов и записей в хранилища.

const (
	// Границы длины broker id
	BrokerIDMinLength = 3
	BrokerIDMaxLength = 15

	// Зарезервированная подстрока по умолчанию
	DefaultReservedBrokerSubstring = "orderly"
)

var (
	txHashPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	addressPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	brokerIDPattern  = regexp.MustCompile(`^[a-z0-9_-]+$`)
	signaturePattern = regexp.MustCompile(`^0x[0-9a-fA-F]{130}$`)
)

var (
	ErrInvalidTxHash    = errors.New("invalid transaction hash")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidBrokerID  = errors.New("invalid broker id")
	ErrInvalidSignature = errors.New("invalid signature")
)

// ValidateTxHash проверяет формат хеша транзакции (0x + 64 hex, регистр не важен)
func ValidateTxHash(hash string) error {
	if !txHashPattern.MatchString(hash) {
		return fmt.Errorf("%w: expected 0x followed by 64 hex characters", ErrInvalidTxHash)
	}
	return nil
}

// NormalizeTxHash приводит хеш к нижнему регистру
func NormalizeTxHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

// ValidateEVMAddress проверяет формат EVM адреса
func ValidateEVMAddress(addr string) error {
	if !addressPattern.MatchString(addr) {
		return fmt.Errorf("%w: expected 0x followed by 40 hex characters", ErrInvalidAddress)
	}
	return nil
}

// NormalizeAddress приводит адрес к нижнему регистру без пробелов
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ValidateSignature проверяет формат подписи (65 байт в hex)
func ValidateSignature(sig string) error {
	if !signaturePattern.MatchString(sig) {
		return fmt.Errorf("%w: expected 0x followed by 130 hex characters", ErrInvalidSignature)
	}
	return nil
}

// ValidateBrokerID проверяет broker id
//
// Правила: только a-z, 0-9, '-' и '_', длина 3..15,
// не содержит зарезервированную подстроку платформы.
// Пустой reserved отключает проверку подстроки.
func ValidateBrokerID(id, reserved string) error {
	if id == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidBrokerID)
	}
	if len(id) < BrokerIDMinLength || len(id) > BrokerIDMaxLength {
		return fmt.Errorf("%w: length must be between %d and %d", ErrInvalidBrokerID, BrokerIDMinLength, BrokerIDMaxLength)
	}
	if !brokerIDPattern.MatchString(id) {
		return fmt.Errorf("%w: only lowercase letters, digits, '-' and '_' are allowed", ErrInvalidBrokerID)
	}
	if reserved != "" && strings.Contains(id, strings.ToLower(reserved)) {
		return fmt.Errorf("%w: must not contain %q", ErrInvalidBrokerID, reserved)
	}
	return nil
}
