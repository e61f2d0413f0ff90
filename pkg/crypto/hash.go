package crypto

import (
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/sha3"
)

// Ошибки хеширования
var (
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordMismatch = errors.New("password does not match hash")
	ErrInvalidHash      = errors.New("invalid password hash format")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length of 72 bytes")
)

// DefaultCost - стоимость bcrypt для пароля администратора
const DefaultCost = 12

// MaxPasswordLength - ограничение bcrypt (72 байта)
const MaxPasswordLength = 72

// ============================================================
// bcrypt (пароль администратора)
// ============================================================

// HashPassword хеширует пароль администратора
//
// cost вне [bcrypt.MinCost, bcrypt.MaxCost] приводится к границе, 0 = DefaultCost.
// Используется утилитой выдачи ADMIN_PASSWORD_HASH.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}

	switch {
	case cost == 0:
		cost = DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword проверяет пароль против bcrypt-хеша (constant-time)
func VerifyPassword(password, hash string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return ErrInvalidHash
	}
	return nil
}

// ============================================================
// Keccak-256
// ============================================================

// Keccak256 - legacy Keccak-256 (вариант Ethereum, не NIST SHA3-256)
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// keccak256Hex возвращает Keccak-256 в виде 0x-строки
func keccak256Hex(data ...[]byte) string {
	return "0x" + hex.EncodeToString(Keccak256(data...))
}

// EventTopic возвращает topic0 события по его сигнатуре,
// например EventTopic("Transfer(address,address,uint256)")
func EventTopic(signature string) string {
	return keccak256Hex([]byte(signature))
}
