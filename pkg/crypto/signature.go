package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// signature.go - проверка подписей кошельков (EIP-191 personal_sign)

const (
	// SignatureLength - R (32) + S (32) + V (1)
	SignatureLength = 65

	personalMessagePrefix = "\x19Ethereum Signed Message:\n"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignerMismatch   = errors.New("signature does not match address")
)

// PersonalMessageHash - хеш сообщения по EIP-191:
// keccak256("\x19Ethereum Signed Message:\n" + len(message) + message)
func PersonalMessageHash(message string) []byte {
	prefix := personalMessagePrefix + strconv.Itoa(len(message))
	return Keccak256([]byte(prefix), []byte(message))
}

// PubkeyToAddress вычисляет EVM адрес (lowercase, 0x) из публичного ключа:
// последние 20 байт keccak256 от несжатого ключа без префикса 0x04
func PubkeyToAddress(pub *secp256k1.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()
	hash := Keccak256(uncompressed[1:])
	return "0x" + hex.EncodeToString(hash[12:])
}

// DecodeSignature разбирает hex подпись R||S||V
func DecodeSignature(sigHex string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(sigHex, "0x"), "0X"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(raw) != SignatureLength {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrInvalidSignature, len(raw), SignatureLength)
	}
	return raw, nil
}

// RecoverAddress восстанавливает адрес подписанта personal_sign сообщения
//
// sig - 65 байт R||S||V, V в {0,1} или {27,28}.
func RecoverAddress(message string, sig []byte) (string, error) {
	if len(sig) != SignatureLength {
		return "", fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}

	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return "", fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, sig[64])
	}

	// Формат decred: [27 + recid] || R || S (без флага сжатого ключа)
	compact := make([]byte, SignatureLength)
	compact[0] = 27 + v
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, PersonalMessageHash(message))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return PubkeyToAddress(pub), nil
}

// VerifyPersonalSignature проверяет, что message подписано владельцем address
func VerifyPersonalSignature(address, message, sigHex string) error {
	sig, err := DecodeSignature(sigHex)
	if err != nil {
		return err
	}

	recovered, err := RecoverAddress(message, sig)
	if err != nil {
		return err
	}
	if !strings.EqualFold(recovered, address) {
		return ErrSignerMismatch
	}
	return nil
}

// SignPersonalMessage подписывает сообщение ключом и возвращает R||S||V (V в {27,28})
//
// Нужна тестам и локальным инструментам; сервер только проверяет подписи.
func SignPersonalMessage(key *secp256k1.PrivateKey, message string) []byte {
	compact := ecdsa.SignCompact(key, PersonalMessageHash(message), false)

	sig := make([]byte, SignatureLength)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return sig
}
