package service

import (
	"errors"
	"fmt"
)

// ErrorCode - стабильный код ошибки, который видит фронтенд
type ErrorCode string

// Коды ошибок градуации. Набор закрытый: новый код требует записи в codeKinds.
const (
	// Валидация входных данных
	CodeInvalidTxHash   ErrorCode = "INVALID_TX_HASH"
	CodeInvalidBrokerID ErrorCode = "INVALID_BROKER_ID"
	CodeInvalidFee      ErrorCode = "INVALID_FEE"
	CodeInvalidRequest  ErrorCode = "INVALID_REQUEST"

	// Проверка транзакции в сети
	CodeTransactionNotFound ErrorCode = "TRANSACTION_NOT_FOUND"
	CodeTransactionFailed   ErrorCode = "TRANSACTION_FAILED"
	CodeNoTransfersFound    ErrorCode = "NO_TRANSFERS_FOUND"
	CodeWrongSender         ErrorCode = "WRONG_SENDER"
	CodeInsufficientAmount  ErrorCode = "INSUFFICIENT_AMOUNT"

	// Конфигурация оператора
	CodeConfigurationError ErrorCode = "CONFIGURATION_ERROR"
	CodeChainNotSupported  ErrorCode = "CHAIN_NOT_SUPPORTED"

	// Конфликты
	CodeTxAlreadyUsed          ErrorCode = "TX_ALREADY_USED"
	CodeBrokerIDTaken          ErrorCode = "BROKER_ID_TAKEN"
	CodeAlreadyGraduated       ErrorCode = "ALREADY_GRADUATED"
	CodeGraduationInProgress   ErrorCode = "GRADUATION_IN_PROGRESS"
	CodeInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"

	// Предусловия
	CodeNoBroker ErrorCode = "NO_BROKER"
	CodeNotFound ErrorCode = "NOT_FOUND"

	// Временные сбои, запрос можно повторить
	CodeRPCUnavailable           ErrorCode = "RPC_UNAVAILABLE"
	CodeBrokerIndexUnavailable   ErrorCode = "BROKER_INDEX_UNAVAILABLE"
	CodeFeePropagationFailed     ErrorCode = "FEE_PROPAGATION_FAILED"
	CodeBrokerRegistrationFailed ErrorCode = "BROKER_REGISTRATION_FAILED"

	// Хранилища разошлись, нужна ручная сверка
	CodeProvisioningInconsistent ErrorCode = "PROVISIONING_INCONSISTENT"

	// Аутентификация и деплой
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeDeployCooldown ErrorCode = "DEPLOY_COOLDOWN"

	CodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Kind - категория ошибки, определяет HTTP статус и уровень логирования
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindVerification
	KindConfiguration
	KindConflict
	KindPrecondition
	KindTransient
	KindFatal
	KindUnauthorized
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindVerification:
		return "verification"
	case KindConfiguration:
		return "configuration"
	case KindConflict:
		return "conflict"
	case KindPrecondition:
		return "precondition"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

var codeKinds = map[ErrorCode]Kind{
	CodeInvalidTxHash:   KindValidation,
	CodeInvalidBrokerID: KindValidation,
	CodeInvalidFee:      KindValidation,
	CodeInvalidRequest:  KindValidation,

	CodeTransactionNotFound: KindVerification,
	CodeTransactionFailed:   KindVerification,
	CodeNoTransfersFound:    KindVerification,
	CodeWrongSender:         KindVerification,
	CodeInsufficientAmount:  KindVerification,

	CodeConfigurationError: KindConfiguration,
	CodeChainNotSupported:  KindConfiguration,

	CodeTxAlreadyUsed:          KindConflict,
	CodeBrokerIDTaken:          KindConflict,
	CodeAlreadyGraduated:       KindConflict,
	CodeGraduationInProgress:   KindConflict,
	CodeInvalidStateTransition: KindConflict,

	CodeNoBroker: KindPrecondition,
	CodeNotFound: KindPrecondition,

	CodeRPCUnavailable:           KindTransient,
	CodeBrokerIndexUnavailable:   KindTransient,
	CodeFeePropagationFailed:     KindTransient,
	CodeBrokerRegistrationFailed: KindTransient,

	CodeProvisioningInconsistent: KindFatal,

	CodeUnauthorized:   KindUnauthorized,
	CodeDeployCooldown: KindRateLimited,

	CodeInternal: KindInternal,
}

// Kind возвращает категорию кода
func (c ErrorCode) Kind() Kind {
	return codeKinds[c]
}

// defaultMessages - сообщения для пользователя, если вызывающий не задал свое
var defaultMessages = map[ErrorCode]string{
	CodeInvalidTxHash:            "Transaction hash must be 0x followed by 64 hex characters",
	CodeInvalidBrokerID:          "Broker ID is invalid",
	CodeInvalidFee:               "Maker fee must be within [0, 15] bps and taker fee within [3, 15] bps",
	CodeInvalidRequest:           "Invalid request",
	CodeTransactionNotFound:      "Transaction not found on chain",
	CodeTransactionFailed:        "Transaction failed on chain",
	CodeNoTransfersFound:         "No token transfers to the graduation receiver found in transaction",
	CodeWrongSender:              "Transfer was not sent from the wallet bound to your account",
	CodeInsufficientAmount:       "Transferred amount is below the required graduation amount",
	CodeConfigurationError:       "Graduation is not configured for this chain, contact support",
	CodeChainNotSupported:        "Chain is not supported",
	CodeTxAlreadyUsed:            "Transaction has already been used for graduation",
	CodeBrokerIDTaken:            "Broker ID is already taken, try a different one",
	CodeAlreadyGraduated:         "Account already has a broker",
	CodeGraduationInProgress:     "Graduation payment already received, use retry to finish provisioning",
	CodeInvalidStateTransition:   "Graduation state does not allow this operation",
	CodeNoBroker:                 "Account has no broker yet, graduate first",
	CodeNotFound:                 "Not found",
	CodeRPCUnavailable:           "Chain node is unavailable, try again later",
	CodeBrokerIndexUnavailable:   "Broker index allocation failed, try again later",
	CodeFeePropagationFailed:     "Failed to apply fees to trading infrastructure, try again later",
	CodeBrokerRegistrationFailed: "Broker registration failed, use retry to finish provisioning",
	CodeProvisioningInconsistent: "Broker provisioning requires manual reconciliation, contact support",
	CodeUnauthorized:             "Unauthorized",
	CodeDeployCooldown:           "Deployment was requested recently, try again later",
	CodeInternal:                 "Internal server error",
}

// Error - ошибка сервисного слоя с кодом из закрытого набора
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // причина, в ответ не попадает
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает по коду: errors.Is(err, &Error{Code: CodeTxAlreadyUsed})
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Kind возвращает категорию ошибки
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// newError создает ошибку с сообщением по умолчанию
func newError(code ErrorCode, cause error) *Error {
	return &Error{Code: code, Message: defaultMessages[code], Err: cause}
}

// newErrorf создает ошибку с собственным сообщением
func newErrorf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// AsError извлекает *Error. Неизвестные ошибки становятся INTERNAL_ERROR.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return newError(CodeInternal, err)
}

// CodeOf возвращает код ошибки
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsError(err).Code
}

// IsCode проверяет код ошибки
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
