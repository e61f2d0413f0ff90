package utils

import (
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig - настройки логирования
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Output      string // stdout, stderr или путь к файлу
	Development bool   // stacktrace на warn и человекочитаемые уровни
}

// Logger - обертка над zap.Logger с доменными хелперами
//
// Встраивает *zap.Logger, поэтому доступны Info/Error/... с типизированными полями.
// sugar используется для printf-стиля (Infof и т.д.).
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger создает логгер по конфигурации
//
// Никогда не возвращает nil: при ошибке открытия файла пишет в stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeDuration = zapcore.MillisDurationEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, openOutput(cfg.Output), zap.NewAtomicLevelAt(level))

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// openOutput возвращает writer для вывода логов
func openOutput(output string) zapcore.WriteSyncer {
	switch strings.ToLower(output) {
	case "", "stderr":
		return zapcore.Lock(os.Stderr)
	case "stdout":
		return zapcore.Lock(os.Stdout)
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		// Fallback на stderr, логгер не должен ломать запуск сервиса
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.AddSync(f)
}

// parseLevel переводит строку в уровень zap (по умолчанию info)
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============================================================
// Глобальный логгер
// ============================================================

// InitGlobalLogger создает логгер и делает его глобальным
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger заменяет глобальный логгер
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный логгер, создавая дефолтный при первом вызове
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{Level: "info", Format: "json"})
	}
	return globalLogger
}

// L - короткий алиас для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// ============================================================
// Методы Logger
// ============================================================

// With возвращает дочерний логгер с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// WithComponent помечает логгер именем компонента (verifier, registrar, ...)
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithAccount помечает логгер аккаунтом
func (l *Logger) WithAccount(accountID int64) *Logger {
	return l.With(AccountID(accountID))
}

// WithBroker помечает логгер broker id
func (l *Logger) WithBroker(brokerID string) *Logger {
	return l.With(BrokerID(brokerID))
}

// WithTx помечает логгер хешем транзакции
func (l *Logger) WithTx(txHash string) *Logger {
	return l.With(TxHash(txHash))
}

// Sugar возвращает SugaredLogger для printf-стиля
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальные функции логирования
// ============================================================

func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

func Debugf(template string, args ...interface{}) {
	L().sugar.Debugf(template, args...)
}

func Infof(template string, args ...interface{}) {
	L().sugar.Infof(template, args...)
}

func Warnf(template string, args ...interface{}) {
	L().sugar.Warnf(template, args...)
}

func Errorf(template string, args ...interface{}) {
	L().sugar.Errorf(template, args...)
}

// ============================================================
// Доменные конструкторы полей
// ============================================================

func AccountID(id int64) zap.Field {
	return zap.Int64("account_id", id)
}

func TxHash(hash string) zap.Field {
	return zap.String("tx_hash", hash)
}

func BrokerID(id string) zap.Field {
	return zap.String("broker_id", id)
}

func BrokerIndex(index int64) zap.Field {
	return zap.Int64("broker_index", index)
}

func Chain(chain string) zap.Field {
	return zap.String("chain", chain)
}

func Store(name string) zap.Field {
	return zap.String("store", name)
}

func Address(addr string) zap.Field {
	return zap.String("address", addr)
}

func Amount(amount string) zap.Field {
	return zap.String("amount", amount)
}

func Code(code string) zap.Field {
	return zap.String("code", code)
}

func State(state string) zap.Field {
	return zap.String("state", state)
}

func RequestID(id string) zap.Field {
	return zap.String("request_id", id)
}

func Component(name string) zap.Field {
	return zap.String("component", name)
}

func Latency(d time.Duration) zap.Field {
	return zap.Float64("latency_ms", float64(d.Microseconds())/1000)
}

func Attempt(n int) zap.Field {
	return zap.Int("attempt", n)
}

func ConsistencyAlert() zap.Field {
	return zap.Bool("consistency_alert", true)
}

// Field - поле структурированного лога
type Field = zap.Field

// Переэкспорт базовых конструкторов zap, чтобы пакеты не импортировали zap напрямую
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Float64  = zap.Float64
	Bool     = zap.Bool
	Err      = zap.Error
	Any      = zap.Any
	Duration = zap.Duration
	Strings  = zap.Strings
)

// fieldsToInterface превращает поля zap в пары key/value для sugared логгера
func fieldsToInterface(fields []zap.Field) []interface{} {
	result := make([]interface{}, 0, len(fields)*2)
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
		result = append(result, f.Key, enc.Fields[f.Key])
	}
	return result
}

// Infow логирует сообщение через sugared логгер с полями zap
func (l *Logger) Infow(msg string, fields ...zap.Field) {
	l.sugar.Infow(msg, fieldsToInterface(fields)...)
}
