package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"

	"dexgrad/internal/models"
	"dexgrad/pkg/utils"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	BrokerStores BrokerStoresConfig
	Chains       map[models.Chain]ChainConfig
	Graduation   GraduationConfig
	Registry     RegistryConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Deploy       DeployConfig
	Security     SecurityConfig
	Logging      LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string // CORS, пусто = только localhost
}

// DatabaseConfig - основная БД сервиса (Postgres)
type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MySQLConfig - подключение к хранилищу брокеров торговой инфраструктуры
type MySQLConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Timeout  time.Duration
}

// BrokerStoresConfig - два независимых хранилища брокеров
type BrokerStoresConfig struct {
	Primary MySQLConfig // применяет комиссии
	Partner MySQLConfig // только идентичность брокера
}

// ChainConfig - параметры одной сети для проверки платежа
//
// Пустые TokenAddress/ReceiverAddress допустимы при старте:
// верификатор вернет CONFIGURATION_ERROR для такой сети.
type ChainConfig struct {
	Chain           models.Chain
	RPCURL          string
	TokenAddress    string
	ReceiverAddress string
	RPCRateLimit    float64 // запросов в секунду
	RPCBurst        int
}

// GraduationConfig - параметры градуации
type GraduationConfig struct {
	RequiredAmount       *big.Int // в минимальных единицах токена
	TokenDecimals        int32
	TokenSymbol          string
	DemoBrokerID         string
	ReservedSubstring    string
	DefaultMakerFeeBps   int
	DefaultTakerFeeBps   int
	RPCTimeout           time.Duration
	ProvisioningTimeout  time.Duration
	RollbackAttempts     int
	RollbackInitialDelay time.Duration
	RollbackMaxDelay     time.Duration
}

// RegistryConfig - публичный реестр брокеров
type RegistryConfig struct {
	URL      string // пусто = проверка по реестру отключена
	CacheTTL time.Duration
	Timeout  time.Duration
}

// RedisConfig - общий cooldown между инстансами
type RedisConfig struct {
	Addr     string // пусто = in-memory cooldown
	Password string
	DB       int
}

// KafkaConfig - публикация событий
type KafkaConfig struct {
	Brokers         []string // пусто = события только логируются
	DeployTopic     string
	GraduationTopic string
	WriteTimeout    time.Duration
}

// DeployConfig - триггер пересборки фронтенда
type DeployConfig struct {
	Cooldown time.Duration
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	SessionTTL        time.Duration
	LoginMessage      string // первая строка сообщения для подписи
	AdminUser         string
	AdminPasswordHash string // bcrypt
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения
//
// Если существует файл из ENV_FILE (по умолчанию .env), его значения
// подставляются для переменных, не заданных в окружении.
func Load() (*Config, error) {
	if err := loadEnvFile(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	requiredAmount, ok := new(big.Int).SetString(getEnv("GRADUATION_REQUIRED_AMOUNT", "1000000000000000000000"), 10)
	if !ok {
		return nil, fmt.Errorf("GRADUATION_REQUIRED_AMOUNT must be a base-10 integer")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "dexgrad"),
			User:            getEnv("DB_USER", "dexgrad"),
			Password:        getEnv("DB_PASSWORD", "password"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		BrokerStores: BrokerStoresConfig{
			Primary: loadMySQL("PRIMARY_STORE", "orderly_primary"),
			Partner: loadMySQL("PARTNER_STORE", "orderly_partner"),
		},
		Chains: loadChains(),
		Graduation: GraduationConfig{
			RequiredAmount:       requiredAmount,
			TokenDecimals:        int32(getEnvAsInt("GRADUATION_TOKEN_DECIMALS", 18)),
			TokenSymbol:          getEnv("GRADUATION_TOKEN_SYMBOL", "ORDER"),
			DemoBrokerID:         getEnv("GRADUATION_DEMO_BROKER_ID", "demo"),
			ReservedSubstring:    getEnv("GRADUATION_RESERVED_SUBSTRING", utils.DefaultReservedBrokerSubstring),
			DefaultMakerFeeBps:   getEnvAsInt("GRADUATION_DEFAULT_MAKER_FEE_BPS", 3),
			DefaultTakerFeeBps:   getEnvAsInt("GRADUATION_DEFAULT_TAKER_FEE_BPS", 6),
			RPCTimeout:           getEnvAsDuration("GRADUATION_RPC_TIMEOUT", 10*time.Second),
			ProvisioningTimeout:  getEnvAsDuration("GRADUATION_PROVISIONING_TIMEOUT", 60*time.Second),
			RollbackAttempts:     getEnvAsInt("GRADUATION_ROLLBACK_ATTEMPTS", 5),
			RollbackInitialDelay: getEnvAsDuration("GRADUATION_ROLLBACK_INITIAL_DELAY", 200*time.Millisecond),
			RollbackMaxDelay:     getEnvAsDuration("GRADUATION_ROLLBACK_MAX_DELAY", 5*time.Second),
		},
		Registry: RegistryConfig{
			URL:      getEnv("REGISTRY_URL", ""),
			CacheTTL: getEnvAsDuration("REGISTRY_CACHE_TTL", 1*time.Minute),
			Timeout:  getEnvAsDuration("REGISTRY_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:         getEnvAsList("KAFKA_BROKERS", nil),
			DeployTopic:     getEnv("KAFKA_DEPLOY_TOPIC", "dex.deploy.requested"),
			GraduationTopic: getEnv("KAFKA_GRADUATION_TOPIC", "graduation.pending"),
			WriteTimeout:    getEnvAsDuration("KAFKA_WRITE_TIMEOUT", 10*time.Second),
		},
		Deploy: DeployConfig{
			Cooldown: getEnvAsDuration("DEPLOY_COOLDOWN", 5*time.Minute),
		},
		Security: SecurityConfig{
			SessionTTL:        getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			LoginMessage:      getEnv("LOGIN_MESSAGE", "Sign in to DEX Builder"),
			AdminUser:         getEnv("ADMIN_USER", "admin"),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	// Валидация градуации и сетей
	if err := cfg.validateGraduation(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile подгружает .env, отсутствие файла не ошибка
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadMySQL(prefix, defaultName string) MySQLConfig {
	return MySQLConfig{
		Host:     getEnv(prefix+"_HOST", "localhost"),
		Port:     getEnvAsInt(prefix+"_PORT", 3306),
		Name:     getEnv(prefix+"_NAME", defaultName),
		User:     getEnv(prefix+"_USER", "root"),
		Password: getEnv(prefix+"_PASSWORD", ""),
		Timeout:  getEnvAsDuration(prefix+"_TIMEOUT", 5*time.Second),
	}
}

// loadChains читает CHAIN_<NAME>_* для каждой поддерживаемой сети
func loadChains() map[models.Chain]ChainConfig {
	chains := make(map[models.Chain]ChainConfig, len(models.SupportedChains()))
	for _, c := range models.SupportedChains() {
		prefix := ChainEnvPrefix(c)
		chains[c] = ChainConfig{
			Chain:           c,
			RPCURL:          getEnv(prefix+"_RPC_URL", ""),
			TokenAddress:    utils.NormalizeAddress(getEnv(prefix+"_TOKEN_ADDRESS", "")),
			ReceiverAddress: utils.NormalizeAddress(getEnv(prefix+"_RECEIVER_ADDRESS", "")),
			RPCRateLimit:    getEnvAsFloat(prefix+"_RPC_RATE_LIMIT", 10),
			RPCBurst:        getEnvAsInt(prefix+"_RPC_BURST", 20),
		}
	}
	return chains
}

// ChainEnvPrefix - префикс переменных сети: arbitrum-sepolia -> CHAIN_ARBITRUM_SEPOLIA
func ChainEnvPrefix(c models.Chain) string {
	return "CHAIN_" + strings.ToUpper(strings.ReplaceAll(string(c), "-", "_"))
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// Без хеша пароля админские маршруты нельзя защитить
	if c.Security.AdminPasswordHash == "" {
		return fmt.Errorf("ADMIN_PASSWORD_HASH is required for admin endpoints")
	}

	if !strings.HasPrefix(c.Security.AdminPasswordHash, "$2") {
		return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash")
	}

	if c.Security.AdminUser == "" {
		return fmt.Errorf("ADMIN_USER cannot be empty")
	}

	if c.Security.SessionTTL < time.Minute {
		return fmt.Errorf("SESSION_TTL must be at least 1m, got %v", c.Security.SessionTTL)
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	for name, store := range map[string]MySQLConfig{
		"PRIMARY_STORE": c.BrokerStores.Primary,
		"PARTNER_STORE": c.BrokerStores.Partner,
	} {
		if store.Port < 1 || store.Port > 65535 {
			return fmt.Errorf("%s_PORT must be between 1 and 65535, got %d", name, store.Port)
		}
	}

	// Таймауты должны быть положительными
	if c.Graduation.RPCTimeout <= 0 {
		return fmt.Errorf("GRADUATION_RPC_TIMEOUT must be positive, got %v", c.Graduation.RPCTimeout)
	}

	if c.Graduation.ProvisioningTimeout <= 0 {
		return fmt.Errorf("GRADUATION_PROVISIONING_TIMEOUT must be positive, got %v", c.Graduation.ProvisioningTimeout)
	}

	// Откат ограничен по числу попыток
	if c.Graduation.RollbackAttempts < 1 || c.Graduation.RollbackAttempts > 10 {
		return fmt.Errorf("GRADUATION_ROLLBACK_ATTEMPTS must be between 1 and 10, got %d", c.Graduation.RollbackAttempts)
	}

	if c.Deploy.Cooldown < 0 {
		return fmt.Errorf("DEPLOY_COOLDOWN cannot be negative, got %v", c.Deploy.Cooldown)
	}

	if c.Registry.URL != "" && c.Registry.CacheTTL <= 0 {
		return fmt.Errorf("REGISTRY_CACHE_TTL must be positive, got %v", c.Registry.CacheTTL)
	}

	return nil
}

// validateGraduation проверяет параметры градуации
//
// Дефолтные комиссии проходят ту же проверку, что и запись через API.
func (c *Config) validateGraduation() error {
	g := c.Graduation

	if g.RequiredAmount == nil || g.RequiredAmount.Sign() <= 0 {
		return fmt.Errorf("GRADUATION_REQUIRED_AMOUNT must be positive")
	}

	if g.TokenDecimals < 0 || g.TokenDecimals > 36 {
		return fmt.Errorf("GRADUATION_TOKEN_DECIMALS must be between 0 and 36, got %d", g.TokenDecimals)
	}

	if err := models.ValidateFees(g.DefaultMakerFeeBps, g.DefaultTakerFeeBps); err != nil {
		return fmt.Errorf("default fees: %w", err)
	}

	if g.DemoBrokerID == "" {
		return fmt.Errorf("GRADUATION_DEMO_BROKER_ID cannot be empty")
	}

	for chain, cc := range c.Chains {
		prefix := ChainEnvPrefix(chain)
		if cc.TokenAddress != "" {
			if err := utils.ValidateEVMAddress(cc.TokenAddress); err != nil {
				return fmt.Errorf("%s_TOKEN_ADDRESS: %w", prefix, err)
			}
		}
		if cc.ReceiverAddress != "" {
			if err := utils.ValidateEVMAddress(cc.ReceiverAddress); err != nil {
				return fmt.Errorf("%s_RECEIVER_ADDRESS: %w", prefix, err)
			}
		}
		if cc.RPCRateLimit <= 0 {
			return fmt.Errorf("%s_RPC_RATE_LIMIT must be positive, got %v", prefix, cc.RPCRateLimit)
		}
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// DSN возвращает строку подключения к MySQL в формате go-sql-driver
func (m MySQLConfig) DSN() string {
	return m.driverConfig(m.Password).FormatDSN()
}

// DSNWithoutPassword - DSN для логирования
func (m MySQLConfig) DSNWithoutPassword() string {
	return m.driverConfig("").FormatDSN()
}

func (m MySQLConfig) driverConfig(password string) *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = m.User
	mc.Passwd = password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", m.Host, m.Port)
	mc.DBName = m.Name
	mc.ParseTime = true
	mc.Timeout = m.Timeout
	// RowsAffected = найденные строки, а не измененные (UPDATE с теми же комиссиями)
	mc.ClientFoundRows = true
	return mc
}

// Configured - для сети заданы токен и получатель
func (c ChainConfig) Configured() bool {
	return c.TokenAddress != "" && c.ReceiverAddress != ""
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList читает список через запятую, пустые элементы отбрасываются
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}
