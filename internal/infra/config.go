package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервиса.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Reasoning    ReasoningConfig    `mapstructure:"reasoning"`
	PolicySearch PolicySearchConfig `mapstructure:"policy_search"`
	ThreatFeed   ThreatFeedConfig   `mapstructure:"threat_feed"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (очередь эскалаций и Pub/Sub).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

// ReasoningConfig — LLM-коллаборатор (OpenAI-совместимый API).
type ReasoningConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	RateBurst   int           `mapstructure:"rate_burst"`
	// Модель эмбеддингов для поиска по корпусу политик
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// PolicySearchConfig — векторное хранилище корпуса политик (Qdrant).
type PolicySearchConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Collection string        `mapstructure:"collection"`
	TopK       int           `mapstructure:"top_k"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ThreatFeedConfig — внешний поисковый сервис threat intelligence.
type ThreatFeedConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WorkflowConfig — пороги ветвлений и таймауты стадий пайплайна.
type WorkflowConfig struct {
	DebateRiskThreshold float64       `mapstructure:"debate_risk_threshold"`
	ConfidenceFloor     float64       `mapstructure:"confidence_floor"`
	StageTimeout        time.Duration `mapstructure:"stage_timeout"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из Файла ИЛИ из ENV
	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	// Если нет — читаем файл по указанному пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("auth.token_ttl", 1*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)

	v.SetDefault("reasoning.model", "gpt-4o")
	v.SetDefault("reasoning.embedding_model", "text-embedding-3-large")
	v.SetDefault("reasoning.timeout", 60*time.Second)
	v.SetDefault("reasoning.max_attempts", 3)
	v.SetDefault("reasoning.rate_limit", 5)
	v.SetDefault("reasoning.rate_burst", 5)

	v.SetDefault("policy_search.collection", "fraud_policies")
	v.SetDefault("policy_search.top_k", 2)
	v.SetDefault("policy_search.timeout", 10*time.Second)

	v.SetDefault("threat_feed.model", "sonar-pro")
	v.SetDefault("threat_feed.timeout", 20*time.Second)

	v.SetDefault("workflow.debate_risk_threshold", 0.75)
	v.SetDefault("workflow.confidence_floor", 0.75)
	v.SetDefault("workflow.stage_timeout", 45*time.Second)
}

// loadKeyResource — универсальный хелпер архитектора
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (Base64 или PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
