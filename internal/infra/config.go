package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
)

// Config — корневая структура конфигурации диспетчера.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logger   LoggerConfig   `mapstructure:"logger"`

	// Agents — статический реестр агентов. Service Discovery — вне прототипа.
	Agents []AgentConfig `mapstructure:"agents"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub и Cache).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит путь к публичному RSA-ключу для верификации JWT.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

// EngineConfig — настройки ядра диспетчеризации.
type EngineConfig struct {
	MaxQueueSize  int           `mapstructure:"max_queue_size"`
	QueueTimeout  time.Duration `mapstructure:"queue_timeout"`
	DrainInterval time.Duration `mapstructure:"drain_interval"`

	HealthInterval  time.Duration `mapstructure:"health_interval"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
	EMAAlpha        float64       `mapstructure:"ema_alpha"`

	RestartTimeout  time.Duration `mapstructure:"restart_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Настройки Circuit Breaker внешних агентов
	CBFailureThreshold uint32        `mapstructure:"cb_failure_threshold"`
	CBRecoveryTimeout  time.Duration `mapstructure:"cb_recovery_timeout"`
	CBHalfOpenMaxCalls uint32        `mapstructure:"cb_half_open_max_calls"`

	// Пул песочниц
	SandboxMaxInstances  int           `mapstructure:"sandbox_max_instances"`
	SandboxTimeout       time.Duration `mapstructure:"sandbox_timeout"`
	SandboxSweepInterval time.Duration `mapstructure:"sandbox_sweep_interval"`
	SandboxBaseDir       string        `mapstructure:"sandbox_base_dir"`

	// Журнал событий
	EventBufferSize    int           `mapstructure:"event_buffer_size"`
	EventFlushInterval time.Duration `mapstructure:"event_flush_interval"`

	// Транспорт до агентов
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
	RetryBase     time.Duration `mapstructure:"retry_base"`
	RetryMax      time.Duration `mapstructure:"retry_max"`
	RateRPS       float64       `mapstructure:"rate_rps"`
	RateBurst     int           `mapstructure:"rate_burst"`
}

// AgentConfig — декларация одного агента в конфиге.
type AgentConfig struct {
	Type            string   `mapstructure:"type"`
	Capabilities    []string `mapstructure:"capabilities"`
	MaxConcurrent   int      `mapstructure:"max_concurrent"`
	PriorityWeight  int      `mapstructure:"priority_weight"`
	Endpoint        string   `mapstructure:"endpoint"`
	RequiresSandbox bool     `mapstructure:"requires_sandbox"`
}

// Descriptor конвертирует конфигурационную запись в доменный дескриптор.
func (a AgentConfig) Descriptor() domain.AgentDescriptor {
	return domain.AgentDescriptor{
		Type:            a.Type,
		Capabilities:    a.Capabilities,
		MaxConcurrent:   a.MaxConcurrent,
		PriorityWeight:  a.PriorityWeight,
		Endpoint:        a.Endpoint,
		RequiresSandbox: a.RequiresSandbox,
	}
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

	// 6. Публичный ключ: PEM напрямую из ENV (Docker/K8s) или файл по пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("engine.max_queue_size", 100)
	v.SetDefault("engine.queue_timeout", 5*time.Minute)
	v.SetDefault("engine.drain_interval", 2*time.Second)
	v.SetDefault("engine.health_interval", 30*time.Second)
	v.SetDefault("engine.metrics_interval", 5*time.Second)
	v.SetDefault("engine.ema_alpha", 0.1)
	v.SetDefault("engine.restart_timeout", 30*time.Second)
	v.SetDefault("engine.shutdown_timeout", 30*time.Second)

	v.SetDefault("engine.cb_failure_threshold", 5)
	v.SetDefault("engine.cb_recovery_timeout", 30*time.Second)
	v.SetDefault("engine.cb_half_open_max_calls", 3)

	v.SetDefault("engine.sandbox_max_instances", 10)
	v.SetDefault("engine.sandbox_timeout", 10*time.Minute)
	v.SetDefault("engine.sandbox_sweep_interval", time.Minute)
	v.SetDefault("engine.sandbox_base_dir", "/tmp/devit-sandboxes")

	v.SetDefault("engine.event_buffer_size", 10000)
	v.SetDefault("engine.event_flush_interval", 500*time.Millisecond)

	v.SetDefault("engine.call_timeout", 60*time.Second)
	v.SetDefault("engine.retry_attempts", 3)
	v.SetDefault("engine.retry_base", 500*time.Millisecond)
	v.SetDefault("engine.retry_max", 10*time.Second)
	v.SetDefault("engine.rate_rps", 100.0)
	v.SetDefault("engine.rate_burst", 20)
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
