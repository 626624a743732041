package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервиса истории.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Demonlist DemonlistConfig `mapstructure:"demonlist"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Recorder  RecorderConfig  `mapstructure:"recorder"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCConfig задает порт gRPC health-сервиса.
type GRPCConfig struct {
	Port int `mapstructure:"port"`
}

// MetricsConfig задает порт для /metrics.
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig описывает подключение к PostgreSQL (снапшоты журналов).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (кэш L2 и Pub/Sub инвалидаций).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// UpstreamConfig — REST API демонлиста и параметры защиты вызовов.
type UpstreamConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RPS           float64       `mapstructure:"rps"`
	Burst         int           `mapstructure:"burst"`
	Attempts      uint          `mapstructure:"attempts"`
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBFailures    uint32        `mapstructure:"cb_failures"`
}

// DemonlistConfig — размеры списка. Все, что дальше ExtendedListSize, считается legacy.
type DemonlistConfig struct {
	ListSize         int `mapstructure:"list_size"`
	ExtendedListSize int `mapstructure:"extended_list_size"`
}

// CacheConfig: TTL кэша и список демонов для прогрева при старте.
type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	WarmupIDs  []int         `mapstructure:"warmup_ids"`
	WarmupLock time.Duration `mapstructure:"warmup_lock"`
}

// RecorderConfig настраивает пакетную запись снапшотов в Postgres.
type RecorderConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// AuthConfig хранит публичный ключ для проверки RS256 токенов, выпущенных хостом.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	RequiredScope string `mapstructure:"required_scope"`
	PublicKey     []byte
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	return loadConfig(viper.New(), ".", "./configs")
}

func loadConfig(v *viper.Viper, paths ...string) (*Config, error) {
	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// 2. ENV перекрывает файл: DEMONLIST_EXTENDED_LIST_SIZE=200 перекроет demonlist.extended_list_size
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

	// 6. Ключ: сначала PEM прямо из ENV (Docker/K8s), потом файл
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("grpc.port", 50052)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("upstream.base_url", "https://pointercrate.com")
	v.SetDefault("upstream.timeout", 10*time.Second)
	v.SetDefault("upstream.rps", 20)
	v.SetDefault("upstream.burst", 5)
	v.SetDefault("upstream.attempts", 3)
	v.SetDefault("upstream.cb_max_requests", 3)
	v.SetDefault("upstream.cb_interval", 5*time.Second)
	v.SetDefault("upstream.cb_timeout", 30*time.Second)
	v.SetDefault("upstream.cb_failures", 5)
	v.SetDefault("demonlist.list_size", 75)
	v.SetDefault("demonlist.extended_list_size", 150)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.warmup_ids", []int{})
	v.SetDefault("cache.warmup_lock", 30*time.Second)
	v.SetDefault("recorder.buffer_size", 1000)
	v.SetDefault("recorder.batch_size", 100)
	v.SetDefault("recorder.flush_interval", 1*time.Second)
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.required_scope", "demonlist:refresh")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// Validate отсекает заведомо нерабочие значения до старта.
func (c *Config) Validate() error {
	if c.Demonlist.ListSize <= 0 || c.Demonlist.ExtendedListSize < c.Demonlist.ListSize {
		return fmt.Errorf("config: invalid list sizes: list_size=%d extended_list_size=%d",
			c.Demonlist.ListSize, c.Demonlist.ExtendedListSize)
	}
	if c.Upstream.BaseURL == "" {
		return errors.New("config: upstream.base_url is required")
	}
	if c.Upstream.Attempts == 0 {
		return errors.New("config: upstream.attempts must be positive")
	}
	return nil
}

// loadKeyResource — PEM из ENV имеет приоритет над файлом
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
