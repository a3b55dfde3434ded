package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "TGINGEST"

type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Collector CollectorConfig `mapstructure:"collector"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

type TelegramConfig struct {
	APIID       string   `mapstructure:"api_id"`
	APIHash     string   `mapstructure:"api_hash"`
	Phone       string   `mapstructure:"phone"`
	SessionFile string   `mapstructure:"session_file"`
	Channels    []string `mapstructure:"channels"`
}

// CollectorConfig ограничивает объём одного прогона сборщика.
type CollectorConfig struct {
	Limit           int `mapstructure:"limit"`
	BatchSize       int `mapstructure:"batch_size"`
	CheckpointEvery int `mapstructure:"checkpoint_every"`
}

type SnapshotConfig struct {
	Root string `mapstructure:"root"`
}

type DatabaseConfig struct {
	Kind             string `mapstructure:"kind"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	User             string `mapstructure:"user"`
	Password         string `mapstructure:"password"`
	DBName           string `mapstructure:"dbname"`
	SSLMode          string `mapstructure:"sslmode"`
	ConnectionString string `mapstructure:"connection_string"`
	Schema           string `mapstructure:"schema"`
	Table            string `mapstructure:"table"`
	// CompositeKey переключает первичный ключ на (channel_name, id).
	CompositeKey bool `mapstructure:"composite_key"`
}

// DSN собирает строку подключения из отдельных полей.
// Явно заданная connection_string имеет приоритет.
func (d DatabaseConfig) DSN() string {
	if d.ConnectionString != "" {
		return d.ConnectionString
	}
	if d.Kind == "sqlite" {
		return d.DBName
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// Load читает конфигурацию из файла (если путь задан), .env и переменных окружения.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Файл .env не найден, используем переменные окружения")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvs(v); err != nil {
		return nil, fmt.Errorf("error binding env: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Telegram.Channels = normalizeChannels(cfg.Telegram.Channels)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.api_id", "")
	v.SetDefault("telegram.api_hash", "")
	v.SetDefault("telegram.phone", "")
	v.SetDefault("telegram.session_file", "session.json")
	v.SetDefault("telegram.channels", []string{})

	v.SetDefault("collector.limit", 100)
	v.SetDefault("collector.batch_size", 100)
	v.SetDefault("collector.checkpoint_every", 50)

	v.SetDefault("snapshot.root", "data/raw")

	v.SetDefault("database.kind", "postgres")
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.connection_string", "")
	v.SetDefault("database.schema", "raw")
	v.SetDefault("database.table", "raw_telegram_messages")
	v.SetDefault("database.composite_key", false)
}

// bindEnvs привязывает ключи к переменным окружения. Вторым именем
// идут переменные, которые использовали прежние скрипты.
func bindEnvs(v *viper.Viper) error {
	bindings := [][]string{
		{"telegram.api_id", "TGINGEST_TELEGRAM_API_ID", "TELEGRAM_API_ID"},
		{"telegram.api_hash", "TGINGEST_TELEGRAM_API_HASH", "TELEGRAM_API_HASH"},
		{"telegram.phone", "TGINGEST_TELEGRAM_PHONE", "TELEGRAM_PHONE"},
		{"telegram.session_file", "TGINGEST_TELEGRAM_SESSION_FILE"},
		{"telegram.channels", "TGINGEST_TELEGRAM_CHANNELS"},
		{"snapshot.root", "TGINGEST_SNAPSHOT_ROOT"},
		{"database.kind", "TGINGEST_DATABASE_KIND"},
		{"database.host", "TGINGEST_DATABASE_HOST", "POSTGRES_HOST"},
		{"database.port", "TGINGEST_DATABASE_PORT", "POSTGRES_PORT"},
		{"database.user", "TGINGEST_DATABASE_USER", "POSTGRES_USER"},
		{"database.password", "TGINGEST_DATABASE_PASSWORD", "POSTGRES_PASSWORD"},
		{"database.dbname", "TGINGEST_DATABASE_DBNAME", "POSTGRES_DB"},
		{"database.connection_string", "TGINGEST_DATABASE_CONNECTION_STRING"},
	}
	for _, b := range bindings {
		if err := v.BindEnv(b...); err != nil {
			return err
		}
	}
	return nil
}

// normalizeChannels убирает "@", пробелы и пустые элементы. Из переменной
// окружения список приходит строкой через запятую.
func normalizeChannels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, ch := range strings.Split(item, ",") {
			ch = strings.TrimPrefix(strings.TrimSpace(ch), "@")
			if ch != "" {
				out = append(out, ch)
			}
		}
	}
	return out
}

// ValidateCollector проверяет наличие параметров, без которых сборщик не запустится.
func ValidateCollector(cfg *Config) error {
	if cfg.Telegram.APIID == "" {
		return fmt.Errorf("telegram API ID is required")
	}
	if cfg.Telegram.APIHash == "" {
		return fmt.Errorf("telegram API hash is required")
	}
	if len(cfg.Telegram.Channels) == 0 {
		return fmt.Errorf("at least one telegram channel is required")
	}
	if cfg.Snapshot.Root == "" {
		return fmt.Errorf("snapshot root is required")
	}
	if cfg.Collector.Limit <= 0 {
		return fmt.Errorf("collector limit must be positive, got %d", cfg.Collector.Limit)
	}
	return nil
}

// ValidateLoader проверяет параметры загрузчика.
func ValidateLoader(cfg *Config) error {
	if cfg.Snapshot.Root == "" {
		return fmt.Errorf("snapshot root is required")
	}
	db := cfg.Database
	if db.Kind == "" {
		return fmt.Errorf("database kind is required")
	}
	if db.Table == "" {
		return fmt.Errorf("database table is required")
	}
	if db.ConnectionString != "" {
		return nil
	}
	if db.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	if db.Kind != "sqlite" && (db.Host == "" || db.User == "") {
		return fmt.Errorf("database host and user are required")
	}
	return nil
}
