// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Gate     GateConfig     `mapstructure:"gate"`
	Database DatabaseConfig `mapstructure:"database"`
	Tariffs  []TariffConfig `mapstructure:"tariffs"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Alerts   AlertConfig    `mapstructure:"alerts"`
	Observe  ObserveConfig  `mapstructure:"observe"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Health   HealthConfig   `mapstructure:"health"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// TelegramConfig holds Bot API connection settings.
type TelegramConfig struct {
	Token          string  `mapstructure:"token"`
	APIBaseURL     string  `mapstructure:"api_base_url"`
	PollTimeout    int     `mapstructure:"poll_timeout"`    // seconds, long-poll
	RequestTimeout int     `mapstructure:"request_timeout"` // milliseconds
	AdminIDs       []int64 `mapstructure:"admin_ids"`
}

// GateConfig holds access-gate evaluation settings.
type GateConfig struct {
	GlobalChannel  string `mapstructure:"global_channel"`   // e.g. "@your_channel"; empty disables the global check
	OracleTimeout  int    `mapstructure:"oracle_timeout"`   // milliseconds, per membership query
	RecheckDelay   int    `mapstructure:"recheck_delay"`    // seconds before a resume re-queries the oracle
	BotDeepLinkFmt string `mapstructure:"bot_deeplink_fmt"` // "https://t.me/%s?start=%s"
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	VerdictIdx string   `mapstructure:"verdict_index"`
}

// TariffConfig is a purchasable credit bundle shown in the tariff menu.
// Top-ups themselves are administrative; the menu is informational.
type TariffConfig struct {
	Name    string `mapstructure:"name"`
	Price   int    `mapstructure:"price"` // rubles
	Credits int    `mapstructure:"credits"`
}

// BackupConfig holds settings for the database-snapshot upload job.
type BackupConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Interval    int    `mapstructure:"interval"` // minutes
	EndpointURL string `mapstructure:"endpoint_url"`
	Region      string `mapstructure:"region"`
	Bucket      string `mapstructure:"bucket"`
	KeyID       string `mapstructure:"key_id"`
	AppKey      string `mapstructure:"app_key"`
}

// AlertConfig holds settings for operator misconfiguration alerts.
type AlertConfig struct {
	Email struct {
		Enabled   bool     `mapstructure:"enabled"`
		FromEmail string   `mapstructure:"from_email"`
		ToEmails  []string `mapstructure:"to_emails"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled      bool     `mapstructure:"enabled"`
		PhoneNumbers []string `mapstructure:"phone_numbers"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// ObserveConfig controls the write-only verdict observation sinks.
type ObserveConfig struct {
	CacheTTL int `mapstructure:"cache_ttl"` // seconds, redis verdict cache
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// HealthConfig holds the /health and /metrics listener settings.
type HealthConfig struct {
	Address string `mapstructure:"address"`
}
