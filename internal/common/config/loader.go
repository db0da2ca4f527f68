// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like TELEGRAM_TOKEN
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored if absent
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the working directory or the project root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars expands ${VAR} placeholders in string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills secrets from the environment when the YAML left
// them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Telegram.Token == "" {
		if val := os.Getenv("BOT_TOKEN"); val != "" {
			cfg.Telegram.Token = val
		}
	}
	if len(cfg.Telegram.AdminIDs) == 0 {
		if val := os.Getenv("ADMIN_IDS"); val != "" {
			for _, part := range strings.Split(val, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				if id, err := strconv.ParseInt(part, 10, 64); err == nil {
					cfg.Telegram.AdminIDs = append(cfg.Telegram.AdminIDs, id)
				}
			}
		}
	}
	if cfg.Gate.GlobalChannel == "" {
		if val := os.Getenv("GLOBAL_CHANNEL"); val != "" {
			cfg.Gate.GlobalChannel = val
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Backup.KeyID == "" {
		if val := os.Getenv("B2_KEY_ID"); val != "" {
			cfg.Backup.KeyID = val
		}
	}
	if cfg.Backup.AppKey == "" {
		if val := os.Getenv("B2_APPLICATION_KEY"); val != "" {
			cfg.Backup.AppKey = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "subgate"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Telegram.APIBaseURL == "" {
		cfg.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if cfg.Telegram.PollTimeout == 0 {
		cfg.Telegram.PollTimeout = 30
	}
	if cfg.Telegram.RequestTimeout == 0 {
		cfg.Telegram.RequestTimeout = 35000
	}

	if cfg.Gate.OracleTimeout == 0 {
		cfg.Gate.OracleTimeout = 10000
	}
	if cfg.Gate.RecheckDelay == 0 {
		cfg.Gate.RecheckDelay = 5
	}
	if cfg.Gate.BotDeepLinkFmt == "" {
		cfg.Gate.BotDeepLinkFmt = "https://t.me/%s?start=%s"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = "localhost:6379"
	}
	if cfg.Database.Elasticsearch.VerdictIdx == "" {
		cfg.Database.Elasticsearch.VerdictIdx = "membership-verdicts"
	}

	if cfg.Observe.CacheTTL == 0 {
		cfg.Observe.CacheTTL = 300
	}

	if cfg.Backup.Interval == 0 {
		cfg.Backup.Interval = 60
	}
	if cfg.Backup.Region == "" {
		cfg.Backup.Region = "us-east-005"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Health.Address == "" {
		cfg.Health.Address = ":8080"
	}

	if len(cfg.Tariffs) == 0 {
		cfg.Tariffs = []TariffConfig{
			{Name: "basic", Price: 100, Credits: 10},
			{Name: "standard", Price: 250, Credits: 30},
			{Name: "premium", Price: 500, Credits: 70},
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token (BOT_TOKEN) is required")
	}
	if cfg.Gate.GlobalChannel != "" && !strings.HasPrefix(cfg.Gate.GlobalChannel, "@") {
		return fmt.Errorf("gate.global_channel must be an @handle, got %q", cfg.Gate.GlobalChannel)
	}
	if cfg.Backup.Enabled && cfg.Backup.Bucket == "" {
		return fmt.Errorf("backup.bucket is required when backup is enabled")
	}
	return nil
}
