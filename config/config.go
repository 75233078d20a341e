package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the wallet/settlement core.
type Config struct {
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Vault        VaultConfig        `mapstructure:"vault"`
	Provisioning ProvisioningConfig `mapstructure:"provisioning"`
	Settlement   SettlementConfig   `mapstructure:"settlement"`
	Log          LogConfig          `mapstructure:"log"`
}

// LedgerConfig configures the Stellar Horizon client.
type LedgerConfig struct {
	HorizonURL        string        `mapstructure:"horizon_url"`
	FriendbotURL      string        `mapstructure:"friendbot_url"`
	NetworkPassphrase string        `mapstructure:"network_passphrase"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
	FundingTimeout    time.Duration `mapstructure:"funding_timeout"`
	ConfirmAttempts   int           `mapstructure:"confirm_attempts"`
	ConfirmInterval   time.Duration `mapstructure:"confirm_interval"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// VaultConfig configures credential-vault key derivation.
type VaultConfig struct {
	AppSalt string `mapstructure:"app_salt"`
}

// ProvisioningConfig bounds the one-shot wallet creation flow.
type ProvisioningConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	RecordTimeout time.Duration `mapstructure:"record_timeout"`
	LoadDebounce  time.Duration `mapstructure:"load_debounce"`
}

// SettlementConfig paces the transfer pipeline stages.
type SettlementConfig struct {
	ProcessingDwell time.Duration `mapstructure:"processing_dwell"`
	SendingDwell    time.Duration `mapstructure:"sending_dwell"`
	CompletingDwell time.Duration `mapstructure:"completing_dwell"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: REMIT_.
// Nested keys use underscore: REMIT_LEDGER_HORIZON_URL, REMIT_DATABASE_HOST, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("ledger.horizon_url", "https://horizon-testnet.stellar.org")
	v.SetDefault("ledger.friendbot_url", "https://friendbot.stellar.org")
	v.SetDefault("ledger.network_passphrase", "Test SDF Network ; September 2015")
	v.SetDefault("ledger.call_timeout", "5s")
	v.SetDefault("ledger.funding_timeout", "5s")
	v.SetDefault("ledger.confirm_attempts", 3)
	v.SetDefault("ledger.confirm_interval", "2s")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "stellar_remit")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("vault.app_salt", "")
	v.SetDefault("provisioning.max_retries", 2)
	v.SetDefault("provisioning.retry_backoff", "2s")
	v.SetDefault("provisioning.record_timeout", "8s")
	v.SetDefault("provisioning.load_debounce", "4s")
	v.SetDefault("settlement.processing_dwell", "2s")
	v.SetDefault("settlement.sending_dwell", "3s")
	v.SetDefault("settlement.completing_dwell", "2s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: REMIT_DATABASE_HOST -> database.host
	v.SetEnvPrefix("REMIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can carry everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
