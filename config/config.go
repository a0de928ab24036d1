package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	AES        AESConfig        `mapstructure:"aes"`
	Log        LogConfig        `mapstructure:"log"`
	Withdrawal WithdrawalConfig `mapstructure:"withdrawal"`
	Quotation  QuotationConfig  `mapstructure:"quotation"`
	Balance    BalanceConfig    `mapstructure:"balance"`
	EVM        EVMConfig        `mapstructure:"evm"`
	Signer     SignerConfig     `mapstructure:"signer"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Features   map[string]bool  `mapstructure:"features"`

	// RateLimits overrides the built-in limit of an endpoint group.
	RateLimits map[string]RateLimitConfig `mapstructure:"rate_limits"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
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
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded master key
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// WithdrawalConfig holds the withdrawal policy. Amounts are decimal strings
// in whole currency units ("10" = 10 ETH).
type WithdrawalConfig struct {
	Currency       string        `mapstructure:"currency"`
	Decimals       int32         `mapstructure:"decimals"`
	MaxAmount      string        `mapstructure:"max_amount"`
	DefaultLocale  string        `mapstructure:"default_locale"`
	SessionIdleTTL time.Duration `mapstructure:"session_idle_ttl"`
	SubmitTimeout  time.Duration `mapstructure:"submit_timeout"`
}

// QuotationConfig holds the pricing policy: fee = random multiplier in
// [FeeMinMultiplier, FeeMaxMultiplier] times FeeUnit.
type QuotationConfig struct {
	TTL              time.Duration `mapstructure:"ttl"`
	FeeUnit          string        `mapstructure:"fee_unit"`
	FeeMinMultiplier int64         `mapstructure:"fee_min_multiplier"`
	FeeMaxMultiplier int64         `mapstructure:"fee_max_multiplier"`
}

type BalanceConfig struct {
	Source         string        `mapstructure:"source"` // ledger, evm
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	InitialFunding string        `mapstructure:"initial_funding"`
}

type EVMConfig struct {
	RPCURL      string        `mapstructure:"rpc_url"`
	RateLimit   float64       `mapstructure:"rate_limit"` // requests per second
	Burst       int           `mapstructure:"burst"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type SignerConfig struct {
	PrivateKey string `mapstructure:"private_key"` // hex secp256k1 key; empty = ephemeral
}

type RateLimitConfig struct {
	Limit  int64         `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type WebhookConfig struct {
	URL     string        `mapstructure:"url"` // empty disables delivery
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: SWG_ (Secure Withdrawal Gateway).
// Nested keys use underscore: SWG_DATABASE_HOST, SWG_WITHDRAWAL_MAX_AMOUNT, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "withdrawal_gateway")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "secure-withdrawal-gateway")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("withdrawal.currency", "ETH")
	v.SetDefault("withdrawal.decimals", 18)
	v.SetDefault("withdrawal.max_amount", "10")
	v.SetDefault("withdrawal.default_locale", "en_US")
	v.SetDefault("withdrawal.session_idle_ttl", "15m")
	v.SetDefault("withdrawal.submit_timeout", "30s")
	v.SetDefault("quotation.ttl", "60s")
	v.SetDefault("quotation.fee_unit", "0.001")
	v.SetDefault("quotation.fee_min_multiplier", 1)
	v.SetDefault("quotation.fee_max_multiplier", 9)
	v.SetDefault("balance.source", "ledger")
	v.SetDefault("balance.poll_interval", "5s")
	v.SetDefault("balance.initial_funding", "20.31")
	v.SetDefault("evm.rpc_url", "")
	v.SetDefault("evm.rate_limit", 5)
	v.SetDefault("evm.burst", 1)
	v.SetDefault("evm.call_timeout", "10s")
	v.SetDefault("signer.private_key", "")
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("features", map[string]bool{
		"withdrawal": true,
		"transfer":   false,
		"swap":       false,
	})

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: SWG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("SWG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values the services cannot start without.
func (c *Config) Validate() error {
	if c.Withdrawal.Decimals < 0 || c.Withdrawal.Decimals > 36 {
		return fmt.Errorf("withdrawal.decimals out of range: %d", c.Withdrawal.Decimals)
	}
	if err := checkAmount("withdrawal.max_amount", c.Withdrawal.MaxAmount, true); err != nil {
		return err
	}
	if err := checkAmount("quotation.fee_unit", c.Quotation.FeeUnit, true); err != nil {
		return err
	}
	if err := checkAmount("balance.initial_funding", c.Balance.InitialFunding, false); err != nil {
		return err
	}
	if c.Quotation.TTL <= 0 {
		return fmt.Errorf("quotation.ttl must be positive, got %s", c.Quotation.TTL)
	}
	if c.Quotation.FeeMinMultiplier < 0 || c.Quotation.FeeMaxMultiplier < c.Quotation.FeeMinMultiplier {
		return fmt.Errorf("invalid fee multiplier range [%d, %d]",
			c.Quotation.FeeMinMultiplier, c.Quotation.FeeMaxMultiplier)
	}
	for group, rl := range c.RateLimits {
		if rl.Limit <= 0 || rl.Window < time.Second {
			return fmt.Errorf("rate_limits.%s needs a positive limit and a window of at least 1s", group)
		}
	}
	switch c.Balance.Source {
	case "ledger":
	case "evm":
		if c.EVM.RPCURL == "" {
			return fmt.Errorf("evm.rpc_url is required when balance.source is evm")
		}
	default:
		return fmt.Errorf("unknown balance.source %q", c.Balance.Source)
	}
	return nil
}

// checkAmount rejects decimal text that is malformed or negative, and zero
// when positive is set.
func checkAmount(key, text string, positive bool) error {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return fmt.Errorf("%s: invalid amount %q", key, text)
	}
	if d.Sign() < 0 || (positive && d.Sign() == 0) {
		return fmt.Errorf("%s out of range: %s", key, text)
	}
	return nil
}
