package config

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/sancholibre/kalshi-bot/pkg/secrets"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Kalshi  KalshiConfig  `mapstructure:"kalshi"`
	Trading TradingConfig `mapstructure:"trading"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
	GCP     GCPConfig     `mapstructure:"gcp"`
}

type ServerConfig struct {
	// Port for the status API; 0 disables it.
	Port int `mapstructure:"port"`
}

type KalshiConfig struct {
	APIKeyID string `mapstructure:"api_key_id"`

	// Exactly one of the two key sources must be set.
	PrivateKeyPath   string `mapstructure:"private_key_path"`
	PrivateKeyBase64 string `mapstructure:"private_key_base64"`

	BaseURL      string `mapstructure:"base_url"`
	WebsocketURL string `mapstructure:"websocket_url"`
}

type TradingConfig struct {
	MinPrice            int  `mapstructure:"min_price"`
	MaxPrice            int  `mapstructure:"max_price"`
	MaxPositionCents    int  `mapstructure:"max_position_cents"`
	ScanIntervalSeconds int  `mapstructure:"scan_interval_seconds"`
	LookaheadDays       int  `mapstructure:"lookahead_days"`
	DryRun              bool `mapstructure:"dry_run"`
}

type NotifyConfig struct {
	DiscordWebhook string `mapstructure:"discord_webhook"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GCPConfig struct {
	ProjectID   string              `mapstructure:"project_id"`
	UseSecrets  bool                `mapstructure:"use_secrets"`
	SecretNames secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/kalshi-bot")
	}

	v.SetEnvPrefix("KALSHI")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	return &config, nil
}

// Validate checks the credential and price-band invariants. Failures here
// are fatal before any network activity.
func (c *Config) Validate() error {
	if c.Kalshi.APIKeyID == "" {
		return fmt.Errorf("kalshi.api_key_id is required")
	}
	if c.Kalshi.PrivateKeyPath == "" && c.Kalshi.PrivateKeyBase64 == "" {
		return fmt.Errorf("no private key configured: set kalshi.private_key_path or kalshi.private_key_base64")
	}
	if c.Kalshi.PrivateKeyPath != "" && c.Kalshi.PrivateKeyBase64 != "" {
		return fmt.Errorf("both private key sources configured: set exactly one")
	}
	if c.Trading.MinPrice < 1 || c.Trading.MaxPrice > 99 || c.Trading.MinPrice > c.Trading.MaxPrice {
		return fmt.Errorf("invalid price band [%d, %d]: need 1 <= min <= max <= 99", c.Trading.MinPrice, c.Trading.MaxPrice)
	}
	if c.Trading.MaxPositionCents <= 0 {
		return fmt.Errorf("trading.max_position_cents must be positive")
	}
	if c.Trading.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("trading.scan_interval_seconds must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 0)

	// Exchange defaults
	v.SetDefault("kalshi.base_url", "https://trading-api.kalshi.com/trade-api/v2")
	v.SetDefault("kalshi.websocket_url", "wss://trading-api.kalshi.com/trade-api/ws/v2")

	// Trading defaults
	v.SetDefault("trading.min_price", 95)
	v.SetDefault("trading.max_price", 97)
	v.SetDefault("trading.max_position_cents", 5000)
	v.SetDefault("trading.scan_interval_seconds", 120)
	v.SetDefault("trading.lookahead_days", 1)
	v.SetDefault("trading.dry_run", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// GCP defaults
	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.api_key_id", secretNames.APIKeyID)
	v.SetDefault("gcp.secret_names.private_key_base64", secretNames.PrivateKeyBase64)
	v.SetDefault("gcp.secret_names.discord_webhook", secretNames.DiscordWebhook)
}

// overrideFromEnv applies the flat environment variables the bot has
// always been deployed with (Railway-style), which don't follow viper's
// prefixed key scheme.
func overrideFromEnv(config *Config) {
	if apiKeyID := os.Getenv("KALSHI_API_KEY_ID"); apiKeyID != "" {
		config.Kalshi.APIKeyID = apiKeyID
	}
	if keyPath := os.Getenv("KALSHI_PRIVATE_KEY_PATH"); keyPath != "" {
		config.Kalshi.PrivateKeyPath = keyPath
	}
	if keyBase64 := os.Getenv("KALSHI_PRIVATE_KEY_BASE64"); keyBase64 != "" {
		config.Kalshi.PrivateKeyBase64 = keyBase64
	}

	if minPrice, ok := envInt("MIN_PRICE"); ok {
		config.Trading.MinPrice = minPrice
	}
	if maxPrice, ok := envInt("MAX_PRICE"); ok {
		config.Trading.MaxPrice = maxPrice
	}
	if maxPosition, ok := envInt("MAX_POSITION_CENTS"); ok {
		config.Trading.MaxPositionCents = maxPosition
	}
	if interval, ok := envInt("SCAN_INTERVAL_SECONDS"); ok {
		config.Trading.ScanIntervalSeconds = interval
	}
	if lookahead, ok := envInt("LOOKAHEAD_DAYS"); ok {
		config.Trading.LookaheadDays = lookahead
	}
	if dryRun := os.Getenv("DRY_RUN"); dryRun != "" {
		config.Trading.DryRun = dryRun == "true"
	}

	if webhook := os.Getenv("DISCORD_WEBHOOK"); webhook != "" {
		config.Notify.DiscordWebhook = webhook
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	// Only load secrets that aren't already set
	if config.Kalshi.APIKeyID == "" {
		config.Kalshi.APIKeyID = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.APIKeyID, "")
	}
	if config.Kalshi.PrivateKeyBase64 == "" && config.Kalshi.PrivateKeyPath == "" {
		config.Kalshi.PrivateKeyBase64 = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.PrivateKeyBase64, "")
	}
	if config.Notify.DiscordWebhook == "" {
		config.Notify.DiscordWebhook = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.DiscordWebhook, "")
	}

	logger.Info("Successfully loaded secrets from GCP Secret Manager")
	return nil
}
