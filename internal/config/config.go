package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Bitrix    BitrixConfig    `yaml:"bitrix" mapstructure:"bitrix"`
	Aggregate AggregateConfig `yaml:"aggregate" mapstructure:"aggregate"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// BitrixConfig holds Bitrix24 REST credentials and transport limits.
type BitrixConfig struct {
	Host  string `yaml:"host" mapstructure:"host"`
	User  int    `yaml:"user" mapstructure:"user"`
	Token string `yaml:"token" mapstructure:"token"`

	// MaxInFlight bounds concurrent requests to the remote, process-wide.
	MaxInFlight int `yaml:"max_in_flight" mapstructure:"max_in_flight"`

	// RequestsPerSecond throttles outbound calls (Bitrix allows ~2 req/s
	// per account). Zero disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`

	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int `yaml:"max_retries" mapstructure:"max_retries"`
}

// AggregateConfig configures the aggregation engine.
type AggregateConfig struct {
	// RunTimeoutSecs caps one whole aggregation run end to end.
	RunTimeoutSecs int `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`

	// LeadEmailFields are the custom fields that may hold the owner email
	// on leads. The schema renamed the field over time, so all are queried.
	LeadEmailFields []string `yaml:"lead_email_fields" mapstructure:"lead_email_fields"`

	// DealEmailField holds the owner email on regular deals.
	DealEmailField string `yaml:"deal_email_field" mapstructure:"deal_email_field"`

	// UsinaEmailField and UsinaCategoryID select the usina deal pipeline.
	UsinaEmailField string `yaml:"usina_email_field" mapstructure:"usina_email_field"`
	UsinaCategoryID string `yaml:"usina_category_id" mapstructure:"usina_category_id"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CRMAGG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("bitrix.max_in_flight", 10)
	v.SetDefault("bitrix.requests_per_second", 2.0)
	v.SetDefault("bitrix.timeout_secs", 15)
	v.SetDefault("bitrix.max_retries", 3)
	v.SetDefault("aggregate.run_timeout_secs", 120)
	v.SetDefault("aggregate.lead_email_fields", []string{
		"UF_CRM_1717008267006",
		"UF_CRM_1716238809742",
	})
	v.SetDefault("aggregate.deal_email_field", "UF_CRM_6657792586A0F")
	v.SetDefault("aggregate.usina_email_field", "UF_CRM_1716235306165")
	v.SetDefault("aggregate.usina_category_id", "9")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks that the configuration is usable for the given mode
// ("serve" or "aggregate"). Both modes reach the remote CRM, so Bitrix
// credentials are always required.
func Validate(cfg *Config, mode string) error {
	var missing []string

	if cfg.Bitrix.Host == "" {
		missing = append(missing, "bitrix.host is required")
	}
	if cfg.Bitrix.Token == "" {
		missing = append(missing, "bitrix.token is required")
	}
	if cfg.Bitrix.User <= 0 {
		missing = append(missing, "bitrix.user must be > 0")
	}
	if cfg.Bitrix.MaxInFlight < 1 || cfg.Bitrix.MaxInFlight > 50 {
		missing = append(missing, "bitrix.max_in_flight must be between 1 and 50")
	}
	if cfg.Bitrix.MaxRetries < 1 {
		missing = append(missing, "bitrix.max_retries must be >= 1")
	}

	switch mode {
	case "serve":
		if cfg.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	case "aggregate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}
