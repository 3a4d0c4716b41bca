package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	RuleStore    RuleStoreConfig    `mapstructure:"rule_store"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Classifier   ClassifierConfig   `mapstructure:"classifier"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Intervention InterventionConfig `mapstructure:"intervention"`
	Escalation   EscalationConfig   `mapstructure:"escalation"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// RuleStoreConfig selects the rule store implementation once at startup; call
// sites never probe for backend availability themselves.
type RuleStoreConfig struct {
	Type           string        `mapstructure:"type"` // memory | redis
	Key            string        `mapstructure:"key"`
	UpdateChannel  string        `mapstructure:"update_channel"`
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type ClassifierConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxFailures uint32        `mapstructure:"max_failures"`
	HistorySize int           `mapstructure:"history_size"`
}

type EngineConfig struct {
	// FailureRatio is the fraction of failed rules in one evaluation above
	// which the result is forced to blocked instead of reporting partial
	// coverage as safe.
	FailureRatio float64 `mapstructure:"failure_ratio"`
	MaxParallel  int     `mapstructure:"max_parallel"`
}

type InterventionConfig struct {
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	AssessmentWindow    time.Duration `mapstructure:"assessment_window"`
	CoolDown            time.Duration `mapstructure:"cool_down"`
	Timeout             time.Duration `mapstructure:"timeout"`
	HardCeiling         time.Duration `mapstructure:"hard_ceiling"`
	EscalateLevel       string        `mapstructure:"escalate_level"` // immediate escalation at or above
}

type EscalationConfig struct {
	Notifier    string        `mapstructure:"notifier"` // webhook | kafka
	WebhookURL  string        `mapstructure:"webhook_url"`
	KafkaHost   string        `mapstructure:"kafka_host"`
	KafkaPort   string        `mapstructure:"kafka_port"`
	KafkaTopic  string        `mapstructure:"kafka_topic"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No file is fine, defaults plus environment carry the service.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_path", "/metrics")

	v.SetDefault("rule_store.type", "memory")
	v.SetDefault("rule_store.key", "safety:rules:active")
	v.SetDefault("rule_store.update_channel", "safety:rules:events")
	v.SetDefault("rule_store.reload_interval", time.Minute)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("classifier.timeout", 200*time.Millisecond)
	v.SetDefault("classifier.max_failures", 3)
	v.SetDefault("classifier.history_size", 10)

	v.SetDefault("engine.failure_ratio", 0.25)
	v.SetDefault("engine.max_parallel", 8)

	v.SetDefault("intervention.confidence_threshold", 0.4)
	v.SetDefault("intervention.assessment_window", 30*time.Second)
	v.SetDefault("intervention.cool_down", 2*time.Minute)
	v.SetDefault("intervention.timeout", 5*time.Minute)
	v.SetDefault("intervention.hard_ceiling", 15*time.Minute)
	v.SetDefault("intervention.escalate_level", "critical")

	v.SetDefault("escalation.notifier", "webhook")
	v.SetDefault("escalation.max_attempts", 5)
	v.SetDefault("escalation.base_backoff", time.Second)
	v.SetDefault("escalation.max_backoff", time.Minute)
}

func (c *Config) Validate() error {
	switch c.RuleStore.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid rule_store.type %q", c.RuleStore.Type)
	}

	switch c.Escalation.Notifier {
	case "webhook", "kafka", "":
	default:
		return fmt.Errorf("invalid escalation.notifier %q", c.Escalation.Notifier)
	}

	if c.Engine.FailureRatio <= 0 || c.Engine.FailureRatio > 1 {
		return fmt.Errorf("engine.failure_ratio must be in (0, 1], got %v", c.Engine.FailureRatio)
	}

	if c.Intervention.HardCeiling < c.Intervention.Timeout {
		return errors.New("intervention.hard_ceiling must not be shorter than intervention.timeout")
	}

	return nil
}
