package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" validate:"required"`
	PostgresDSN string `env:"POSTGRES_DSN" validate:"required"`

	Log     LogConfig
	Kafka   KafkaConfig
	Portal  PortalConfig
	Browser BrowserConfig
	Sync    SyncConfig
	Repo    RepoConfig
	Creds   CredsConfig
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `env:"LOG_FORMAT" validate:"oneof=json console"`
	Output string `env:"LOG_OUTPUT"`
}

type KafkaConfig struct {
	Brokers string `env:"KAFKA_BROKERS"`
	Topic   string `env:"KAFKA_TOPIC" validate:"required_with=Brokers"`
	Group   string `env:"KAFKA_GROUP" validate:"required_with=Brokers"`
}

// BrokerList splits KAFKA_BROKERS; an empty list disables the trigger consumer.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type PortalConfig struct {
	BaseURL   string `env:"PORTAL_BASE_URL" validate:"required,url"`
	Transport string `env:"PORTAL_TRANSPORT" validate:"oneof=page cookie"`
}

type BrowserConfig struct {
	Headless    bool          `env:"BROWSER_HEADLESS"`
	NoSandbox   bool          `env:"BROWSER_NO_SANDBOX"`
	RemoteURL   string        `env:"BROWSER_REMOTE_URL" validate:"omitempty,url"`
	StepTimeout time.Duration `env:"BROWSER_STEP_TIMEOUT" validate:"gt=0"`
}

type SyncConfig struct {
	Interval           time.Duration `env:"SYNC_INTERVAL" validate:"gt=0"`
	MaxRetries         int           `env:"SYNC_MAX_RETRIES" validate:"gte=1"`
	InitialDelay       time.Duration `env:"SYNC_INITIAL_DELAY" validate:"gte=0"`
	PageDelay          time.Duration `env:"SYNC_PAGE_DELAY" validate:"gte=0"`
	PassDelay          time.Duration `env:"SYNC_PASS_DELAY" validate:"gte=0"`
	AccountDelay       time.Duration `env:"SYNC_ACCOUNT_DELAY" validate:"gte=0"`
	AccountConcurrency int           `env:"SYNC_ACCOUNT_CONCURRENCY" validate:"gte=1"`
	MaxBrowsers        int           `env:"SYNC_MAX_BROWSERS" validate:"gte=1"`
	PayoutDays         int           `env:"SYNC_PAYOUT_DAYS" validate:"gte=1,lte=60"`
	StoreName          string        `env:"SYNC_STORE_NAME" validate:"required"`
}

type RepoConfig struct {
	BatchSize int `env:"REPO_BATCH_SIZE" validate:"gte=1"`
	MaxConns  int `env:"REPO_MAX_CONNS" validate:"gte=1"`
}

// CredsConfig holds the AES-256 key for stored portal credentials as 64 hex
// characters. Empty means credentials are stored in plain text.
type CredsConfig struct {
	Key string `env:"CRED_KEY" validate:"omitempty,hexadecimal,len=64"`
}

var defaults = map[string]any{
	"http_addr":    ":8081",
	"postgres_dsn": "",

	"log_level":  "info",
	"log_format": "json",
	"log_output": "stdout",

	"kafka_brokers": "",
	"kafka_topic":   "supplier-sync-requests",
	"kafka_group":   "supplier-sync",

	"portal_base_url":  "https://supplier.meesho.com",
	"portal_transport": "page",

	"browser_headless":     true,
	"browser_no_sandbox":   false,
	"browser_remote_url":   "",
	"browser_step_timeout": 60 * time.Second,

	"sync_interval":            time.Minute,
	"sync_max_retries":         10,
	"sync_initial_delay":       2 * time.Second,
	"sync_page_delay":          time.Second,
	"sync_pass_delay":          2 * time.Second,
	"sync_account_delay":       5 * time.Second,
	"sync_account_concurrency": 1,
	"sync_max_browsers":        1,
	"sync_payout_days":         12,
	"sync_store_name":          "Meesho",

	"repo_batch_size": 500,
	"repo_max_conns":  20,

	"cred_key": "",
}

// Load reads env vars, falling back to an optional ./syncd.env file and then
// to built-in defaults.
func Load() (Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	v.SetConfigName("syncd")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("config: read syncd.env: %w", err)
		}
	}
	v.AutomaticEnv()

	cfg := Config{
		HTTPAddr:    v.GetString("http_addr"),
		PostgresDSN: v.GetString("postgres_dsn"),
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log_level")),
			Format: strings.ToLower(v.GetString("log_format")),
			Output: v.GetString("log_output"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetString("kafka_brokers"),
			Topic:   v.GetString("kafka_topic"),
			Group:   v.GetString("kafka_group"),
		},
		Portal: PortalConfig{
			BaseURL:   strings.TrimRight(v.GetString("portal_base_url"), "/"),
			Transport: strings.ToLower(v.GetString("portal_transport")),
		},
		Browser: BrowserConfig{
			Headless:    v.GetBool("browser_headless"),
			NoSandbox:   v.GetBool("browser_no_sandbox"),
			RemoteURL:   v.GetString("browser_remote_url"),
			StepTimeout: v.GetDuration("browser_step_timeout"),
		},
		Sync: SyncConfig{
			Interval:           v.GetDuration("sync_interval"),
			MaxRetries:         v.GetInt("sync_max_retries"),
			InitialDelay:       v.GetDuration("sync_initial_delay"),
			PageDelay:          v.GetDuration("sync_page_delay"),
			PassDelay:          v.GetDuration("sync_pass_delay"),
			AccountDelay:       v.GetDuration("sync_account_delay"),
			AccountConcurrency: v.GetInt("sync_account_concurrency"),
			MaxBrowsers:        v.GetInt("sync_max_browsers"),
			PayoutDays:         v.GetInt("sync_payout_days"),
			StoreName:          v.GetString("sync_store_name"),
		},
		Repo: RepoConfig{
			BatchSize: v.GetInt("repo_batch_size"),
			MaxConns:  v.GetInt("repo_max_conns"),
		},
		Creds: CredsConfig{
			Key: strings.TrimSpace(v.GetString("cred_key")),
		},
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// secretFields never have their values echoed in validation errors.
var secretFields = map[string]bool{"CRED_KEY": true}

var validate = func() func(Config) error {
	vd := validator.New(validator.WithRequiredStructEnabled())
	vd.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})

	return func(cfg Config) error {
		err := vd.Struct(cfg)
		if err == nil {
			return nil
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				msgs = append(msgs, "set "+fe.Field())
				continue
			}
			if secretFields[fe.Field()] {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
				continue
			}
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		}
		return errors.New("config: " + strings.Join(msgs, "; "))
	}
}()
