package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Selection SelectionConfig `mapstructure:"selection"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Search    SearchConfig    `mapstructure:"search"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

// SourceConfig covers both acquisition paths
type SourceConfig struct {
	APIURL       string        `mapstructure:"api_url"`
	SiteURL      string        `mapstructure:"site_url"`
	Sort         string        `mapstructure:"sort"`
	Limit        int           `mapstructure:"limit"`
	DetailsLimit int           `mapstructure:"details_limit"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	RPS          float64       `mapstructure:"rps"`
	// Browser is "chromedp", "static" or "off".
	Browser     string        `mapstructure:"browser"`
	ChromePath  string        `mapstructure:"chrome_path"`
	VisitPosts  bool          `mapstructure:"visit_posts"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Type        string `mapstructure:"type"`
	Dir         string `mapstructure:"dir"`
	CorpusFile  string `mapstructure:"corpus_file"`
	HistoryFile string `mapstructure:"history_file"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Retention   int    `mapstructure:"retention"`
}

type SelectionConfig struct {
	Candidates int `mapstructure:"candidates"`
}

type GeneratorConfig struct {
	GeminiAPIKey string   `mapstructure:"gemini_api_key"`
	Models       []string `mapstructure:"models"`
}

// PublisherConfig chooses where the winning tweet goes
type PublisherConfig struct {
	Type           string `mapstructure:"type"`
	SummariesDir   string `mapstructure:"summaries_dir"`
	HomeURL        string `mapstructure:"home_url"`
	Headless       bool   `mapstructure:"headless"`
	CredentialEnv  string `mapstructure:"credential_env"`
	CredentialFile string `mapstructure:"credential_file"`
}

type AlertsConfig struct {
	DiscordWebhookURL string `mapstructure:"discord_webhook_url"`
	TelegramToken     string `mapstructure:"telegram_token"`
	TelegramChatID    string `mapstructure:"telegram_chat_id"`
}

type SearchConfig struct {
	IndexPath string `mapstructure:"index_path"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Addr is the listen address of the status server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// LoadConfig loads configuration from file and environment variables.
// A missing config file is not an error.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	// Environment variable bindings
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("MOLT")
	v.AutomaticEnv()
	v.BindEnv("source.api_url", "MOLTBOOK_API_URL")
	v.BindEnv("storage.postgres_dsn", "DATABASE_URL")
	v.BindEnv("generator.gemini_api_key", "GEMINI_API_KEY")
	v.BindEnv("alerts.discord_webhook_url", "DISCORD_WEBHOOK_URL")
	v.BindEnv("alerts.telegram_token", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("alerts.telegram_chat_id", "TELEGRAM_CHAT_ID")
	v.BindEnv("log.level", "LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.api_url", "https://www.moltbook.com/api/v1")
	v.SetDefault("source.site_url", "https://www.moltbook.com")
	v.SetDefault("source.sort", "top")
	v.SetDefault("source.limit", 50)
	v.SetDefault("source.details_limit", 0)
	v.SetDefault("source.timeout", "8m")
	v.SetDefault("source.max_attempts", 3)
	v.SetDefault("source.backoff_base", "1s")
	v.SetDefault("source.rps", 1.0)
	v.SetDefault("source.browser", "chromedp")
	v.SetDefault("source.chrome_path", "")
	v.SetDefault("source.visit_posts", false)
	v.SetDefault("source.wait_timeout", "10s")
	v.SetDefault("source.nav_timeout", "30s")

	v.SetDefault("storage.type", "json")
	v.SetDefault("storage.dir", "./data")
	v.SetDefault("storage.corpus_file", "posts.json")
	v.SetDefault("storage.history_file", "published_history.json")
	v.SetDefault("storage.sqlite_path", "")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.retention", 100)

	v.SetDefault("selection.candidates", 5)

	v.SetDefault("generator.models", []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"})

	v.SetDefault("publisher.type", "x")
	v.SetDefault("publisher.summaries_dir", "./summaries")
	v.SetDefault("publisher.home_url", "https://x.com/home")
	v.SetDefault("publisher.headless", true)
	v.SetDefault("publisher.credential_env", "X_COOKIES")
	v.SetDefault("publisher.credential_file", "")
	v.SetDefault("generator.gemini_api_key", "")
	v.SetDefault("alerts.discord_webhook_url", "")
	v.SetDefault("alerts.telegram_token", "")
	v.SetDefault("alerts.telegram_chat_id", "")

	v.SetDefault("search.index_path", "")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Type {
	case "json", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.type %q: want json, sqlite or postgres", c.Storage.Type))
	}
	if c.Storage.Type == "postgres" && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required for postgres storage"))
	}
	switch c.Source.Browser {
	case "chromedp", "static", "off":
	default:
		errs = append(errs, fmt.Errorf("source.browser %q: want chromedp, static or off", c.Source.Browser))
	}
	switch c.Publisher.Type {
	case "x", "summary":
	default:
		errs = append(errs, fmt.Errorf("publisher.type %q: want x or summary", c.Publisher.Type))
	}
	if c.Source.Limit <= 0 {
		errs = append(errs, errors.New("source.limit must be positive"))
	}
	if c.Source.DetailsLimit < 0 {
		errs = append(errs, errors.New("source.details_limit must not be negative"))
	}
	if c.Selection.Candidates <= 0 {
		errs = append(errs, errors.New("selection.candidates must be positive"))
	}
	if c.Storage.Retention <= 0 {
		errs = append(errs, errors.New("storage.retention must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
