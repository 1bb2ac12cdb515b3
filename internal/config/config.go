package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:""`

	DataDir        string `envconfig:"DATA_DIR"`
	DBPath         string `envconfig:"DB_PATH"`
	RawMailDir     string `envconfig:"MAIL_RAW_DIR"`
	OutputDir      string `envconfig:"OUTPUT_DIR"`
	StoreBackend   string `envconfig:"STORE_BACKEND" default:"sqlite"`
	SessionBackend string `envconfig:"SESSION_BACKEND" default:"sqlite"`
	WriteAuditJSON bool   `envconfig:"AUDIT_JSON" default:"true"`

	SessionTTL   time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	DirectoryTTL time.Duration `envconfig:"DIRECTORY_TTL" default:"30m"`

	SupplierThreshold float64 `envconfig:"FUZZY_SUPPLIER_THRESHOLD" default:"0.92"`
	ProductThreshold  float64 `envconfig:"FUZZY_PRODUCT_THRESHOLD" default:"0.90"`
	SuggestionLimit   int     `envconfig:"SUGGESTION_LIMIT" default:"5"`

	RoundingMode      string             `envconfig:"ROUNDING_MODE" default:"BANKERS"`
	RoundingDigits    int32              `envconfig:"ROUNDING_DIGITS" default:"2"`
	TolerancePercent  float64            `envconfig:"TOLERANCE_PERCENT" default:"0.005"`
	ToleranceAbsolute float64            `envconfig:"TOLERANCE_ABSOLUTE" default:"0.50"`
	DefaultTaxRate    float64            `envconfig:"DEFAULT_TAX_RATE" default:"0"`
	DefaultCurrency   string             `envconfig:"DEFAULT_CURRENCY" default:"UAH"`
	UnitConversions   map[string]float64 `envconfig:"UNIT_CONVERSIONS"`

	PosAPIBaseURL     string          `envconfig:"POSTER_API_BASE" default:"https://joinposter.com/api"`
	PosAPIToken       string          `envconfig:"POSTER_API_TOKEN"`
	PosStorageID      string          `envconfig:"POSTER_STORAGE_ID"`
	PosStrategiesFile string          `envconfig:"POSTER_STRATEGIES_FILE"`
	PosRateLimitRPS   int             `envconfig:"POSTER_RATE_LIMIT_RPS" default:"5"`
	PosTimeout        time.Duration   `envconfig:"POSTER_TIMEOUT" default:"45s"`
	RetrySchedule     []time.Duration `envconfig:"RETRY_SCHEDULE" default:"0s,3s,5s,8s"`

	RedisURL          string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	RedisReadTimeout  int    `envconfig:"REDIS_READ_TIMEOUT" default:"3"`
	RedisWriteTimeout int    `envconfig:"REDIS_WRITE_TIMEOUT" default:"3"`
	RedisDialTimeout  int    `envconfig:"REDIS_DIAL_TIMEOUT" default:"5"`

	GmailClientID     string `envconfig:"GMAIL_CLIENT_ID"`
	GmailClientSecret string `envconfig:"GMAIL_CLIENT_SECRET"`
	GmailRedirectURI  string `envconfig:"GMAIL_REDIRECT_URI" default:"https://developers.google.com/oauthplayground"`
	GmailRefreshToken string `envconfig:"GMAIL_REFRESH_TOKEN"`

	IMAPHost     string `envconfig:"IMAP_HOST"`
	IMAPPort     int    `envconfig:"IMAP_PORT" default:"993"`
	IMAPSecure   bool   `envconfig:"IMAP_SECURE" default:"true"`
	IMAPUser     string `envconfig:"IMAP_USER"`
	IMAPPassword string `envconfig:"IMAP_PASSWORD"`
	IMAPMarkSeen bool   `envconfig:"IMAP_MARK_SEEN" default:"false"`

	MailListenerProvider     string `envconfig:"MAIL_LISTENER_PROVIDER" default:"gmail"`
	MailListenerLabel        string `envconfig:"MAIL_LISTENER_LABEL" default:"INBOX"`
	MailListenerIntervalSec  int    `envconfig:"MAIL_LISTENER_INTERVAL_SEC" default:"30"`
	MailListenerFetchMax     int    `envconfig:"MAIL_LISTENER_FETCH_MAX" default:"20"`
	MailListenerProcessBatch int    `envconfig:"MAIL_LISTENER_PROCESS_BATCH" default:"20"`
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(cwd, "data")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "app.db")
	}
	if cfg.RawMailDir == "" {
		cfg.RawMailDir = filepath.Join(cfg.DataDir, "raw")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(cwd, "out")
	}
	cfg.RoundingMode = strings.ToUpper(strings.TrimSpace(cfg.RoundingMode))
	cfg.PosAPIBaseURL = strings.TrimRight(cfg.PosAPIBaseURL, "/")

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.SupplierThreshold <= 0 || c.SupplierThreshold > 1 {
		return fmt.Errorf("FUZZY_SUPPLIER_THRESHOLD must be in (0,1], got %v", c.SupplierThreshold)
	}
	if c.ProductThreshold <= 0 || c.ProductThreshold > 1 {
		return fmt.Errorf("FUZZY_PRODUCT_THRESHOLD must be in (0,1], got %v", c.ProductThreshold)
	}
	switch c.RoundingMode {
	case "BANKERS", "HALF_UP":
	default:
		return fmt.Errorf("unsupported ROUNDING_MODE: %s", c.RoundingMode)
	}
	if c.TolerancePercent < 0 || c.ToleranceAbsolute < 0 {
		return fmt.Errorf("tolerances cannot be negative")
	}
	if c.SuggestionLimit <= 0 {
		return fmt.Errorf("SUGGESTION_LIMIT must be positive")
	}
	return nil
}

// SynonymsPath and ProcessedPath are the JSON file store locations.
func (c Config) SynonymsPath() string  { return filepath.Join(c.DataDir, "synonyms.json") }
func (c Config) ProcessedPath() string { return filepath.Join(c.DataDir, "processed.json") }

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}
