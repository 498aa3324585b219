package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Site     SiteConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Output   OutputConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Sync     SyncConfig
	Logging  LoggingConfig
}

type SiteConfig struct {
	BaseURL string
}

type ScraperConfig struct {
	Delay              time.Duration
	DelayJitter        time.Duration
	MaxCategories      int
	MaxProducts        int
	CategoryTimeout    time.Duration
	SettleDelay        time.Duration
	ScrollStep         int
	ScrollPace         time.Duration
	ScrollMaxDuration  time.Duration
	ImageWaitTimeout   time.Duration
	IncludeKeywords    []string
	ExcludeKeywords    []string
	Placeholders       []string
	ImageScopeWrappers []string
	ImageScopeIDs      []string
	Debug              bool
}

type BrowserConfig struct {
	Headless          bool
	NavigationTimeout time.Duration
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	AcceptLanguage    string
	TimezoneID        string
	Locale            string
}

type OutputConfig struct {
	Dir    string
	File   string
	JSFile string
	JSVar  string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type SyncConfig struct {
	Root string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Site: SiteConfig{
			BaseURL: getEnvOrDefault("SITE_BASE_URL", "https://www.nizat.com"),
		},
		Scraper: ScraperConfig{
			Delay:              getDurationOrDefault("SCRAPER_DELAY", 2*time.Second),
			DelayJitter:        getDurationOrDefault("SCRAPER_DELAY_JITTER", 0),
			MaxCategories:      getIntOrDefault("SCRAPER_MAX_CATEGORIES", 20),
			MaxProducts:        getIntOrDefault("SCRAPER_MAX_PRODUCTS", 100),
			CategoryTimeout:    getDurationOrDefault("SCRAPER_CATEGORY_TIMEOUT", 2*time.Minute),
			SettleDelay:        getDurationOrDefault("SCRAPER_SETTLE_DELAY", 3*time.Second),
			ScrollStep:         getIntOrDefault("SCRAPER_SCROLL_STEP", 300),
			ScrollPace:         getDurationOrDefault("SCRAPER_SCROLL_PACE", 200*time.Millisecond),
			ScrollMaxDuration:  getDurationOrDefault("SCRAPER_SCROLL_MAX_DURATION", 45*time.Second),
			ImageWaitTimeout:   getDurationOrDefault("SCRAPER_IMAGE_WAIT_TIMEOUT", 5*time.Second),
			IncludeKeywords:    getStringSliceOrDefault("SCRAPER_INCLUDE_KEYWORDS", nil),
			ExcludeKeywords:    getStringSliceOrDefault("SCRAPER_EXCLUDE_KEYWORDS", nil),
			Placeholders:       getStringSliceOrDefault("SCRAPER_PLACEHOLDER_IMAGES", nil),
			ImageScopeWrappers: getStringSliceOrDefault("SCRAPER_IMAGE_SCOPES", []string{}),
			ImageScopeIDs:      getStringSliceOrDefault("SCRAPER_IMAGE_ID_PREFIXES", []string{}),
			Debug:              getBoolOrDefault("SCRAPER_DEBUG", false),
		},
		Browser: BrowserConfig{
			Headless:          getBoolOrDefault("BROWSER_HEADLESS", true),
			NavigationTimeout: getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			UserAgent:         getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent),
			ViewportWidth:     getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight:    getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage:    getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "he-IL,he;q=0.9,en;q=0.8"),
			TimezoneID:        getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Jerusalem"),
			Locale:            getEnvOrDefault("BROWSER_LOCALE", "he-IL"),
		},
		Output: OutputConfig{
			Dir:    getEnvOrDefault("OUTPUT_DIR", "data"),
			File:   getEnvOrDefault("OUTPUT_FILE", "products.json"),
			JSFile: getEnvOrDefault("OUTPUT_JS_FILE", ""),
			JSVar:  getEnvOrDefault("OUTPUT_JS_VAR", "PRODUCTS_DATA"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "weft_catalog"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 5)),
		},
		Redis: RedisConfig{
			Enabled:  getBoolOrDefault("REDIS_ENABLED", false),
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "catalog:runs"),
		},
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8080),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Sync: SyncConfig{
			Root: getEnvOrDefault("SYNC_ROOT", "."),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("SITE_BASE_URL must be an absolute URL, got %q", c.Site.BaseURL)
	}

	if c.Scraper.MaxCategories < 0 {
		return fmt.Errorf("SCRAPER_MAX_CATEGORIES cannot be negative")
	}

	if c.Scraper.MaxProducts < 0 {
		return fmt.Errorf("SCRAPER_MAX_PRODUCTS cannot be negative")
	}

	if c.Scraper.ScrollStep < 1 {
		return fmt.Errorf("SCRAPER_SCROLL_STEP must be at least 1")
	}

	if c.Scraper.Delay < 0 || c.Scraper.DelayJitter < 0 {
		return fmt.Errorf("SCRAPER_DELAY and SCRAPER_DELAY_JITTER cannot be negative")
	}

	if c.Output.File == "" {
		return fmt.Errorf("OUTPUT_FILE is required")
	}

	if c.Output.JSFile != "" && c.Output.JSVar == "" {
		return fmt.Errorf("OUTPUT_JS_VAR is required when OUTPUT_JS_FILE is set")
	}

	if c.Database.Enabled && c.Database.DBName == "" {
		return fmt.Errorf("DB_NAME is required when DB_ENABLED is set")
	}

	return nil
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
