package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Email     EmailConfig     `yaml:"email"`
	Presenter PresenterConfig `yaml:"presenter"`
	AWS       AWSConfig       `yaml:"aws"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	BindHost     string `yaml:"bindHost"`
	Port         string `yaml:"port"`
	HTTPS        bool   `yaml:"https"`
	CertFile     string `yaml:"certFile"`
	KeyFile      string `yaml:"keyFile"`
	ReadTimeout  int    `yaml:"readTimeoutSec"`
	WriteTimeout int    `yaml:"writeTimeoutSec"`
	// UIOrigin is the exact scheme://host allowed for CORS and for mutating requests.
	UIOrigin string `yaml:"uiOrigin"`
	// InternalSecret, when set, requires every /api request to carry an edge seal.
	InternalSecret string `yaml:"internalSecret"`
	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is honoured.
	// Empty means the client address is always the TCP peer.
	TrustedProxies []string `yaml:"trustedProxies"`
}

// Addr returns host:port for the listener.
func (c ServerConfig) Addr() string {
	return c.BindHost + ":" + c.Port
}

// DatabaseConfig holds connection settings for Postgres or SQLite.
type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // postgres or sqlite
	URL        string `yaml:"url"`    // if set, used as-is for postgres
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	DBName     string `yaml:"name"`
	SSLMode    string `yaml:"sslmode"`
	SQLitePath string `yaml:"sqlitePath"`
}

// RedisConfig holds Redis connection settings. Empty Addr keeps sessions and the limiter in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SessionConfig holds login session settings.
type SessionConfig struct {
	TTLHours int `yaml:"ttlHours"`
}

// TTL returns the session lifetime.
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// RateLimitConfig bounds login and lost-PIN attempts.
type RateLimitConfig struct {
	MaxAttempts int `yaml:"maxAttempts"`
	WindowMin   int `yaml:"windowMin"`
	LockoutMin  int `yaml:"lockoutMin"`
}

// EmailConfig controls RSVP, reminder and lost-PIN mail.
type EmailConfig struct {
	Send             bool   `yaml:"send"`
	SMTPServer       string `yaml:"smtpServer"` // host[:port]
	SMTPUser         string `yaml:"smtpUser"`
	SMTPPass         string `yaml:"smtpPass"`
	From             string `yaml:"from"`
	RSVPURL          string `yaml:"rsvpUrl"`
	TemplateDir      string `yaml:"templateDir"`
	OrganizerContact string `yaml:"organizerContact"`
}

// PresenterConfig holds presenter photo settings.
type PresenterConfig struct {
	MaxBytes int64  `yaml:"maxBytes"`
	PhotoDir string `yaml:"photoDir"`
}

// AWSConfig holds AWS credentials and the presenter photo bucket. S3 is used only when PhotosBucket is set.
type AWSConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	PhotosBucket    string `yaml:"photosBucket"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Dir    string `yaml:"dir"`
	Level  string `yaml:"level"`
	ToFile bool   `yaml:"toFile"`
}

// DSN returns the connection string for the configured driver.
// For postgres, URL (DATABASE_URL) is used as-is when set; otherwise it is built from components.
func (c DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.SQLitePath
	}
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file and CONFIG_FILE YAML overlay.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			BindHost:       getEnv("BIND_HOST", "0.0.0.0"),
			Port:           getEnv("BACKEND_PORT", "3001"),
			HTTPS:          getEnvBool("HTTPS", false),
			CertFile:       getEnv("HTTPS_CERT", ""),
			KeyFile:        getEnv("HTTPS_KEY", ""),
			ReadTimeout:    getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:   getEnvInt("WRITE_TIMEOUT_SEC", 30),
			UIOrigin:       strings.TrimRight(getEnv("UI_ORIGIN", "http://localhost:3000"), "/"),
			InternalSecret: getEnv("INTERNAL_SECRET", ""),
			TrustedProxies: getEnvList("TRUSTED_PROXIES"),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			URL:        getEnv("DATABASE_URL", ""),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", "postgres"),
			DBName:     getEnv("DB_NAME", "confreg"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "confreg.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Session: SessionConfig{
			TTLHours: getEnvInt("SESSION_TTL_HOURS", 12),
		},
		RateLimit: RateLimitConfig{
			MaxAttempts: getEnvInt("LOGIN_MAX_ATTEMPTS", 5),
			WindowMin:   getEnvInt("LOGIN_WINDOW_MIN", 15),
			LockoutMin:  getEnvInt("LOGIN_LOCKOUT_MIN", 15),
		},
		Email: EmailConfig{
			Send:             getEnvBool("SEND_EMAIL", false),
			SMTPServer:       getEnv("SMTP_SERVER", ""),
			SMTPUser:         getEnv("SMTP_USER", ""),
			SMTPPass:         getEnv("SMTP_PASS", ""),
			From:             getEnv("EMAIL_FROM", "noreply@example.com"),
			RSVPURL:          getEnv("RSVP_URL", ""),
			TemplateDir:      getEnv("EMAIL_TEMPLATE_DIR", ""),
			OrganizerContact: getEnv("ORGANIZER_CONTACT", "the conference organizer"),
		},
		Presenter: PresenterConfig{
			MaxBytes: int64(getEnvInt("PRESENTER_MAX_BYTES", 5*1024*1024)),
			PhotoDir: getEnv("PHOTO_DIR", "photos"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			PhotosBucket:    getEnv("AWS_S3_PHOTOS_BUCKET", ""),
		},
		Log: LogConfig{
			Dir:    getEnv("LOG_DIR", "logs"),
			Level:  getEnv("LOG_LEVEL", "info"),
			ToFile: getEnvBool("LOG_TO_FILE", false),
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile decodes a YAML file over cfg. Keys absent from the file keep their env values.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Server.HTTPS && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		return fmt.Errorf("HTTPS requires HTTPS_CERT and HTTPS_KEY")
	}
	for _, p := range c.Server.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("TRUSTED_PROXIES: %q is not an IP or CIDR", p)
			}
		}
	}
	if c.Presenter.MaxBytes <= 0 {
		return fmt.Errorf("PRESENTER_MAX_BYTES must be positive")
	}
	if c.Session.TTLHours <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping blanks. Unset yields nil.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
