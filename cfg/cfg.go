package cfg

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Port            string
	Environment     string
	LogLevel        string
	DatabasePath    string
	RedisURL        string
	RedisPassword   Secret
	RedisTimeout    time.Duration
	TranslationTTL  time.Duration
	LRUCacheSize    int
	MaxPasteLength  int
	ContextTimeout  time.Duration
	AllowedOrigins  []string
	TrustedProxies  []string
	RateLimit       RateLimitCfg
	DailyPasteLimit int
	IPHashSalt      Secret
	MetricsUser     string
	MetricsPass     Secret
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	DBQueryTimeout  time.Duration
	OpenAI          OpenAICfg
	Client          ClientCfg
}

type RateLimitCfg struct {
	RPM               int
	Burst             int
	ConservativeLimit int
}

type OpenAICfg struct {
	APIKey   Secret
	Model    string
	BaseURL  string
	SecretID string
	Timeout  time.Duration
}

// ClientCfg configures the viewer side: where the paste API lives and how
// the translator client behaves.
type ClientCfg struct {
	APIURL            string
	RequestTimeout    time.Duration
	TranslateTimeout  time.Duration
	RPM               int
	PreferredLanguage string
}

// Load reads .env (if present) and then the process environment.
func Load() (*Cfg, error) {
	_ = godotenv.Load()

	c := &Cfg{}
	c.Port = getEnv("PORT", "8080")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.DatabasePath = getEnv("DATABASE_PATH", "lingopaste.db")
	c.RedisURL = getEnv("REDIS_URL", "")
	c.RedisPassword = NewSecret(getEnv("REDIS_PASSWORD", ""))
	var err error
	c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, err
	}
	c.TranslationTTL, err = getDuration("TRANSLATION_CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	c.LRUCacheSize, err = getInt("CACHE_SIZE", 10000)
	if err != nil {
		return nil, err
	}
	c.MaxPasteLength, err = getInt("MAX_PASTE_LENGTH", 20000)
	if err != nil {
		return nil, err
	}
	c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 90*time.Second)
	if err != nil {
		return nil, err
	}
	c.AllowedOrigins = getSlice("ALLOWED_ORIGINS", []string{"http://localhost:5173"})
	c.TrustedProxies = getSlice("TRUSTED_PROXIES", []string{})
	c.RateLimit.RPM, err = getInt("RATE_LIMIT_RPM", 600)
	if err != nil {
		return nil, err
	}
	c.RateLimit.Burst, err = getInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, err
	}
	c.RateLimit.ConservativeLimit, err = getInt("RATE_LIMIT_CONSERVATIVE", 60)
	if err != nil {
		return nil, err
	}
	c.DailyPasteLimit, err = getInt("DAILY_PASTE_LIMIT", 5)
	if err != nil {
		return nil, err
	}
	c.IPHashSalt = NewSecret(getEnv("IP_HASH_SALT", ""))
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	c.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, err
	}
	c.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return nil, err
	}
	c.DBQueryTimeout, err = getDuration("DB_QUERY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	c.OpenAI.APIKey = NewSecret(getEnv("OPENAI_API_KEY", ""))
	c.OpenAI.Model = getEnv("OPENAI_MODEL", "gpt-4o-mini")
	c.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", "")
	c.OpenAI.SecretID = getEnv("OPENAI_SECRET_ID", "")
	c.OpenAI.Timeout, err = getDuration("OPENAI_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	c.Client.APIURL = getEnv("API_URL", "http://localhost:8080/api")
	c.Client.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	c.Client.TranslateTimeout, err = getDuration("TRANSLATE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	c.Client.RPM, err = getInt("CLIENT_RPM", 120)
	if err != nil {
		return nil, err
	}
	c.Client.PreferredLanguage = getEnv("PREFERRED_LANGUAGE", getEnv("LANG", ""))
	return c, nil
}

// Validate checks settings needed by the paste service.
func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	if c.DatabasePath == "" {
		return errors.New("DATABASE_PATH is required")
	}
	if c.RedisURL != "" {
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
	}
	if c.LRUCacheSize <= 0 {
		return errors.New("CACHE_SIZE must be positive")
	}
	if c.MaxPasteLength <= 0 {
		return errors.New("MAX_PASTE_LENGTH must be positive")
	}
	if c.MaxPasteLength > 1000000 {
		return errors.New("MAX_PASTE_LENGTH cannot exceed 1000000 characters")
	}
	if c.RateLimit.RPM <= 0 {
		return errors.New("RATE_LIMIT_RPM must be positive")
	}
	if c.DailyPasteLimit < 0 {
		return errors.New("DAILY_PASTE_LIMIT cannot be negative")
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else if net.ParseIP(proxy) == nil {
			return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
		}
	}
	if c.OpenAI.APIKey.Value() == "" && c.OpenAI.SecretID == "" {
		return errors.New("OPENAI_API_KEY or OPENAI_SECRET_ID is required")
	}
	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
		if len(c.IPHashSalt.Value()) < 16 {
			return errors.New("IP_HASH_SALT must be at least 16 bytes in production")
		}
	}
	return nil
}

// ValidateClient checks settings needed by the viewer.
func ValidateClient(c *Cfg) error {
	u, err := url.Parse(c.Client.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_URL must be an absolute URL, got %q", c.Client.APIURL)
	}
	if c.Client.TranslateTimeout <= 0 {
		return errors.New("TRANSLATE_TIMEOUT must be positive")
	}
	if c.Client.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	if c.Client.RPM < 0 {
		return errors.New("CLIENT_RPM cannot be negative")
	}
	return nil
}

func (c *Cfg) Wipe() {
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
	c.IPHashSalt.Wipe()
	c.OpenAI.APIKey.Wipe()
}
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
func getSlice(key string, fallback []string) []string {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
