package cfg

import (
	"fmt"
	"net"
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

// Cfg is built once at startup and handed to every component by reference.
// Core logic never reads the environment directly.
type Cfg struct {
	Port        string
	Environment string
	LogLevel    string

	// Record store. A DSN starting with postgres:// selects the postgres
	// driver, anything else is treated as a sqlite path.
	DatabaseDSN    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBQueryTimeout time.Duration

	RedisURL      string
	RedisTLS      bool
	RedisUsername string
	RedisPassword Secret
	RedisTimeout  time.Duration
	LRUCacheSize  int

	ScryptN      int
	ScryptR      int
	ScryptP      int
	ScryptKeyLen int
	MinPasswordLen int

	MaxPasteSize       int64
	DefaultPasteExpiry time.Duration

	UploadTTL           time.Duration
	UploadMaxFiles      int
	UploadMaxTotalBytes int64
	// "text" restricts uploads to text-like files, "any" disables the filter.
	UploadAllowedTypes string

	BlobBackend     string // "local" or "s3"
	BlobLocalDir    string
	BlobBaseURL     string
	S3Bucket        string
	S3Region        string
	S3PublicBaseURL string

	CleanupToken            Secret
	CleanupTokenFromSecrets bool
	CleanupInterval         time.Duration
	ReapBlobDeletesPerSec   int

	ContextTimeout time.Duration
	MetricsUser    string
	MetricsPass    Secret
	AllowedOrigins []string
	TrustedProxies []string
}

func Load() (*Cfg, error) {
	_ = godotenv.Load()

	c := &Cfg{}
	c.Port = getEnv("PORT", "8080")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.DatabaseDSN = getEnv("DATABASE_DSN", "cinderbin.db")
	var err error
	c.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 100)
	if err != nil {
		return nil, err
	}
	c.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, err
	}
	c.DBQueryTimeout, err = getDuration("DB_QUERY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.RedisURL = getEnv("REDIS_URL", "")
	c.RedisTLS = getEnv("REDIS_TLS", "false") == "true"
	c.RedisUsername = getEnv("REDIS_USERNAME", "")
	c.RedisPassword = NewSecret(getEnv("REDIS_PASSWORD", ""))
	c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.LRUCacheSize, err = getInt("LRU_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	c.ScryptN, err = getInt("SCRYPT_N", 1<<13)
	if err != nil {
		return nil, err
	}
	c.ScryptR, err = getInt("SCRYPT_R", 8)
	if err != nil {
		return nil, err
	}
	c.ScryptP, err = getInt("SCRYPT_P", 1)
	if err != nil {
		return nil, err
	}
	c.ScryptKeyLen, err = getInt("SCRYPT_KEYLEN", 32)
	if err != nil {
		return nil, err
	}
	c.MinPasswordLen, err = getInt("MIN_PASSWORD_LEN", 4)
	if err != nil {
		return nil, err
	}
	c.MaxPasteSize, err = getInt64("MAX_PASTE_SIZE", 256*1024)
	if err != nil {
		return nil, err
	}
	c.DefaultPasteExpiry, err = getDuration("DEFAULT_PASTE_EXPIRY", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	c.UploadTTL, err = getDuration("UPLOAD_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	c.UploadMaxFiles, err = getInt("UPLOAD_MAX_FILES", 10)
	if err != nil {
		return nil, err
	}
	c.UploadMaxTotalBytes, err = getInt64("UPLOAD_MAX_TOTAL_BYTES", 10*1024*1024)
	if err != nil {
		return nil, err
	}
	c.UploadAllowedTypes = getEnv("UPLOAD_ALLOWED_TYPES", "text")
	c.BlobBackend = getEnv("BLOB_BACKEND", "local")
	c.BlobLocalDir = getEnv("BLOB_LOCAL_DIR", "blobs")
	c.BlobBaseURL = getEnv("BLOB_BASE_URL", "/blobs")
	c.S3Bucket = getEnv("S3_BUCKET", "")
	c.S3Region = getEnv("S3_REGION", "")
	c.S3PublicBaseURL = getEnv("S3_PUBLIC_BASE_URL", "")
	c.CleanupToken = NewSecret(getEnv("CLEANUP_TOKEN", ""))
	c.CleanupTokenFromSecrets = getEnv("CLEANUP_TOKEN_FROM_SECRETS", "false") == "true"
	c.CleanupInterval, err = getDuration("CLEANUP_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	c.ReapBlobDeletesPerSec, err = getInt("REAP_BLOB_DELETES_PER_SEC", 50)
	if err != nil {
		return nil, err
	}
	c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	c.AllowedOrigins = getSlice("ALLOWED_ORIGINS", []string{})
	c.TrustedProxies = getSlice("TRUSTED_PROXIES", []string{})
	return c, nil
}

func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	if c.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required")
	}
	if c.RedisURL != "" {
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
	}
	if c.LRUCacheSize <= 0 {
		return errors.New("LRU_CACHE_SIZE must be positive")
	}
	if c.ScryptN < 1<<10 || c.ScryptN&(c.ScryptN-1) != 0 {
		return errors.New("SCRYPT_N must be a power of two >= 1024")
	}
	if c.ScryptR <= 0 || c.ScryptP <= 0 {
		return errors.New("SCRYPT_R and SCRYPT_P must be positive")
	}
	if c.ScryptKeyLen < 32 {
		return errors.New("SCRYPT_KEYLEN must be >= 32")
	}
	if c.MinPasswordLen < 4 {
		return errors.New("MIN_PASSWORD_LEN must be >= 4")
	}
	if c.MaxPasteSize <= 0 || c.MaxPasteSize > 10*1024*1024 {
		return errors.New("MAX_PASTE_SIZE must be between 1 and 10MB")
	}
	if c.DefaultPasteExpiry < time.Minute {
		return errors.New("DEFAULT_PASTE_EXPIRY must be at least 1 minute")
	}
	if c.UploadTTL < time.Minute {
		return errors.New("UPLOAD_TTL must be at least 1 minute")
	}
	if c.UploadMaxFiles <= 0 || c.UploadMaxFiles > 50 {
		return errors.New("UPLOAD_MAX_FILES must be between 1 and 50")
	}
	if c.UploadMaxTotalBytes <= 0 || c.UploadMaxTotalBytes > 50*1024*1024 {
		return errors.New("UPLOAD_MAX_TOTAL_BYTES must be between 1 and 50MB")
	}
	if c.UploadAllowedTypes != "text" && c.UploadAllowedTypes != "any" {
		return errors.New("UPLOAD_ALLOWED_TYPES must be \"text\" or \"any\"")
	}
	switch c.BlobBackend {
	case "local":
		if c.BlobLocalDir == "" {
			return errors.New("BLOB_LOCAL_DIR is required for the local backend")
		}
	case "s3":
		if c.S3Bucket == "" || c.S3Region == "" {
			return errors.New("S3_BUCKET and S3_REGION are required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend)
	}
	if c.CleanupInterval < time.Minute {
		return errors.New("CLEANUP_INTERVAL must be at least 1 minute")
	}
	if c.ReapBlobDeletesPerSec <= 0 {
		return errors.New("REAP_BLOB_DELETES_PER_SEC must be positive")
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else {
			if net.ParseIP(proxy) == nil {
				return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
			}
		}
	}
	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
		if c.CleanupToken.Value() == "" && !c.CleanupTokenFromSecrets {
			return errors.New("CLEANUP_TOKEN is required in production")
		}
	}
	return nil
}

func (c *Cfg) Wipe() {
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
	c.CleanupToken.Wipe()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
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

func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
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
