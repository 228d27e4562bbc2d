package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все параметры запуска приложения.
type Config struct {
	Env              string
	HTTPPort         string
	DatabaseURL      string
	MigrationsPath   string
	JWTSecret        string
	RefreshSecret    string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	AllowedOrigins   []string
	RateLimitLimit   int64
	RateLimitPeriod  time.Duration
	MediaStoragePath string
	MaxUploadSizeMB  int64
	PublicAppURL     string
	DefaultCurrency  string

	AI       AIConfig
	Blob     BlobConfig
	SMTP     SMTPConfig
	WhatsApp WhatsAppConfig

	RedisURL    string
	MeiliURL    string
	MeiliAPIKey string

	ChromePath string
	PDFTimeout time.Duration

	CampaignSchedulerInterval time.Duration

	SeedAdminEmail    string
	SeedAdminPassword string
}

// AIConfig описывает OpenAI-совместимый провайдер (по умолчанию xAI).
type AIConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// BlobConfig описывает S3-совместимое хранилище файлов.
type BlobConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

// Enabled сообщает, задано ли внешнее хранилище.
func (b BlobConfig) Enabled() bool {
	return b.Endpoint != "" && b.AccessKey != "" && b.SecretKey != ""
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type WhatsAppConfig struct {
	APIURL string
	Token  string
}

// HasDatabase сообщает, настроено ли подключение к PostgreSQL.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// IsProduction сообщает, запущено ли приложение в production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load читает переменные окружения и возвращает готовую конфигурацию.
func Load() (*Config, error) {
	// Загружаем .env только если он существует, иначе используем системные переменные.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("config: не удалось прочитать .env: %v", err)
	}

	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		Env:              env,
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		DatabaseURL:      getDatabaseURL(),
		MigrationsPath:   getEnv("MIGRATIONS_PATH", "./migrations"),
		MediaStoragePath: getEnv("MEDIA_STORAGE_PATH", "./storage/media"),
		PublicAppURL:     strings.TrimRight(getEnv("PUBLIC_APP_URL", "http://localhost:3000"), "/"),
		DefaultCurrency:  strings.ToUpper(getEnv("DEFAULT_CURRENCY", "USD")),
		AI: AIConfig{
			BaseURL: getEnv("AI_BASE_URL", "https://api.x.ai/v1"),
			Model:   getEnv("AI_MODEL", "grok-3-mini"),
			APIKey:  firstNonEmpty(getEnv("XAI_API_KEY", ""), getEnv("AI_API_KEY", "")),
		},
		Blob: BlobConfig{
			Endpoint:  getEnv("BLOB_ENDPOINT", ""),
			AccessKey: getEnv("BLOB_ACCESS_KEY", ""),
			SecretKey: getEnv("BLOB_SECRET_KEY", ""),
			Bucket:    getEnv("BLOB_BUCKET", "crm"),
			UseSSL:    getEnv("BLOB_USE_SSL", "false") == "true",
			PublicURL: strings.TrimRight(getEnv("BLOB_PUBLIC_URL", ""), "/"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     int(mustParseInt64(getEnv("SMTP_PORT", "587"))),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "noreply@example.com"),
			FromName: getEnv("SMTP_FROM_NAME", "CRM"),
		},
		WhatsApp: WhatsAppConfig{
			APIURL: getEnv("WHATSAPP_API_URL", ""),
			Token:  getEnv("WHATSAPP_TOKEN", ""),
		},
		RedisURL:          getEnv("REDIS_URL", ""),
		MeiliURL:          getEnv("MEILI_URL", ""),
		MeiliAPIKey:       getEnv("MEILI_API_KEY", ""),
		ChromePath:        getEnv("CHROME_PATH", ""),
		SeedAdminEmail:    getEnv("SEED_ADMIN_EMAIL", ""),
		SeedAdminPassword: getEnv("SEED_ADMIN_PASSWORD", ""),
	}

	// Валидация JWT секретов
	jwtSecret := getEnv("JWT_SECRET", "")
	refreshSecret := getEnv("REFRESH_SECRET", "")

	if env == "production" {
		if len(jwtSecret) < 32 {
			return nil, fmt.Errorf("config: JWT_SECRET обязателен и должен быть не менее 32 символов в production")
		}
		if len(refreshSecret) < 32 {
			return nil, fmt.Errorf("config: REFRESH_SECRET обязателен и должен быть не менее 32 символов в production")
		}
	} else {
		if jwtSecret == "" {
			jwtSecret = "super-secret-development-only-change-in-production"
			log.Printf("config: WARNING - используется дефолтный JWT_SECRET, измените в production!")
		}
		if refreshSecret == "" {
			refreshSecret = "super-refresh-secret-development-only-change-in-production"
			log.Printf("config: WARNING - используется дефолтный REFRESH_SECRET, измените в production!")
		}
	}

	cfg.JWTSecret = jwtSecret
	cfg.RefreshSecret = refreshSecret

	originsStr := getEnv("CORS_ALLOWED_ORIGINS", "")
	if originsStr == "" {
		if env == "production" {
			return nil, fmt.Errorf("config: CORS_ALLOWED_ORIGINS обязателен в production")
		}
		cfg.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	} else {
		for _, origin := range strings.Split(originsStr, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	cfg.AccessTokenTTL = mustParseDuration(getEnv("ACCESS_TOKEN_TTL", "15m"))
	cfg.RefreshTokenTTL = mustParseDuration(getEnv("REFRESH_TOKEN_TTL", "720h"))
	cfg.MaxUploadSizeMB = mustParseInt64(getEnv("MAX_UPLOAD_MB", "10"))
	cfg.RateLimitLimit = mustParseInt64(getEnv("RATE_LIMIT_LIMIT", "10"))
	cfg.RateLimitPeriod = mustParseDuration(getEnv("RATE_LIMIT_PERIOD", "1m"))
	cfg.PDFTimeout = mustParseDuration(getEnv("PDF_TIMEOUT", "30s"))
	cfg.CampaignSchedulerInterval = mustParseDuration(getEnv("CAMPAIGN_SCHEDULER_INTERVAL", "1m"))

	if len(cfg.DefaultCurrency) != 3 {
		return nil, fmt.Errorf("config: DEFAULT_CURRENCY должен быть кодом ISO-4217, получено %q", cfg.DefaultCurrency)
	}

	return cfg, nil
}

// getEnv возвращает значение переменной окружения или дефолт.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// getDatabaseURL возвращает DATABASE_URL либо из переменной, либо собирает из отдельных переменных.
// Пустая строка означает работу без базы данных (резервные in-memory хранилища).
func getDatabaseURL() string {
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		return dbURL
	}

	host := getEnv("POSTGRESQL_HOST", "")
	port := getEnv("POSTGRESQL_PORT", "5432")
	user := getEnv("POSTGRESQL_USER", "")
	password := getEnv("POSTGRESQL_PASSWORD", "")
	dbname := getEnv("POSTGRESQL_DBNAME", "")

	if host != "" && user != "" && dbname != "" {
		// url.UserPassword кодирует спецсимволы в логине и пароле
		userInfo := url.UserPassword(user, password)
		return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=disable",
			userInfo.String(), host, port, dbname)
	}

	return ""
}

// mustParseDuration безопасно парсит строку в duration.
func mustParseDuration(v string) time.Duration {
	dur, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("config: не удалось распарсить длительность %q: %v", v, err)
	}
	return dur
}

// mustParseInt64 безопасно парсит строку в int64.
func mustParseInt64(v string) int64 {
	num, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("config: не удалось распарсить число %q: %v", v, err)
	}
	return num
}
