package config

import (
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/tracing"
)

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"12333"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type DatabaseConfig struct {
	Host            string `env:"POSTGRES_HOST,required"`
	Port            string `env:"POSTGRES_PORT,required"`
	User            string `env:"POSTGRES_USER,required"`
	DBName          string `env:"POSTGRES_DB_NAME,required"`
	Password        string `env:"POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"POSTGRES_DB_MAX_CONN" envDefault:"50"`
	MaxIdleConn     int    `env:"POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
}

type GoogleOAuthConfig struct {
	ClientID     string `env:"GOOGLE_OAUTH_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
	RedirectURL  string `env:"GOOGLE_OAUTH_REDIRECT_URL"`
}

type ClassifierConfig struct {
	URL            string `env:"CLASSIFIER_API_URL,required"`
	APIKey         string `env:"CLASSIFIER_API_KEY"`
	Model          string `env:"CLASSIFIER_MODEL" envDefault:"default"`
	TimeoutSeconds int    `env:"CLASSIFIER_TIMEOUT_SECONDS" envDefault:"60"`
}

type SyncConfig struct {
	// How far back the very first sync of an account reaches.
	FirstSyncLookbackMonths int `env:"SYNC_FIRST_LOOKBACK_MONTHS" envDefault:"3"`
	// Page size for first-sync pagination.
	FirstSyncPageSize int64 `env:"SYNC_FIRST_PAGE_SIZE" envDefault:"500"`
	// Single-page bound for incremental catch-up.
	IncrementalPageSize int64 `env:"SYNC_INCREMENTAL_PAGE_SIZE" envDefault:"100"`
}

type CollectorConfig struct {
	MaxFiles               int `env:"COLLECTOR_MAX_FILES" envDefault:"5"`
	MaxPDFs                int `env:"COLLECTOR_MAX_PDFS" envDefault:"2"`
	MaxPDFBytes            int `env:"COLLECTOR_MAX_PDF_BYTES" envDefault:"5242880"`
	MinImageBytes          int `env:"COLLECTOR_MIN_IMAGE_BYTES" envDefault:"2048"`
	MaxImageBytes          int `env:"COLLECTOR_MAX_IMAGE_BYTES" envDefault:"4194304"`
	MinImageDimension      int `env:"COLLECTOR_MIN_IMAGE_DIMENSION" envDefault:"200"`
	DownloadTimeoutSeconds int `env:"COLLECTOR_DOWNLOAD_TIMEOUT_SECONDS" envDefault:"10"`
}

type R2StorageConfig struct {
	AccountID        string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID      string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	AccessKeySecret  string `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET"`
	AttachmentBucket string `env:"BUCKET_NAME_ATTACHMENT" envDefault:"attachments"`
}

func (c *R2StorageConfig) Configured() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != ""
}

type Config struct {
	AppConfig        *AppConfig
	Logger           *logger.Config
	Tracing          *tracing.JaegerConfig
	DatabaseConfig   *DatabaseConfig
	GoogleOAuth      *GoogleOAuthConfig
	ClassifierConfig *ClassifierConfig
	SyncConfig       *SyncConfig
	CollectorConfig  *CollectorConfig
	R2StorageConfig  *R2StorageConfig
}
