package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// maxPresignTTL is the longest expiry an S3 SigV4 presigned URL accepts.
const maxPresignTTL = 7 * 24 * time.Hour

// Config aggregates runtime configuration for the KPCloud API.
type Config struct {
	Env         string            `envconfig:"KPCLOUD_ENV" default:"development" validate:"oneof=development staging production test"`
	Server      ServerConfig      `envconfig:"KPCLOUD_API"`
	ObjectStore ObjectStoreConfig `envconfig:"KPCLOUD_OBJECT_STORE"`
	MinIO       MinIOConfig       `envconfig:"MINIO"`
	S3          S3Config          `envconfig:"S3"`
	Database    DatabaseConfig    `envconfig:"KPCLOUD_DB"`
	Postgres    PostgresConfig    `envconfig:"POSTGRES"`
	Mongo       MongoConfig       `envconfig:"MONGO"`
	Auth        AuthConfig        `envconfig:"KPCLOUD_AUTH"`
	Billing     BillingConfig     `envconfig:"KPCLOUD_BILLING"`
	Grants      GrantsConfig      `envconfig:"KPCLOUD_GRANTS"`
	Notify      NotifyConfig      `envconfig:"KPCLOUD_NOTIFY"`
	PubSub      PubSubConfig      `envconfig:"PUBSUB"`
	Metrics     MetricsConfig     `envconfig:"KPCLOUD_METRICS"`
	Sweeper     SweeperConfig     `envconfig:"KPCLOUD_SWEEPER"`
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host            string        `default:"0.0.0.0"`
	Port            int           `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `split_words:"true" default:"15s"`
	WriteTimeout    time.Duration `split_words:"true" default:"120s"`
	IdleTimeout     time.Duration `split_words:"true" default:"60s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
	AllowedOrigins  []string      `split_words:"true" default:"*"`
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ObjectStoreConfig selects and tunes the object store driver.
type ObjectStoreConfig struct {
	Driver         string        `default:"minio" validate:"oneof=minio s3 memory"`
	Bucket         string        `default:"kpcloud" validate:"required"`
	RequestTimeout   time.Duration `split_words:"true" default:"30s"`
	UsageScanTimeout time.Duration `split_words:"true" default:"2m"`
	ListPageSize     int           `split_words:"true" default:"1000" validate:"min=1,max=1000"`
	EnsureBucket     bool          `split_words:"true" default:"true"`
}

// MinIOConfig carries MinIO connection information.
type MinIOConfig struct {
	Endpoint        string `default:"localhost:9000"`
	AccessKeyID     string `split_words:"true"`
	SecretAccessKey string `split_words:"true"`
	UseSSL          bool   `envconfig:"USE_SSL"`
	Region          string
}

// S3Config carries S3 or Cloudflare R2 connection information.
type S3Config struct {
	Endpoint        string
	AccountID       string `split_words:"true"`
	Region          string `default:"auto"`
	AccessKeyID     string `split_words:"true"`
	SecretAccessKey string `split_words:"true"`
	UsePathStyle    bool   `split_words:"true" default:"true"`
}

// ResolvedEndpoint returns the explicit endpoint or the R2 endpoint derived from the account id.
func (s S3Config) ResolvedEndpoint() string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	if s.AccountID != "" {
		return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", s.AccountID)
	}
	return ""
}

// DatabaseConfig selects the document store backing accounts and activity.
type DatabaseConfig struct {
	Driver string `default:"postgres" validate:"oneof=postgres mongo memory"`
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string `default:"localhost"`
	Port     int    `default:"5432"`
	User     string `default:"kpcloud_app"`
	Password string `default:"change-me"`
	Database string `default:"kpcloud"`
	SSLMode  string `default:"disable"`
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, strings.ToLower(p.SSLMode))
}

// MongoConfig contains MongoDB connection details.
type MongoConfig struct {
	URI      string `default:"mongodb://localhost:27017"`
	Database string `default:"kpcloud"`
}

// AuthConfig configures verification of identity provider tokens.
type AuthConfig struct {
	Mode         string `default:"hmac" validate:"oneof=hmac oidc"`
	JWTSecret    string `split_words:"true"`
	Issuer       string
	Audience     string
	OIDCIssuer   string `envconfig:"OIDC_ISSUER"`
	OIDCClientID string `envconfig:"OIDC_CLIENT_ID"`
}

// BillingConfig parameterizes the monthly billing cycle.
type BillingConfig struct {
	RatePerGB   int64         `split_words:"true" default:"25" validate:"min=0"`
	CycleLength time.Duration `split_words:"true" default:"720h"`
	GracePeriod time.Duration `split_words:"true" default:"360h"`
	MaxQuotaGB  int           `split_words:"true" default:"1000" validate:"min=1"`
}

// GrantsConfig holds the lifetimes of issued capability URLs.
type GrantsConfig struct {
	UploadTTL   time.Duration `split_words:"true" default:"15m"`
	DownloadTTL time.Duration `split_words:"true" default:"1h"`
	PreviewTTL  time.Duration `split_words:"true" default:"10m"`
	ShareTTL    time.Duration `split_words:"true" default:"168h"`
}

// NotifyConfig selects where account notices are sent.
type NotifyConfig struct {
	Sender string `default:"log" validate:"oneof=log pubsub"`
	From   string `default:"noreply@kpcloud.app"`
}

// PubSubConfig configures the notification topic.
type PubSubConfig struct {
	ProjectID string `split_words:"true"`
	Topic     string `default:"kpcloud-notifications"`
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	Enabled bool   `default:"true"`
	Path    string `default:"/metrics"`
}

// SweeperConfig controls the periodic billing sweep. Billing always ticks on
// storage status queries; the sweeper only adds ticks for idle accounts.
type SweeperConfig struct {
	Enabled  bool          `default:"false"`
	Interval time.Duration `default:"1h"`
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field requirements.
func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var problems []string
	switch c.ObjectStore.Driver {
	case "minio":
		if c.MinIO.Endpoint == "" {
			problems = append(problems, "MINIO_ENDPOINT is required for the minio driver")
		}
	case "s3":
		if c.S3.ResolvedEndpoint() == "" {
			problems = append(problems, "S3_ENDPOINT or S3_ACCOUNT_ID is required for the s3 driver")
		}
	}
	switch c.Auth.Mode {
	case "hmac":
		if c.Auth.JWTSecret == "" {
			problems = append(problems, "KPCLOUD_AUTH_JWT_SECRET is required in hmac mode")
		}
	case "oidc":
		if c.Auth.OIDCIssuer == "" || c.Auth.OIDCClientID == "" {
			problems = append(problems, "KPCLOUD_AUTH_OIDC_ISSUER and KPCLOUD_AUTH_OIDC_CLIENT_ID are required in oidc mode")
		}
	}
	if c.Notify.Sender == "pubsub" && c.PubSub.ProjectID == "" {
		problems = append(problems, "PUBSUB_PROJECT_ID is required for the pubsub sender")
	}
	if c.Grants.ShareTTL > maxPresignTTL || c.Grants.DownloadTTL > maxPresignTTL {
		problems = append(problems, "grant lifetimes cannot exceed 168h")
	}
	if c.Billing.CycleLength <= 0 || c.Billing.GracePeriod <= 0 {
		problems = append(problems, "billing cycle and grace period must be positive")
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		problems = append(problems, "KPCLOUD_SWEEPER_INTERVAL must be positive")
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}
