package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Supported database dialects
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Limits   LimitsConfig
	Auth     AuthConfig
	Email    EmailConfig
	Models   ModelsConfig
	Log      LogConfig
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string
	Port            int // GraphQL HTTP port
	GRPCPort        int // gRPC health service port
	MetricsPort     int // Port for Prometheus metrics HTTP server
	ShutdownTimeout time.Duration
}

// CacheConfig configures the authorization decision cache
type CacheConfig struct {
	Enabled    bool
	MaxEntries int
	TTLMinutes int // Time-to-live for cache entries in minutes
}

// LimitsConfig bounds the work a single request may cause
type LimitsConfig struct {
	MaxRecords     int // LIMIT_RECORDS; 0 disables the budget
	Concurrency    int // parallel association updates per operation
	LoaderWait     time.Duration
	LoaderMaxBatch int
}

// AuthConfig represents authentication and ACL configuration
type AuthConfig struct {
	RequireSignIn bool
	JWTSecret     string
	ACLRulesPath  string
}

// EmailConfig configures the mail sent when a CSV import finishes
type EmailConfig struct {
	MailgunDomain string
	MailgunAPIKey string
	From          string
}

// Enabled reports whether import results are mailed instead of logged
func (c *EmailConfig) Enabled() bool {
	return c.MailgunDomain != "" && c.MailgunAPIKey != ""
}

// ModelsConfig locates the model definitions. An empty Dir uses the embedded models.
type ModelsConfig struct {
	Dir string
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level       string
	Development bool
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Dialect  string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Path     string // SQLite file; empty or ":memory:" for an in-memory database
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the root directory
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	// Find project root
	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	// Set config file name based on environment
	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot) // Project root

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	setDefaults()
	return nil
}

func setDefaults() {
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 3000)
	viper.SetDefault("GRPC_PORT", 50051)
	viper.SetDefault("METRICS_PORT", 9090)
	viper.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 10)

	viper.SetDefault("DB_DIALECT", DialectPostgres)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "datagraph")
	viper.SetDefault("DB_NAME", "datagraph_dev")
	viper.SetDefault("DB_SSLMODE", "disable")

	// Cache defaults
	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_MAX_ENTRIES", 10000)
	viper.SetDefault("CACHE_TTL_MINUTES", 5)

	viper.SetDefault("LIMIT_RECORDS", 10000)
	viper.SetDefault("ASSOCIATION_CONCURRENCY", 16)
	viper.SetDefault("LOADER_WAIT_MS", 1)
	viper.SetDefault("LOADER_MAX_BATCH", 100)

	viper.SetDefault("REQUIRE_SIGN_IN", false)
	viper.SetDefault("EMAIL_FROM", "datagraph <noreply@localhost>")

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_DEVELOPMENT", false)
}

// Load loads configuration from viper
func Load() (*Config, error) {
	dialect := viper.GetString("DB_DIALECT")
	if dialect == "" {
		dialect = DialectPostgres
	}
	switch dialect {
	case DialectPostgres, DialectMySQL, DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported DB_DIALECT %q (want postgres, mysql or sqlite)", dialect)
	}

	// DB_PASSWORD is required for security
	dbPassword := viper.GetString("DB_PASSWORD")
	if dbPassword == "" && dialect != DialectSQLite {
		return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
	}

	config := &Config{
		Server: ServerConfig{
			Host:            viper.GetString("SERVER_HOST"),
			Port:            viper.GetInt("SERVER_PORT"),
			GRPCPort:        viper.GetInt("GRPC_PORT"),
			MetricsPort:     viper.GetInt("METRICS_PORT"),
			ShutdownTimeout: time.Duration(viper.GetInt("SHUTDOWN_TIMEOUT_SECONDS")) * time.Second,
		},
		Database: DatabaseConfig{
			Dialect:  dialect,
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: dbPassword,
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
			Path:     viper.GetString("DB_PATH"),
		},
		Cache: CacheConfig{
			Enabled:    viper.GetBool("CACHE_ENABLED"),
			MaxEntries: viper.GetInt("CACHE_MAX_ENTRIES"),
			TTLMinutes: viper.GetInt("CACHE_TTL_MINUTES"),
		},
		Limits: LimitsConfig{
			MaxRecords:     viper.GetInt("LIMIT_RECORDS"),
			Concurrency:    viper.GetInt("ASSOCIATION_CONCURRENCY"),
			LoaderWait:     time.Duration(viper.GetInt("LOADER_WAIT_MS")) * time.Millisecond,
			LoaderMaxBatch: viper.GetInt("LOADER_MAX_BATCH"),
		},
		Auth: AuthConfig{
			RequireSignIn: viper.GetBool("REQUIRE_SIGN_IN"),
			JWTSecret:     viper.GetString("JWT_SECRET"),
			ACLRulesPath:  viper.GetString("ACL_RULES_PATH"),
		},
		Email: EmailConfig{
			MailgunDomain: viper.GetString("MAILGUN_DOMAIN"),
			MailgunAPIKey: viper.GetString("MAILGUN_API_KEY"),
			From:          viper.GetString("EMAIL_FROM"),
		},
		Models: ModelsConfig{
			Dir: viper.GetString("MODELS_DIR"),
		},
		Log: LogConfig{
			Level:       viper.GetString("LOG_LEVEL"),
			Development: viper.GetBool("LOG_DEVELOPMENT"),
		},
	}

	if config.Auth.RequireSignIn {
		if config.Auth.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required when REQUIRE_SIGN_IN is enabled")
		}
		if config.Auth.ACLRulesPath == "" {
			return nil, fmt.Errorf("ACL_RULES_PATH is required when REQUIRE_SIGN_IN is enabled")
		}
	}

	return config, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}

// DSN returns the data source name for the configured dialect
func (c *DatabaseConfig) DSN() string {
	switch c.Dialect {
	case DialectMySQL:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
		mc.DBName = c.Database
		mc.ParseTime = true
		// affected rows must count matched rows so that no-op updates are not misses
		mc.ClientFoundRows = true
		// migration files hold several statements
		mc.MultiStatements = true
		return mc.FormatDSN()
	case DialectSQLite:
		if c.Path == "" || c.Path == ":memory:" {
			return "file::memory:?_time_format=sqlite"
		}
		return "file:" + c.Path + "?_time_format=sqlite"
	default:
		return c.ConnectionString()
	}
}

// MigrationURL returns the golang-migrate database URL for the configured dialect
func (c *DatabaseConfig) MigrationURL() string {
	switch c.Dialect {
	case DialectMySQL:
		return "mysql://" + c.DSN()
	case DialectSQLite:
		return "sqlite://" + c.Path
	default:
		return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
			c.User, c.Password, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Database, c.SSLMode)
	}
}
