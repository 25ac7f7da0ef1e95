package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard configuration",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "testuser",
				Password: "testpass",
				Database: "testdb",
				SSLMode:  "disable",
			},
			want: "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable",
		},
		{
			name: "production configuration",
			cfg: DatabaseConfig{
				Host:     "db.example.com",
				Port:     5433,
				User:     "produser",
				Password: "securepass123",
				Database: "proddb",
				SSLMode:  "require",
			},
			want: "host=db.example.com port=5433 user=produser password=securepass123 dbname=proddb sslmode=require",
		},
		{
			name: "IPv6 host",
			cfg: DatabaseConfig{
				Host:     "::1",
				Port:     5432,
				User:     "user",
				Password: "pass",
				Database: "db",
				SSLMode:  "disable",
			},
			want: "host=::1 port=5432 user=user password=pass dbname=db sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ConnectionString(); got != tt.want {
				t.Errorf("DatabaseConfig.ConnectionString() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "postgres",
			cfg: DatabaseConfig{
				Dialect:  DialectPostgres,
				Host:     "localhost",
				Port:     5432,
				User:     "u",
				Password: "p",
				Database: "db",
				SSLMode:  "disable",
			},
			want: "host=localhost port=5432 user=u password=p dbname=db sslmode=disable",
		},
		{
			name: "sqlite file",
			cfg:  DatabaseConfig{Dialect: DialectSQLite, Path: "/tmp/dg.db"},
			want: "file:/tmp/dg.db?_time_format=sqlite",
		},
		{
			name: "sqlite in memory",
			cfg:  DatabaseConfig{Dialect: DialectSQLite},
			want: "file::memory:?_time_format=sqlite",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DSN(); got != tt.want {
				t.Errorf("DatabaseConfig.DSN() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDatabaseConfig_DSN_MySQL(t *testing.T) {
	cfg := DatabaseConfig{
		Dialect:  DialectMySQL,
		Host:     "localhost",
		Port:     3306,
		User:     "u",
		Password: "p",
		Database: "db",
	}

	dsn := cfg.DSN()
	for _, want := range []string{"u:p@tcp(localhost:3306)/db?", "clientFoundRows=true", "parseTime=true"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DatabaseConfig.DSN() = %v, want it to contain %v", dsn, want)
		}
	}
}

func TestInitConfig(t *testing.T) {
	// Save original working directory
	originalWd, _ := os.Getwd()
	defer os.Chdir(originalWd)

	tests := []struct {
		name    string
		env     string
		wantErr bool
	}{
		{
			name:    "default dev environment",
			env:     "",
			wantErr: false,
		},
		{
			name:    "explicit dev environment",
			env:     "dev",
			wantErr: false,
		},
		{
			name:    "test environment",
			env:     "test",
			wantErr: false,
		},
		{
			name:    "prod environment",
			env:     "prod",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset viper for each test
			viper.Reset()

			err := InitConfig(tt.env)
			if (err != nil) != tt.wantErr {
				t.Errorf("InitConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			// Verify default values are set
			if !tt.wantErr {
				if viper.GetString("SERVER_HOST") != "0.0.0.0" {
					t.Errorf("InitConfig() SERVER_HOST = %v, want 0.0.0.0", viper.GetString("SERVER_HOST"))
				}
				if viper.GetInt("SERVER_PORT") != 3000 {
					t.Errorf("InitConfig() SERVER_PORT = %v, want 3000", viper.GetInt("SERVER_PORT"))
				}
				if viper.GetInt("GRPC_PORT") != 50051 {
					t.Errorf("InitConfig() GRPC_PORT = %v, want 50051", viper.GetInt("GRPC_PORT"))
				}
				if viper.GetString("DB_DIALECT") != DialectPostgres {
					t.Errorf("InitConfig() DB_DIALECT = %v, want postgres", viper.GetString("DB_DIALECT"))
				}
				if viper.GetInt("LIMIT_RECORDS") != 10000 {
					t.Errorf("InitConfig() LIMIT_RECORDS = %v, want 10000", viper.GetInt("LIMIT_RECORDS"))
				}
				if viper.GetString("DB_HOST") != "localhost" {
					t.Errorf("InitConfig() DB_HOST = %v, want localhost", viper.GetString("DB_HOST"))
				}
				if viper.GetString("DB_USER") != "datagraph" {
					t.Errorf("InitConfig() DB_USER = %v, want datagraph", viper.GetString("DB_USER"))
				}
				if viper.GetString("DB_SSLMODE") != "disable" {
					t.Errorf("InitConfig() DB_SSLMODE = %v, want disable", viper.GetString("DB_SSLMODE"))
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setupEnv    func()
		cleanupEnv  func()
		wantErr     bool
		wantErrMsg  string
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "successful load with password",
			setupEnv: func() {
				viper.Reset()
				viper.Set("DB_PASSWORD", "testpassword")
				viper.SetDefault("SERVER_HOST", "0.0.0.0")
				viper.SetDefault("SERVER_PORT", 3000)
				viper.SetDefault("DB_HOST", "localhost")
				viper.SetDefault("DB_PORT", 15432)
				viper.SetDefault("DB_USER", "datagraph")
				viper.SetDefault("DB_NAME", "datagraph_dev")
				viper.SetDefault("DB_SSLMODE", "disable")
			},
			cleanupEnv: func() {
				viper.Reset()
			},
			wantErr: false,
			validateCfg: func(t *testing.T, cfg *Config) {
				if cfg.Server.Host != "0.0.0.0" {
					t.Errorf("Load() Server.Host = %v, want 0.0.0.0", cfg.Server.Host)
				}
				if cfg.Server.Port != 3000 {
					t.Errorf("Load() Server.Port = %v, want 3000", cfg.Server.Port)
				}
				if cfg.Database.Dialect != DialectPostgres {
					t.Errorf("Load() Database.Dialect = %v, want postgres", cfg.Database.Dialect)
				}
				if cfg.Database.Host != "localhost" {
					t.Errorf("Load() Database.Host = %v, want localhost", cfg.Database.Host)
				}
				if cfg.Database.Port != 15432 {
					t.Errorf("Load() Database.Port = %v, want 15432", cfg.Database.Port)
				}
				if cfg.Database.User != "datagraph" {
					t.Errorf("Load() Database.User = %v, want datagraph", cfg.Database.User)
				}
				if cfg.Database.Password != "testpassword" {
					t.Errorf("Load() Database.Password = %v, want testpassword", cfg.Database.Password)
				}
				if cfg.Database.Database != "datagraph_dev" {
					t.Errorf("Load() Database.Database = %v, want datagraph_dev", cfg.Database.Database)
				}
				if cfg.Database.SSLMode != "disable" {
					t.Errorf("Load() Database.SSLMode = %v, want disable", cfg.Database.SSLMode)
				}
			},
		},
		{
			name: "missing password",
			setupEnv: func() {
				viper.Reset()
				viper.SetDefault("SERVER_HOST", "0.0.0.0")
				viper.SetDefault("SERVER_PORT", 3000)
			},
			cleanupEnv: func() {
				viper.Reset()
			},
			wantErr:    true,
			wantErrMsg: "DB_PASSWORD is required (set via environment variable or .env file)",
		},
		{
			name: "custom server config",
			setupEnv: func() {
				viper.Reset()
				viper.Set("DB_PASSWORD", "pass123")
				viper.Set("SERVER_HOST", "custom.host")
				viper.Set("SERVER_PORT", 8080)
				viper.SetDefault("DB_HOST", "localhost")
				viper.SetDefault("DB_PORT", 15432)
				viper.SetDefault("DB_USER", "datagraph")
				viper.SetDefault("DB_NAME", "datagraph_dev")
				viper.SetDefault("DB_SSLMODE", "disable")
			},
			cleanupEnv: func() {
				viper.Reset()
			},
			wantErr: false,
			validateCfg: func(t *testing.T, cfg *Config) {
				if cfg.Server.Host != "custom.host" {
					t.Errorf("Load() Server.Host = %v, want custom.host", cfg.Server.Host)
				}
				if cfg.Server.Port != 8080 {
					t.Errorf("Load() Server.Port = %v, want 8080", cfg.Server.Port)
				}
			},
		},
		{
			name: "sqlite needs no password",
			setupEnv: func() {
				viper.Reset()
				viper.Set("DB_DIALECT", "sqlite")
				viper.Set("DB_PATH", "/tmp/datagraph.db")
			},
			cleanupEnv: func() {
				viper.Reset()
			},
			wantErr: false,
			validateCfg: func(t *testing.T, cfg *Config) {
				if cfg.Database.Dialect != DialectSQLite {
					t.Errorf("Load() Database.Dialect = %v, want sqlite", cfg.Database.Dialect)
				}
				if cfg.Database.Path != "/tmp/datagraph.db" {
					t.Errorf("Load() Database.Path = %v, want /tmp/datagraph.db", cfg.Database.Path)
				}
			},
		},
		{
			name: "unsupported dialect",
			setupEnv: func() {
				viper.Reset()
				viper.Set("DB_DIALECT", "oracle")
				viper.Set("DB_PASSWORD", "pass")
			},
			cleanupEnv: func() {
				viper.Reset()
			},
			wantErr:    true,
			wantErrMsg: `unsupported DB_DIALECT "oracle" (want postgres, mysql or sqlite)`,
		},
		{
			name: "sign in requires jwt secret",
			setupEnv: func() {
				viper.Reset()
				viper.Set("DB_PASSWORD", "pass")
				viper.Set("REQUIRE_SIGN_IN", true)
				viper.Set("ACL_RULES_PATH", "acl.yaml")
			},
			cleanupEnv: func() {
				viper.Reset()
			},
			wantErr:    true,
			wantErrMsg: "JWT_SECRET is required when REQUIRE_SIGN_IN is enabled",
		},
		{
			name: "limits and email",
			setupEnv: func() {
				viper.Reset()
				viper.Set("DB_PASSWORD", "pass")
				viper.Set("LIMIT_RECORDS", 50)
				viper.Set("ASSOCIATION_CONCURRENCY", 4)
				viper.Set("LOADER_WAIT_MS", 3)
				viper.Set("MAILGUN_DOMAIN", "mg.example.com")
				viper.Set("MAILGUN_API_KEY", "key")
			},
			cleanupEnv: func() {
				viper.Reset()
			},
			wantErr: false,
			validateCfg: func(t *testing.T, cfg *Config) {
				if cfg.Limits.MaxRecords != 50 {
					t.Errorf("Load() Limits.MaxRecords = %v, want 50", cfg.Limits.MaxRecords)
				}
				if cfg.Limits.Concurrency != 4 {
					t.Errorf("Load() Limits.Concurrency = %v, want 4", cfg.Limits.Concurrency)
				}
				if cfg.Limits.LoaderWait != 3*time.Millisecond {
					t.Errorf("Load() Limits.LoaderWait = %v, want 3ms", cfg.Limits.LoaderWait)
				}
				if !cfg.Email.Enabled() {
					t.Errorf("Load() Email.Enabled() = false, want true")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupEnv()
			defer tt.cleanupEnv()

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if err.Error() != tt.wantErrMsg {
					t.Errorf("Load() error = %v, want %v", err.Error(), tt.wantErrMsg)
				}
				return
			}

			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestFindProjectRoot(t *testing.T) {
	// Save original working directory
	originalWd, _ := os.Getwd()
	defer os.Chdir(originalWd)

	// This test assumes we're running from within the project
	root, err := findProjectRoot()
	if err != nil {
		t.Errorf("findProjectRoot() error = %v, want nil", err)
		return
	}

	// Verify go.mod exists in the returned root
	goModPath := root + "/go.mod"
	if _, err := os.Stat(goModPath); os.IsNotExist(err) {
		t.Errorf("findProjectRoot() returned %v, but go.mod does not exist at %v", root, goModPath)
	}
}
