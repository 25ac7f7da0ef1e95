package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/asakaida/datagraph/internal/infrastructure/config"
	"github.com/asakaida/datagraph/internal/repositories/sqlstore"
)

// Database represents a SQL connection of one of the supported dialects
type Database struct {
	DB      *sql.DB
	Dialect sqlstore.Dialect
}

// Open creates a new connection for the configured dialect
func Open(cfg *config.DatabaseConfig) (*Database, error) {
	dialect, err := sqlstore.ParseDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	poolSettings(dialect).apply(db)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{DB: db, Dialect: dialect}, nil
}

// PoolSettings holds the connection pool limits of a dialect
type PoolSettings struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func poolSettings(dialect sqlstore.Dialect) PoolSettings {
	if dialect == sqlstore.SQLite {
		// every connection to an in-memory database is a separate database,
		// so the single connection must never be closed by the pool
		return PoolSettings{MaxOpenConns: 1, MaxIdleConns: 1}
	}
	return PoolSettings{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

func (p PoolSettings) apply(db *sql.DB) {
	db.SetMaxOpenConns(p.MaxOpenConns)
	db.SetMaxIdleConns(p.MaxIdleConns)
	db.SetConnMaxLifetime(p.ConnMaxLifetime)
	db.SetConnMaxIdleTime(p.ConnMaxIdleTime)
}

// NewMigrateDriver creates the golang-migrate driver for the connection's dialect
func NewMigrateDriver(db *sql.DB, dialect sqlstore.Dialect) (migratedb.Driver, error) {
	switch dialect {
	case sqlstore.Postgres:
		return postgres.WithInstance(db, &postgres.Config{})
	case sqlstore.MySQL:
		return mysql.WithInstance(db, &mysql.Config{})
	case sqlstore.SQLite:
		return sqlite.WithInstance(db, &sqlite.Config{})
	}
	return nil, fmt.Errorf("unsupported database dialect %q", dialect)
}

// NewMigrate creates a migrate instance over the migrations of the connection's dialect.
// migrationsRoot holds one directory per dialect.
func (d *Database) NewMigrate(migrationsRoot string) (*migrate.Migrate, error) {
	driver, err := NewMigrateDriver(d.DB, d.Dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s/%s", migrationsRoot, d.Dialect),
		string(d.Dialect),
		driver,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies all pending migrations
func (d *Database) RunMigrations(migrationsRoot string) error {
	m, err := d.NewMigrate(migrationsRoot)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck checks if the database connection is healthy
func (d *Database) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
