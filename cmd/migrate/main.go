package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/asakaida/datagraph/internal/infrastructure/config"
	"github.com/asakaida/datagraph/internal/infrastructure/database"
)

// migrationsRootSuffix holds one directory of migrations per dialect
const migrationsRootSuffix = "internal/infrastructure/database/migrations"

var (
	envFlag        string
	migrationsFlag string
	db             *database.Database
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool for datagraph",
	Long: `Database migration tool for datagraph.
Manages PostgreSQL, MySQL and SQLite schema migrations using golang-migrate.
The dialect is taken from DB_DIALECT.`,
	PersistentPreRunE:  setupDatabase,
	PersistentPostRunE: closeDatabase,
	SilenceUsage:       true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: withMigrate(func(m *migrate.Migrate, args []string) error {
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				log.Println("No migrations to apply")
				return nil
			}
			return fmt.Errorf("migration up failed: %w", err)
		}
		log.Println("Migration up completed successfully")
		return nil
	}),
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Rollback migrations",
	Long:  `Rollback the specified number of migrations (default: 1).`,
	Args:  cobra.MaximumNArgs(1),
	RunE: withMigrate(func(m *migrate.Migrate, args []string) error {
		steps := 1
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid steps %q", args[0])
			}
			steps = n
		}
		if err := m.Steps(-steps); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				log.Println("No migrations to rollback")
				return nil
			}
			return fmt.Errorf("migration down failed: %w", err)
		}
		log.Printf("Migration down completed successfully (rolled back %d migration(s))", steps)
		return nil
	}),
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate to a specific version",
	Args:  cobra.ExactArgs(1),
	RunE: withMigrate(func(m *migrate.Migrate, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		if err := m.Migrate(uint(version)); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				log.Printf("Already at version %d", version)
				return nil
			}
			return fmt.Errorf("migration goto failed: %w", err)
		}
		log.Printf("Migration goto %d completed successfully", version)
		return nil
	}),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current migration version",
	RunE: withMigrate(func(m *migrate.Migrate, args []string) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Println("Current version: No migrations applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		if dirty {
			log.Printf("Current version: %d (dirty - migration may have failed)", version)
		} else {
			log.Printf("Current version: %d", version)
		}
		return nil
	}),
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force set migration version (use with caution)",
	Long:  `Force set the migration version without running migrations. Use with caution.`,
	Args:  cobra.ExactArgs(1),
	RunE: withMigrate(func(m *migrate.Migrate, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("migration force failed: %w", err)
		}
		log.Printf("Migration forced to version %d", version)
		return nil
	}),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")
	rootCmd.PersistentFlags().StringVar(&migrationsFlag, "path", "", "Migrations root directory (default: <project root>/"+migrationsRootSuffix+")")

	rootCmd.AddCommand(upCmd, downCmd, gotoCmd, versionCmd, forceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}

func setupDatabase(cmd *cobra.Command, args []string) error {
	log.Printf("Using environment: %s", envFlag)

	// Initialize configuration from .env.{env} file
	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err = database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if db.Dialect == config.DialectSQLite {
		log.Printf("Connected to sqlite database: %s", cfg.Database.Path)
	} else {
		log.Printf("Connected to %s database: %s@%s:%d/%s",
			db.Dialect,
			cfg.Database.User,
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.Database)
	}
	return nil
}

func closeDatabase(cmd *cobra.Command, args []string) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// withMigrate runs fn with a migrate instance over the configured dialect's migrations
func withMigrate(fn func(m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		root, err := migrationsRoot()
		if err != nil {
			return err
		}
		m, err := db.NewMigrate(root)
		if err != nil {
			return err
		}
		defer m.Close()
		return fn(m, args)
	}
}

func migrationsRoot() (string, error) {
	if migrationsFlag != "" {
		return migrationsFlag, nil
	}
	projectRoot, err := findProjectRoot()
	if err != nil {
		return "", fmt.Errorf("failed to find project root: %w", err)
	}
	root := filepath.Join(projectRoot, migrationsRootSuffix)
	log.Printf("Using migrations root: %s", root)
	return root, nil
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}
