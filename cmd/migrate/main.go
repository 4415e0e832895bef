package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/migration"
)

const defaultMigrationsPath = "migrations"

var errUsage = errors.New("invalid usage")

// schemaMigrator is the part of migration.Migrator the schema commands drive
type schemaMigrator interface {
	Up() error
	Down() error
	Steps(n int) error
	GoTo(version uint) error
	Version() (uint, bool, error)
	Force(version int) error
}

func main() {
	var (
		migrationsPath string
		configPath     string
		logLevel       string
	)
	flag.StringVar(&migrationsPath, "path", "", "Read migrations from this directory instead of the embedded set")
	flag.StringVar(&configPath, "config", "", "Configuration file (default: config.toml in . or /app)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	if err := run(args, migrationsPath, configPath, os.Stdout, log); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			printUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal("Migration command failed", zap.String("command", args[0]), zap.Error(err))
	}
}

// run executes one migration command. create and list work on the migrations
// directory only; every other command connects to the configured database.
func run(args []string, migrationsPath, configPath string, out io.Writer, log *zap.Logger) error {
	command := args[0]
	switch command {
	case "create":
		return createMigration(args[1:], dirOrDefault(migrationsPath), log)
	case "list":
		return listMigrations(dirOrDefault(migrationsPath), out)
	case "up", "down", "step", "goto", "version", "force":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	var opts []migration.Option
	if migrationsPath != "" {
		abs, err := filepath.Abs(migrationsPath)
		if err != nil {
			return fmt.Errorf("resolve migrations path: %w", err)
		}
		opts = append(opts, migration.WithPath(abs))
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, log, opts...)
	if err != nil {
		return err
	}
	defer m.Close()

	return runSchemaCommand(m, command, args[1:], log)
}

func runSchemaCommand(m schemaMigrator, command string, args []string, log *zap.Logger) error {
	switch command {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "step":
		n, err := intArg(args, "step count")
		if err != nil {
			return err
		}
		return m.Steps(n)
	case "goto":
		n, err := intArg(args, "version")
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: version cannot be negative", errUsage)
		}
		return m.GoTo(uint(n))
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if version == 0 {
			log.Info("No migrations applied")
			return nil
		}
		log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	case "force":
		n, err := intArg(args, "version")
		if err != nil {
			return err
		}
		log.Warn("Forcing migration version; the schema is not changed")
		return m.Force(n)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, command)
}

func createMigration(args []string, dir string, log *zap.Logger) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: migration name required", errUsage)
	}
	description := ""
	if len(args) > 1 {
		description = args[1]
	}
	mf, err := migration.CreateMigration(dir, args[0], description)
	if err != nil {
		return err
	}
	log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
	return nil
}

func listMigrations(dir string, out io.Writer) error {
	names, err := migration.ListMigrations(dir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(out, "no migrations found in", dir)
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func intArg(args []string, what string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%w: %s required", errUsage, what)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errUsage, what, args[0])
	}
	return n, nil
}

func dirOrDefault(path string) string {
	if path == "" {
		return defaultMigrationsPath
	}
	return path
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Storefront database migration tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (negative rolls back)
  goto <version>        Migrate to a specific version
  version               Show the current migration version
  force <version>       Set the recorded version without migrating
  create <name> [desc]  Create the next migration file pair
  list                  List migrations in the migrations directory

Flags:
  -path string          Read migrations from a directory (default: embedded set;
                        create and list use ./migrations)
  -config string        Configuration file
  -log-level string     Log level: debug, info, warn, error (default: info)

The database connection is read from the configuration and the
SHOP_DATABASE_* environment variables.
`)
}
