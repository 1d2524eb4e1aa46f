package fleetdb

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// modernc pure-Go SQLite driver — no CGO required. Registers itself as
	// "sqlite" in database/sql.
	_ "modernc.org/sqlite"
)

// Migrations are kept per driver: the schema DDL is shared-by-copy, but
// the graph bucket views diverge (plain strftime views on SQLite, real
// date_trunc materialized views on Postgres).
//
//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Config holds the parameters needed to open the DB actor's single
// connection. Driver defaults to "sqlite" if left empty.
type Config struct {
	Driver   string // "sqlite" or "postgres"
	DSN      string
	Logger   *zap.Logger
	LogLevel gormlogger.LogLevel
}

// openSingleConnection opens a *gorm.DB backed by exactly one underlying
// connection, owned exclusively by the DB actor goroutine. SQLite only ever
// had one writer anyway; this applies the same discipline to Postgres, and
// additionally sets statement_timeout on that one Postgres connection.
func openSingleConnection(cfg Config) (*gorm.DB, string, *sql.DB, error) {
	gormCfg := &gorm.Config{Logger: newZapGORMLogger(cfg.Logger, cfg.LogLevel)}

	switch cfg.Driver {
	case "sqlite", "":
		sqlDB, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, "", nil, fmt.Errorf("fleetdb: open sqlite: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)

		database, err := gorm.Open(gormsqlite.Dialector{Conn: sqlDB}, gormCfg)
		if err != nil {
			return nil, "", nil, fmt.Errorf("fleetdb: gorm open sqlite: %w", err)
		}
		return database, "sqlite", sqlDB, nil

	case "postgres":
		database, err := gorm.Open(gormpostgres.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, "", nil, fmt.Errorf("fleetdb: open postgres: %w", err)
		}
		sqlDB, err := database.DB()
		if err != nil {
			return nil, "", nil, fmt.Errorf("fleetdb: get sql.DB: %w", err)
		}
		// One dedicated connection owned exclusively by the actor.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)

		if _, err := sqlDB.Exec(`SET statement_timeout = '2000ms'`); err != nil {
			return nil, "", nil, fmt.Errorf("fleetdb: set statement_timeout: %w", err)
		}
		return database, "postgres", sqlDB, nil

	default:
		return nil, "", nil, fmt.Errorf("fleetdb: unsupported driver %q, use \"sqlite\" or \"postgres\"", cfg.Driver)
	}
}

func runMigrations(sqlDB *sql.DB, driver string, log *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("fleetdb: migration source for %s: %w", driver, err)
	}

	var m *migrate.Migrate
	switch driver {
	case "sqlite":
		drv, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
		if err != nil {
			return fmt.Errorf("fleetdb: sqlite migrate driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", drv)
		if err != nil {
			return fmt.Errorf("fleetdb: migrator: %w", err)
		}
	case "postgres":
		drv, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
		if err != nil {
			return fmt.Errorf("fleetdb: postgres migrate driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "postgres", drv)
		if err != nil {
			return fmt.Errorf("fleetdb: migrator: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("fleetdb: apply migrations: %w", err)
	}
	log.Info("fleetdb: migrations applied")
	return nil
}
