package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/windschord/claude-work/internal/common/config"
	"github.com/windschord/claude-work/internal/common/logger"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Provide opens the configured database and returns it with a cleanup func.
func Provide(cfg config.DatabaseConfig, log *logger.Logger) (*sqlx.DB, func() error, error) {
	switch cfg.Driver {
	case "", "sqlite":
		conn, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Info("database initialized", zap.String("db_driver", "sqlite"), zap.String("db_path", cfg.Path))
		cleanup := func() error {
			_, _ = conn.Exec("PRAGMA optimize")
			return conn.Close()
		}
		return sqlx.NewDb(conn, DriverSQLite), cleanup, nil
	case "postgres":
		conn, err := OpenPostgres(cfg.DSN(), cfg.MaxConns, cfg.MinConns)
		if err != nil {
			return nil, nil, err
		}
		log.Info("database initialized", zap.String("db_driver", "postgres"), zap.String("db_host", cfg.Host))
		return sqlx.NewDb(conn, DriverPostgres), conn.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
