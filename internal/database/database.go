package database

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/glebarez/sqlite"
	"github.com/xelth-com/eckbackoffice/internal/config"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	embeddedDataPath = "./db_data"
	embeddedPort     = 5433
)

// DB wraps gorm.DB and includes a reference to an embedded process if active
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
}

// cleanupStaleEmbeddedPostgres stops a postgres left running by a previous crash
func cleanupStaleEmbeddedPostgres(lg *zap.Logger) {
	pidFile := filepath.Join(embeddedDataPath, "postmaster.pid")

	data, err := os.ReadFile(pidFile)
	if err != nil {
		return
	}

	// First line of postmaster.pid is the PID
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	if !scanner.Scan() {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		lg.Warn("could not parse PID from postmaster.pid", zap.Error(err))
		return
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		lg.Info("removing stale postmaster.pid", zap.Int("pid", pid))
		os.Remove(pidFile)
		return
	}

	// On Unix FindProcess always succeeds, signal 0 tells us if it is alive
	if err := process.Signal(syscall.Signal(0)); err != nil {
		lg.Info("removing stale postmaster.pid", zap.Int("pid", pid))
		os.Remove(pidFile)
		return
	}

	lg.Warn("found orphaned PostgreSQL process, stopping it", zap.Int("pid", pid))
	if err := process.Signal(syscall.SIGTERM); err != nil {
		lg.Warn("could not send SIGTERM", zap.Int("pid", pid), zap.Error(err))
	}

	for i := 0; i < 10; i++ {
		time.Sleep(500 * time.Millisecond)
		if err := process.Signal(syscall.Signal(0)); err != nil {
			os.Remove(pidFile)
			return
		}
	}

	lg.Warn("orphaned PostgreSQL did not stop, sending SIGKILL", zap.Int("pid", pid))
	process.Kill()
	time.Sleep(500 * time.Millisecond)
	os.Remove(pidFile)
}

// isPortInUse checks if a port is already in use
func isPortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Connect opens the configured database. For postgres, a localhost host without a
// password starts an embedded instance.
func Connect(cfg config.DatabaseConfig, lg *zap.Logger) (*DB, error) {
	if lg == nil {
		lg = zap.NewNop()
	}

	var (
		dialector gorm.Dialector
		embedded  *embeddedpostgres.EmbeddedPostgres
		err       error
	)

	switch cfg.Driver {
	case "sqlite":
		lg.Info("database mode: sqlite", zap.String("path", cfg.Path))
		dialector = sqlite.Open(SQLiteDSN(cfg.Path))
	case "mysql":
		if cfg.MySQLDSN == "" {
			return nil, fmt.Errorf("MYSQL_DSN is required for the mysql driver")
		}
		lg.Info("database mode: mysql")
		dialector = mysql.Open(cfg.MySQLDSN)
	default:
		dialector, embedded, err = postgresDialector(cfg, lg)
		if err != nil {
			return nil, err
		}
	}

	logLevel := logger.Info
	if cfg.Alter || cfg.Driver == "sqlite" {
		logLevel = logger.Silent
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		if cfg.Driver == "sqlite" {
			// sqlite serialises writers; one connection avoids SQLITE_BUSY inside transactions
			sqlDB.SetMaxOpenConns(1)
		} else {
			sqlDB.SetMaxIdleConns(10)
			sqlDB.SetMaxOpenConns(100)
			sqlDB.SetConnMaxLifetime(time.Hour)
		}
	}

	lg.Info("database connection established", zap.String("driver", cfg.Driver))

	return &DB{
		DB:       db,
		embedded: embedded,
	}, nil
}

// SQLiteDSN enables foreign keys and a busy timeout on a sqlite file
func SQLiteDSN(path string) string {
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func postgresDialector(cfg config.DatabaseConfig, lg *zap.Logger) (gorm.Dialector, *embeddedpostgres.EmbeddedPostgres, error) {
	var embedded *embeddedpostgres.EmbeddedPostgres
	password := cfg.Password
	port := cfg.Port

	if cfg.Host == "localhost" && cfg.Password == "" {
		lg.Info("database mode: embedded PostgreSQL")

		cleanupStaleEmbeddedPostgres(lg)

		if isPortInUse(embeddedPort) {
			lg.Warn("embedded port still in use, waiting for release", zap.Int("port", embeddedPort))
			for i := 0; i < 6; i++ {
				time.Sleep(500 * time.Millisecond)
				if !isPortInUse(embeddedPort) {
					break
				}
			}
			if isPortInUse(embeddedPort) {
				return nil, nil, fmt.Errorf("port %d is still in use by another process", embeddedPort)
			}
		}

		embeddedCfg := embeddedpostgres.DefaultConfig().
			DataPath(embeddedDataPath).
			Port(uint32(embeddedPort)).
			Database(cfg.Database).
			Username(cfg.Username).
			Password("postgres")

		embedded = embeddedpostgres.NewDatabase(embeddedCfg)
		if err := embedded.Start(); err != nil {
			return nil, nil, fmt.Errorf("failed to start embedded database: %w", err)
		}

		port = strconv.Itoa(embeddedPort)
		password = "postgres"
		lg.Info("embedded PostgreSQL started", zap.Int("port", embeddedPort))
	} else {
		lg.Info("database mode: external PostgreSQL", zap.String("host", cfg.Host), zap.String("port", cfg.Port))
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host,
		port,
		cfg.Username,
		password,
		cfg.Database,
	)
	return postgres.Open(dsn), embedded, nil
}

// Close ensures the database connection and embedded process are shut down
func (db *DB) Close() error {
	if db.embedded != nil {
		_ = db.embedded.Stop()
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate triggers GORM schema synchronization
func (db *DB) AutoMigrate(models ...interface{}) error {
	return db.DB.AutoMigrate(models...)
}

// Transaction runs fn in a database transaction bound to ctx
func (db *DB) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.DB.WithContext(ctx).Transaction(fn)
}
