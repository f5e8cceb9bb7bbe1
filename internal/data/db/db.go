package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/learnworld-backend/internal/platform/envutil"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseService struct {
	db     *gorm.DB
	driver string
	dsn    string
	log    *logger.Logger
}

// NewDatabaseService opens the configured database. DB_DRIVER selects postgres (default) or sqlite.
func NewDatabaseService(logg *logger.Logger) (*DatabaseService, error) {
	serviceLog := logg.With("service", "DatabaseService")

	driver := strings.ToLower(envutil.String("DB_DRIVER", DriverPostgres))

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	}

	switch driver {
	case DriverSQLite:
		path := envutil.String("SQLITE_PATH", "learnworld.db")
		dsn := path + "?_busy_timeout=5000&_foreign_keys=on"
		db, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite %q: %w", path, err)
		}
		// sqlite allows one writer; keep the pool at one connection.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
		serviceLog.Info("database opened", "driver", driver, "path", path)
		return &DatabaseService{db: db, driver: driver, log: serviceLog}, nil

	case DriverPostgres:
		dsn := PostgresDSNFromEnv()
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(envutil.Int("POSTGRES_MAX_OPEN_CONNS", 20))
			sqlDB.SetMaxIdleConns(envutil.Int("POSTGRES_MAX_IDLE_CONNS", 5))
			sqlDB.SetConnMaxLifetime(30 * time.Minute)
		}
		serviceLog.Info("database opened", "driver", driver)
		return &DatabaseService{db: db, driver: driver, dsn: dsn, log: serviceLog}, nil

	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// PostgresDSNFromEnv assembles a DSN from the POSTGRES_* variables.
func PostgresDSNFromEnv() string {
	if dsn := envutil.String("POSTGRES_DSN", ""); dsn != "" {
		return dsn
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		envutil.String("POSTGRES_USER", "postgres"),
		envutil.String("POSTGRES_PASSWORD", ""),
		envutil.String("POSTGRES_HOST", "localhost"),
		envutil.String("POSTGRES_PORT", "5432"),
		envutil.String("POSTGRES_NAME", "learnworld"),
		envutil.String("POSTGRES_SSLMODE", "disable"),
	)
}

func (s *DatabaseService) DB() *gorm.DB { return s.db }

func (s *DatabaseService) Driver() string { return s.driver }

// DSN is set only for postgres; the LISTEN/NOTIFY bus dials it directly.
func (s *DatabaseService) DSN() string { return s.dsn }

func (s *DatabaseService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
