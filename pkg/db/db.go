package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

type DB struct {
	Conn *gorm.DB
}

var (
	instance *DB
	once     sync.Once
)

type openOptions struct {
	migrate bool
}

type Option func(*openOptions)

// WithoutMigration skips AutoMigrate, for connections whose schema is managed elsewhere.
func WithoutMigration() Option {
	return func(o *openOptions) { o.migrate = false }
}

// GetInstance returns the process-wide connection, opening it on first use.
func GetInstance(dialector gorm.Dialector) *DB {
	once.Do(func() {
		var err error
		instance, err = Open(dialector)
		if err != nil {
			log.Fatal("Failed to open database: ", err)
		}
	})
	return instance
}

// Open connects and migrates a new database handle. Most callers want GetInstance;
// tests use Open directly to get an isolated store.
func Open(dialector gorm.Dialector, opts ...Option) (*DB, error) {
	logger := common.GetLogger()

	o := openOptions{migrate: true}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	logger.Info("Connected to database with dialector:", zap.String("dialector", dialector.Name()))

	if dialector.Name() == "sqlite" {
		if err := tuneSqlite(conn, isMemorySqlite(dialector)); err != nil {
			return nil, err
		}
	}

	if o.migrate {
		if err := conn.AutoMigrate(&models.ThresholdSettings{}, &models.Reading{}); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("Database migration completed")
	}

	return &DB{Conn: conn}, nil
}

func tuneSqlite(conn *gorm.DB, memory bool) error {
	if memory {
		// a shared-cache memory database lives as long as one connection does, and
		// concurrent writers on it fail with SQLITE_LOCKED instead of waiting
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxOpenConns(1)
		return nil
	}

	if err := conn.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		return fmt.Errorf("set sqlite journal mode: %w", err)
	}
	if err := conn.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return fmt.Errorf("set sqlite busy timeout: %w", err)
	}
	return nil
}

func isMemorySqlite(dialector gorm.Dialector) bool {
	d, ok := dialector.(*sqlite.Dialector)
	if !ok {
		return false
	}
	return strings.Contains(d.DSN, ":memory:") || strings.Contains(d.DSN, "mode=memory")
}

func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.Conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *DB) Close() error {
	sqlDB, err := d.Conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DialectorFor maps an IOT_DB_TYPE value to a dialector.
func DialectorFor(dbType, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "file", "":
		return UseSqliteDialector(), nil
	case "memory":
		return UseMemorySqliteDialector(), nil
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("%s is required for postgres", common.EnvKeyIOTDbDSN)
		}
		return postgres.Open(dsn), nil
	case "mysql":
		if dsn == "" {
			return nil, fmt.Errorf("%s is required for mysql", common.EnvKeyIOTDbDSN)
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unknown %s: %q", common.EnvKeyIOTDBType, dbType)
	}
}

func UseSqliteDialector() gorm.Dialector {
	var dbPath string
	var found bool
	if dbPath, found = os.LookupEnv(common.EnvKeyIOTDbPath); !found {
		dbPath = "readings.db"
	}
	return sqlite.Open(dbPath)
}

func UseMemorySqliteDialector() gorm.Dialector {
	return sqlite.Open("file::memory:?cache=shared")
}

// UseNamedMemorySqliteDialector gives each name its own in-memory database.
func UseNamedMemorySqliteDialector(name string) gorm.Dialector {
	return sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}

// UsePostgresConnDialector wraps an existing connection pool (e.g. sqlmock) in the postgres dialect.
func UsePostgresConnDialector(conn gorm.ConnPool) gorm.Dialector {
	return postgres.New(postgres.Config{Conn: conn})
}
