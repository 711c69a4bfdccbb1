package db

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cinderbin/pkg/domain"
)

const (
	defaultMaxOpenConns = 100
	defaultMaxIdleConns = 10
	defaultQueryTimeout = 5 * time.Second
)

// Store is the relational record store for pastes and uploads. The DSN picks
// the driver: postgres:// selects postgres, anything else is a sqlite path.
type Store struct {
	db           *gorm.DB
	queryTimeout time.Duration
}

func New(dsn string) (*Store, error) {
	return NewWithConfig(dsn, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewWithConfig(dsn string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*Store, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(sqliteDSN(dsn))
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open db")
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, errors.Wrap(err, "unwrap sql.DB")
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	if err := sqlDB.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping db")
	}
	if err := gdb.AutoMigrate(&domain.Paste{}, &domain.Upload{}); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}
	return &Store{db: gdb, queryTimeout: queryTimeout}, nil
}

// sqliteDSN turns a plain path into a DSN with WAL and enforced foreign
// keys; the upload cascade depends on the latter.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}
