package database

import (
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/eventreg/config"
)

// Databases holds the write connection and its read-only counterpart. On
// deployments without a read replica both point at the same database.
type Databases struct {
	DB         *gorm.DB
	ReadOnlyDB *gorm.DB
}

// Connect establishes the write and read-only database connections and
// configures their pools.
func Connect(cfg config.DatabaseConfig) (*Databases, error) {
	db, err := open(cfg.DSN, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	readOnlyDB := db
	if cfg.ReadOnlyDSN != "" && cfg.ReadOnlyDSN != cfg.DSN {
		readOnlyDB, err = open(cfg.ReadOnlyDSN, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to read-only database")
		}
	}

	return &Databases{DB: db, ReadOnlyDB: readOnlyDB}, nil
}

// gormConfig is shared by both connections. TranslateError maps driver
// unique-violations to gorm.ErrDuplicatedKey; webhook dedupe and payment
// insert conflicts depend on that translation.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}
}

func open(dsn string, cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get DB instance")
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// Close closes both connections.
func (d *Databases) Close() error {
	if err := closeDB(d.DB); err != nil {
		return err
	}
	if d.ReadOnlyDB != d.DB {
		return closeDB(d.ReadOnlyDB)
	}
	return nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
