package db

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// Db is the global database connection object
	Db *gorm.DB
	// Path is the default path to the SQLite token database
	Path = filepath.Join(os.Getenv("HOME"), ".gauth/tokens.db")
)

// InitDB creates the database directory, opens the connection, migrates
// the token table, and configures the logger.
func InitDB() error {
	if err := createDBDirectory(); err != nil {
		return err
	}

	if err := openDatabase(); err != nil {
		return err
	}

	if err := migrateTables(Db); err != nil {
		return err
	}

	configureLogger()

	log.Info().Str("path", Path).Msg("Token database initialized")
	return nil
}

func createDBDirectory() error {
	dir := filepath.Dir(Path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			log.Error().Err(err).Msg("Failed to create database directory")
			return err
		}
	}
	return nil
}

func openDatabase() error {
	var err error
	Db, err = gorm.Open(sqlite.Open(Path), &gorm.Config{})
	if err != nil {
		log.Error().Err(err).Msg("Failed to open token database")
		return err
	}
	return nil
}

func migrateTables(conn *gorm.DB) error {
	if err := conn.AutoMigrate(&TokenRecord{}); err != nil {
		log.Error().Err(err).Msg("Failed to auto-migrate token database")
		return err
	}
	return nil
}

// configureLogger silences gorm unless zerolog is enabled.
func configureLogger() {
	if zerolog.GlobalLevel() == zerolog.Disabled {
		Db.Logger = Db.Logger.LogMode(logger.Silent)
	} else {
		Db.Logger = Db.Logger.LogMode(logger.Info)
	}
}

// GetDB returns the global connection opened by InitDB.
func GetDB() *gorm.DB {
	return Db
}

// CloseDB closes the database connection.
func CloseDB() error {
	if Db == nil {
		return nil
	}
	sqlDB, err := Db.DB()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get raw database connection")
		return err
	}
	return sqlDB.Close()
}
