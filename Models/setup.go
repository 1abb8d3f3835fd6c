package Models

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect loads the environment, opens the database and migrates the schema.
func Connect() {
	if err := godotenv.Load(".env"); err != nil {
		logrus.Info("no .env file found, using process environment")
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "database.db"
	}

	connection, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logrus.WithError(err).Fatal("failed to open database")
	}
	DB = connection

	if err := Migrate(DB); err != nil {
		logrus.WithError(err).Fatal("failed to migrate database")
	}

	logrus.WithField("db_path", dbPath).Info("database connected")
}

// Migrate runs AutoMigrate in dependency order and sets up the special
// indexes backing the KPI upsert path.
func Migrate(db *gorm.DB) error {
	// 1. Base entities with no dependencies
	if err := db.AutoMigrate(
		&Organization{},
		&User{},
		&Vehicle{},
		&Driver{},
	); err != nil {
		return err
	}

	// 2. Ledger and reference rows depending on the fleet master data
	if err := db.AutoMigrate(
		&Trip{},
		&FuelEvent{},
	); err != nil {
		return err
	}

	// 3. Derived tables written by the rollup engine
	if err := db.AutoMigrate(
		&KPICard{},
		&EventFeedItem{},
		&ValidationWarningRecord{},
	); err != nil {
		return err
	}

	return SetupKPICardIndexes(db)
}
