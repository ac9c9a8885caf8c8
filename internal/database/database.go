package database

import (
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database owns the connection to the local sqlite store.
type Database struct {
	DB   *gorm.DB
	path string
}

// Options tunes how the store is opened.
type Options struct {
	// LogLevel for gorm's logger. Defaults to logger.Warn.
	LogLevel logger.LogLevel

	// Migrations overrides the schema history; nil means Migrations().
	Migrations []Migration
}

// NewDatabase opens the store at dbPath and brings its schema up to date.
func NewDatabase(dbPath string) (*Database, error) {
	return Open(dbPath, Options{})
}

// Open opens the store and applies pending migrations. Any migration failure
// is returned and the connection is closed: the store never runs on a partial schema.
func Open(dbPath string, opts Options) (*Database, error) {
	level := opts.LogLevel
	if level == 0 {
		level = logger.Warn
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	database := &Database{DB: db, path: dbPath}

	steps := opts.Migrations
	if steps == nil {
		steps = Migrations()
	}
	if err := Migrate(db, steps); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return database, nil
}

// Path returns the file the store was opened from.
func (d *Database) Path() string {
	return d.path
}

// SchemaVersion returns the most recent applied migration version.
func (d *Database) SchemaVersion() (int, error) {
	return currentVersion(d.DB)
}

// Store returns the entity store bound to this connection.
func (d *Database) Store() *Store {
	return NewStore(d.DB)
}

func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
