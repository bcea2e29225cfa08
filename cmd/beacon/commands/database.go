package commands

import (
	"database/sql"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/db"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/logger"
)

// openDatabase opens and migrates the database at the given path.
// If dbPath is empty, it loads the path from config.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load configuration")
		}
		dbPath = cfg.Database.Path
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}
