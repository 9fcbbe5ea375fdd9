package configdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE variable(
			key TEXT PRIMARY KEY,
			value TEXT
		);

		CREATE TABLE idle_alert(
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			track_id INT NOT NULL,
			time INT NOT NULL,
			idle_since INT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			confidence REAL NOT NULL,
			threshold REAL NOT NULL
		);
		CREATE INDEX idx_idle_alert_time ON idle_alert (time);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE pipeline_run(
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			source TEXT NOT NULL,
			started_at INT NOT NULL,
			stopped_at INT,
			frames INT NOT NULL DEFAULT 0,
			idle_alerts INT NOT NULL DEFAULT 0,
			error TEXT
		);
		CREATE UNIQUE INDEX idx_pipeline_run_run_id ON pipeline_run (run_id);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		ALTER TABLE idle_alert ADD COLUMN box TEXT;
	`))

	return migs
}
