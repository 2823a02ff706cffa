package notmuch

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	_ "modernc.org/sqlite"
)

const (
	driverName = "sqlite"
	dialect    = "sqlite3"
)

var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_index",
			Up: []string{
				`CREATE TABLE index_state (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					indexed_at INTEGER NOT NULL
				)`,
				`CREATE TABLE folders (
					name TEXT PRIMARY KEY,
					signature TEXT NOT NULL
				)`,
				`CREATE TABLE messages (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					message_id TEXT NOT NULL,
					folder TEXT NOT NULL,
					path TEXT NOT NULL,
					subject TEXT NOT NULL DEFAULT '',
					sender TEXT NOT NULL DEFAULT '',
					recipients TEXT NOT NULL DEFAULT '',
					cc TEXT NOT NULL DEFAULT '',
					date INTEGER NOT NULL,
					size INTEGER NOT NULL,
					is_new INTEGER NOT NULL DEFAULT 0,
					body TEXT NOT NULL DEFAULT '',
					UNIQUE (folder, path)
				)`,
				`CREATE INDEX messages_message_id ON messages (message_id)`,
				`CREATE TABLE tags (
					message_id TEXT NOT NULL,
					tag TEXT NOT NULL,
					PRIMARY KEY (message_id, tag)
				)`,
			},
			Down: []string{
				`DROP TABLE tags`,
				`DROP TABLE messages`,
				`DROP TABLE folders`,
				`DROP TABLE index_state`,
			},
		},
	},
}

func openDatabase(datasource string) (*sqlx.DB, int, error) {
	db, err := sqlx.Connect(driverName, datasource)
	if err != nil {
		return nil, 0, fmt.Errorf("could not open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`PRAGMA journal_mode=WAL`)
	if err != nil {
		db.Close()
		return nil, 0, fmt.Errorf("could not set journal mode: %w", err)
	}
	_, err = db.Exec(`PRAGMA synchronous=normal`)
	if err != nil {
		db.Close()
		return nil, 0, fmt.Errorf("could not set synchronous mode: %w", err)
	}

	applied, err := migrate.Exec(db.DB, dialect, migrations, migrate.Up)
	if err != nil {
		db.Close()
		return nil, 0, fmt.Errorf("could not migrate to newest version: %w", err)
	}
	return db, applied, nil
}

func txEnd(tx *sqlx.Tx, err error) error {
	if err == nil {
		err = tx.Commit()
		if err != nil {
			return fmt.Errorf("could not commit tx: %w", err)
		}
		return nil
	}
	rollbackErr := tx.Rollback()
	if rollbackErr != nil {
		return fmt.Errorf("%s, could not rollback tx: %w", err.Error(), rollbackErr)
	}
	return err
}
