package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE charts (
				chart_id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				title TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				notes TEXT NOT NULL DEFAULT '',
				comments TEXT NOT NULL DEFAULT '',
				tags TEXT NOT NULL DEFAULT '',
				patch BOOLEAN NOT NULL DEFAULT FALSE,
				evergreen BOOLEAN NOT NULL DEFAULT FALSE,
				regional BOOLEAN NOT NULL DEFAULT FALSE,
				archive BOOLEAN NOT NULL DEFAULT FALSE,
				published_date TIMESTAMPTZ,
				last_modified_date TIMESTAMPTZ,
				iframe_url TEXT NOT NULL DEFAULT '',
				embed_js TEXT NOT NULL DEFAULT '',
				thumbnail TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_charts_published_date ON charts (published_date)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE sync_cache (
				chart_id TEXT PRIMARY KEY,
				title TEXT NOT NULL DEFAULT '',
				last_modified_at TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE sync_state (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				last_full_sync_at TIMESTAMPTZ
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		return nil
	}
	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{"sync_state", "sync_cache", "charts"} {
			_, err := db.Exec(`DROP TABLE IF EXISTS ` + table)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
