package store

// migration is one schema step, applied once and recorded in schema_migrations.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create credentials",
		SQL: `
			CREATE TABLE credentials (
				base_url    TEXT PRIMARY KEY,
				token       TEXT NOT NULL,
				token_type  TEXT NOT NULL DEFAULT 'bearer',
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 2,
		Name:    "remember account email",
		SQL:     `ALTER TABLE credentials ADD COLUMN email TEXT NOT NULL DEFAULT '';`,
	},
}
