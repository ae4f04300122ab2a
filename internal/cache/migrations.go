package cache

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS category_snapshots (
	id       INTEGER PRIMARY KEY CHECK(id = 1),
	payload  TEXT NOT NULL,
	saved_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS filter_prefs (
	view       TEXT PRIMARY KEY,
	filters    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
