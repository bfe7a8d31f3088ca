package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create chats and messages",
		SQL: `
			CREATE TABLE chats (
				id            TEXT PRIMARY KEY,
				name          TEXT NOT NULL DEFAULT '',
				last_message  TEXT NOT NULL DEFAULT '',
				unread        INTEGER NOT NULL DEFAULT 0,
				timestamp     INTEGER NOT NULL DEFAULT 0,
				updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_chats_timestamp ON chats (timestamp DESC);

			CREATE TABLE messages (
				chat_id     TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
				id          TEXT NOT NULL,
				sender      TEXT NOT NULL DEFAULT '',
				from_me     INTEGER NOT NULL DEFAULT 0,
				body        TEXT NOT NULL DEFAULT '',
				timestamp   INTEGER NOT NULL,
				seen        INTEGER NOT NULL DEFAULT 0,
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (chat_id, id)
			);

			CREATE INDEX idx_messages_chat_time ON messages (chat_id, timestamp DESC);
		`,
	},
	{
		Version: 2,
		Name:    "add media descriptors",
		SQL: `
			ALTER TABLE messages ADD COLUMN media_type TEXT NOT NULL DEFAULT '';
			ALTER TABLE messages ADD COLUMN mimetype TEXT NOT NULL DEFAULT '';
			ALTER TABLE messages ADD COLUMN filename TEXT NOT NULL DEFAULT '';
			ALTER TABLE messages ADD COLUMN url TEXT NOT NULL DEFAULT '';
			ALTER TABLE messages ADD COLUMN direct_path TEXT NOT NULL DEFAULT '';
			ALTER TABLE messages ADD COLUMN media_key BLOB;
			ALTER TABLE messages ADD COLUMN file_sha256 BLOB;
			ALTER TABLE messages ADD COLUMN file_enc_sha256 BLOB;
			ALTER TABLE messages ADD COLUMN file_length INTEGER NOT NULL DEFAULT 0;
		`,
	},
}
