package store

const Schema = `
-- Each row holds one whole serialized document, rewritten on every save
CREATE TABLE IF NOT EXISTS documents (
	name TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
