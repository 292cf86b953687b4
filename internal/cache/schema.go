package cache

// Schema contains SQL schema definitions for the cache
const Schema = `
-- One row per (account identity, folder)
CREATE TABLE IF NOT EXISTS folder_state (
    account_key TEXT NOT NULL,
    folder TEXT NOT NULL,
    uid_validity TEXT NOT NULL DEFAULT '',
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (account_key, folder)
);

-- UID snapshots; query-scoped folders keep their own scope
CREATE TABLE IF NOT EXISTS folder_uids (
    account_key TEXT NOT NULL,
    folder TEXT NOT NULL,
    scope TEXT NOT NULL DEFAULT '',
    uids TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (account_key, folder, scope)
);

-- Serialized header records
CREATE TABLE IF NOT EXISTS folder_headers (
    account_key TEXT NOT NULL,
    folder TEXT NOT NULL,
    uid INTEGER NOT NULL,
    headers BLOB NOT NULL,
    cached_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (account_key, folder, uid)
);

-- Contacts seen in fetched envelopes
CREATE TABLE IF NOT EXISTS contacts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    address TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(name, address)
);

CREATE INDEX IF NOT EXISTS idx_contacts_address ON contacts(address);
`
