package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

// RunMigrations applies the schema. In production migrations run via the
// embed package; tests call this directly against :memory: databases.
func (db *DB) RunMigrations() error {
	migration := `
-- Teams (tenant boundary, exclusive owner of context nodes)
CREATE TABLE teams (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Context nodes: one row per unit of platform activity.
-- (platform, external_id) is the natural key; re-ingestion upserts.
CREATE TABLE context_nodes (
    id TEXT PRIMARY KEY,
    team_id TEXT NOT NULL,
    platform TEXT NOT NULL,
    external_id TEXT NOT NULL,
    node_type TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    author TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (platform, external_id),
    FOREIGN KEY (team_id) REFERENCES teams(id) ON DELETE CASCADE
);
CREATE INDEX idx_team_nodes ON context_nodes(team_id);
CREATE INDEX idx_team_updated ON context_nodes(team_id, updated_at DESC);
CREATE INDEX idx_node_type ON context_nodes(node_type);

-- Directed, typed, weighted edges between nodes
CREATE TABLE node_relationships (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    relation_type TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (source_id, target_id, relation_type),
    FOREIGN KEY (source_id) REFERENCES context_nodes(id) ON DELETE CASCADE,
    FOREIGN KEY (target_id) REFERENCES context_nodes(id) ON DELETE CASCADE
);
CREATE INDEX idx_rel_source ON node_relationships(source_id);
CREATE INDEX idx_rel_target ON node_relationships(target_id);

-- Per (user, platform) encrypted tokens. The partial unique index
-- enforces at most one active credential per pair.
CREATE TABLE platform_credentials (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    team_id TEXT NOT NULL,
    platform TEXT NOT NULL,
    account_id TEXT NOT NULL DEFAULT '',
    access_token BLOB NOT NULL,
    refresh_token BLOB,
    scopes TEXT NOT NULL DEFAULT '',
    expires_at TIMESTAMP,
    metadata TEXT NOT NULL DEFAULT '{}',
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX idx_active_credential ON platform_credentials(user_id, platform) WHERE is_active = 1;
CREATE INDEX idx_credential_account ON platform_credentials(platform, account_id);

-- Per (user, platform) sync bookkeeping
CREATE TABLE sync_status (
    user_id TEXT NOT NULL,
    platform TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('pending', 'partial', 'completed', 'failed')),
    last_sync_at TIMESTAMP,
    next_sync_at TIMESTAMP,
    watermark TIMESTAMP,
    items_synced INTEGER NOT NULL DEFAULT 0,
    errors TEXT NOT NULL DEFAULT '[]',
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (user_id, platform)
);

-- Inbound webhook calls, append-only on success
CREATE TABLE webhook_events (
    id TEXT PRIMARY KEY,
    platform TEXT NOT NULL,
    event_type TEXT NOT NULL,
    team_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('pending', 'processed', 'failed')),
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    processed_at TIMESTAMP
);
CREATE INDEX idx_webhook_status ON webhook_events(status);
CREATE INDEX idx_webhook_team ON webhook_events(team_id);

-- Live-connection sessions, swept after expiry
CREATE TABLE sessions (
    id TEXT PRIMARY KEY,
    connection_id TEXT NOT NULL UNIQUE,
    user_id TEXT NOT NULL,
    team_id TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT '{}',
    last_activity TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    expires_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX idx_session_expiry ON sessions(expires_at);

-- Durable job queue; a conditional claim update hands each job to
-- exactly one worker across processes.
CREATE TABLE jobs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    payload TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('pending', 'running', 'done', 'failed')),
    attempts INTEGER NOT NULL DEFAULT 0,
    run_at TIMESTAMP NOT NULL,
    claimed_by TEXT,
    last_error TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX idx_jobs_runnable ON jobs(kind, status, run_at);

-- Full-text search (SQLite FTS5)
CREATE VIRTUAL TABLE context_nodes_fts USING fts5(
    title,
    content,
    content='context_nodes',
    content_rowid='rowid'
);

-- Triggers to keep FTS index synchronized
CREATE TRIGGER context_nodes_ai AFTER INSERT ON context_nodes BEGIN
    INSERT INTO context_nodes_fts(rowid, title, content)
    VALUES (new.rowid, new.title, new.content);
END;

CREATE TRIGGER context_nodes_ad AFTER DELETE ON context_nodes BEGIN
    INSERT INTO context_nodes_fts(context_nodes_fts, rowid, title, content)
    VALUES('delete', old.rowid, old.title, old.content);
END;

CREATE TRIGGER context_nodes_au AFTER UPDATE ON context_nodes BEGIN
    INSERT INTO context_nodes_fts(context_nodes_fts, rowid, title, content)
    VALUES('delete', old.rowid, old.title, old.content);
    INSERT INTO context_nodes_fts(rowid, title, content)
    VALUES (new.rowid, new.title, new.content);
END;
`

	_, err := db.Exec(migration)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
