package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "relationships: tracked people and their aggregate signals",
		SQL: `
CREATE TABLE relationships (
    id                             TEXT PRIMARY KEY,
    name                           TEXT NOT NULL,
    tier                           TEXT NOT NULL DEFAULT 'casual' CHECK (tier IN ('inner', 'close', 'casual')),
    archetype                      TEXT NOT NULL DEFAULT '',
    current_score                  REAL NOT NULL DEFAULT 50,
    momentum_score                 REAL NOT NULL DEFAULT 0,
    dormant                        INTEGER NOT NULL DEFAULT 0,
    resilience                     REAL NOT NULL DEFAULT 1.0,
    birthday                       TEXT NOT NULL DEFAULT '',
    anniversary                    TEXT NOT NULL DEFAULT '',

    -- Reciprocity
    total_user_initiations         REAL NOT NULL DEFAULT 0,
    total_friend_initiations       REAL NOT NULL DEFAULT 0,
    consecutive_user_initiations   INTEGER NOT NULL DEFAULT 0,
    consecutive_friend_initiations INTEGER NOT NULL DEFAULT 0,
    initiation_ratio               REAL NOT NULL DEFAULT 0.5,
    last_initiated_by              TEXT NOT NULL DEFAULT '',

    -- Learned effectiveness (JSON object category -> multiplier)
    category_effectiveness         TEXT NOT NULL DEFAULT '{}',
    outcome_count                  INTEGER NOT NULL DEFAULT 0,

    created_at                     INTEGER NOT NULL,
    updated_at                     INTEGER NOT NULL
);

CREATE INDEX idx_relationships_dormant ON relationships(dormant);
`,
	},
	{
		Version:     2,
		Description: "interactions: logged and planned events with participants",
		SQL: `
CREATE TABLE interactions (
    id             TEXT PRIMARY KEY,
    category       TEXT NOT NULL,
    status         TEXT NOT NULL CHECK (status IN ('planned', 'completed')),
    occurred_at    INTEGER NOT NULL,
    vibe           INTEGER,
    note           TEXT NOT NULL DEFAULT '',
    initiator      TEXT NOT NULL DEFAULT '' CHECK (initiator IN ('', 'user', 'friend', 'mutual')),
    suggestion_id  TEXT NOT NULL DEFAULT '',
    created_at     INTEGER NOT NULL
);

CREATE TABLE interaction_participants (
    interaction_id  TEXT NOT NULL,
    relationship_id TEXT NOT NULL,
    score_at_log    REAL,
    PRIMARY KEY (interaction_id, relationship_id),
    FOREIGN KEY (interaction_id) REFERENCES interactions(id) ON DELETE CASCADE,
    FOREIGN KEY (relationship_id) REFERENCES relationships(id) ON DELETE CASCADE
);

CREATE INDEX idx_interactions_occurred ON interactions(occurred_at DESC);
CREATE INDEX idx_participants_rel      ON interaction_participants(relationship_id);

CREATE TABLE life_events (
    id              TEXT PRIMARY KEY,
    relationship_id TEXT NOT NULL,
    label           TEXT NOT NULL,
    occurs_at       INTEGER NOT NULL,
    FOREIGN KEY (relationship_id) REFERENCES relationships(id) ON DELETE CASCADE
);

CREATE INDEX idx_life_events_rel ON life_events(relationship_id, occurs_at);
`,
	},
	{
		Version:     3,
		Description: "outcomes: measured effect of suggested actions",
		SQL: `
CREATE TABLE outcomes (
    id                  TEXT PRIMARY KEY,
    interaction_id      TEXT NOT NULL,
    relationship_id     TEXT NOT NULL,
    category            TEXT NOT NULL,
    logged_at           INTEGER NOT NULL,
    score_before        REAL NOT NULL,
    expected_impact     REAL NOT NULL,
    score_after         REAL NOT NULL DEFAULT 0,
    actual_impact       REAL NOT NULL DEFAULT 0,
    effectiveness_ratio REAL NOT NULL DEFAULT 0,
    measured_at         INTEGER,
    created_at          INTEGER NOT NULL,
    UNIQUE (interaction_id, relationship_id)
);

CREATE INDEX idx_outcomes_pending ON outcomes(measured_at) WHERE measured_at IS NULL;
`,
	},
	{
		Version:     4,
		Description: "scheduler: day-bucketed state, suggestion cooldowns, preferences",
		SQL: `
CREATE TABLE scheduler_state (
    id                 INTEGER PRIMARY KEY CHECK (id = 1),
    day                TEXT NOT NULL,
    non_critical_count INTEGER NOT NULL DEFAULT 0,
    critical_count     INTEGER NOT NULL DEFAULT 0,
    scheduled_ids      TEXT NOT NULL DEFAULT '[]',
    last_sent_at       INTEGER
);

CREATE TABLE suggestion_cooldowns (
    rule_id          TEXT NOT NULL,
    relationship_id  TEXT NOT NULL,
    next_eligible_at INTEGER NOT NULL,
    PRIMARY KEY (rule_id, relationship_id)
);

CREATE TABLE preferences (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
