package storage

const schema = `
-- Decks group cards. Deleting a deck only stamps deleted_at.
CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    language TEXT NOT NULL DEFAULT '',
    cards_per_session INTEGER NOT NULL DEFAULT 30,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    deleted_at DATETIME
);

-- Sources are markdown directories or git repositories feeding a deck.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deck_id TEXT NOT NULL,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned DATETIME,

    FOREIGN KEY(deck_id) REFERENCES decks(id)
);

-- Cards hold their content as JSON and the full FSRS memory state.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL,
    type TEXT NOT NULL,
    data TEXT NOT NULL,
    hash TEXT NOT NULL DEFAULT '',
    source_id INTEGER,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    deleted_at DATETIME,
    version INTEGER NOT NULL DEFAULT 0,

    due DATETIME NOT NULL,
    stability REAL NOT NULL DEFAULT 0,
    difficulty REAL NOT NULL DEFAULT 0,
    elapsed_days INTEGER NOT NULL DEFAULT 0,
    scheduled_days INTEGER NOT NULL DEFAULT 0,
    learning_step INTEGER NOT NULL DEFAULT 0,
    reps INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,
    state INTEGER NOT NULL DEFAULT 0, -- 0: New, 1: Learning, 2: Review, 3: Relearning
    last_review DATETIME,

    FOREIGN KEY(deck_id) REFERENCES decks(id),
    FOREIGN KEY(source_id) REFERENCES sources(id)
);
CREATE INDEX IF NOT EXISTS idx_cards_deck ON cards(deck_id);
CREATE INDEX IF NOT EXISTS idx_cards_source_hash ON cards(source_id, hash);

-- Review logs are append-only.
CREATE TABLE IF NOT EXISTS review_logs (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL,
    session_id TEXT NOT NULL DEFAULT '',
    rating INTEGER NOT NULL,
    state INTEGER NOT NULL,
    reviewed_at DATETIME NOT NULL,
    elapsed_days INTEGER NOT NULL DEFAULT 0,
    scheduled_days INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(card_id) REFERENCES cards(id)
);
CREATE INDEX IF NOT EXISTS idx_review_logs_card ON review_logs(card_id);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL,
    mode TEXT NOT NULL,
    card_ids TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    completed_at DATETIME,
    total_cards INTEGER NOT NULL,
    completed_cards INTEGER NOT NULL DEFAULT 0,
    duration_seconds INTEGER,

    FOREIGN KEY(deck_id) REFERENCES decks(id)
);
CREATE INDEX IF NOT EXISTS idx_sessions_deck ON sessions(deck_id);
`
