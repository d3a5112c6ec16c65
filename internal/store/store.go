// Package store owns all persistent state for a corpus: the normalized
// message table, the URL resolution tables, and one table per computed
// network. Everything lives in a single SQLite file.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaVersion is stamped into the metadata table on first open. Opening a
// corpus with a different version is refused rather than silently misread.
const schemaVersion = "1"

// ErrIncompatibleSchema is returned by Open when the on-disk corpus was
// written by an incompatible version of the toolkit.
var ErrIncompatibleSchema = errors.New("corpus schema version is not compatible, reprocess your data into a new database")

// Store wraps a SQLite connection to a single corpus file.
type Store struct {
	conn *sql.DB
	Path string
}

var schema = []string{
	`create table if not exists message (
		message_id text primary key,
		user_id text not null,
		username text,
		repost_id text,
		reply_id text,
		message text,
		content_hash integer,
		content_length integer,
		token_set text,
		timestamp real not null
	)`,
	`create table if not exists message_url (
		message_id text references message(message_id),
		url text,
		timestamp real,
		user_id text,
		primary key (message_id, url)
	)`,
	`create table if not exists resolved_url (
		url text primary key,
		resolved_url text,
		ssl_verified integer,
		resolved_status text
	)`,
	// Every URL seen in a message is queued for resolution as it arrives.
	`create trigger if not exists url_to_resolve after insert on message_url
		begin
			insert or ignore into resolved_url(url) values (new.url);
		end`,
	`create table if not exists metadata (
		property text primary key,
		value
	)`,
	`insert or ignore into metadata values ('version', '` + schemaVersion + `')`,
}

// indexes cover the grouped ordered scans each network type performs. They
// are created lazily by the compute paths that need them, not at open time,
// so ingest stays fast.
var indexes = map[string]string{
	"repost_time":          `create index if not exists repost_time on message(repost_id, timestamp) where repost_id is not null`,
	"content_time":         `create index if not exists content_time on message(content_hash, timestamp) where repost_id is null`,
	"reply_time":           `create index if not exists reply_time on message(reply_id, timestamp) where repost_id is null and reply_id is not null`,
	"url_time":             `create index if not exists url_time on message_url(url, timestamp)`,
	"resolved_url_time":    `create index if not exists resolved_url_time on resolved_message_url(resolved_url, timestamp)`,
	"non_repost_time":      `create index if not exists non_repost_time on message(timestamp) where repost_id is null`,
	"user_time":            `create index if not exists user_time on message(user_id, timestamp)`,
	"needs_fingerprint":    `create index if not exists needs_fingerprint on message(message_id) where repost_id is null and content_hash is null`,
	"needs_token_set":      `create index if not exists needs_token_set on message(message_id) where repost_id is null and token_set is null`,
}

// Open opens (creating if necessary) the corpus at path. Schema creation is
// idempotent; a version mismatch returns ErrIncompatibleSchema.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}

	// WAL so compute workers can hold read cursors while a writer runs.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting synchronous mode: %w", err)
	}

	for _, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("initialising schema: %w", err)
		}
	}

	var version string
	err = conn.QueryRow("select value from metadata where property = 'version'").Scan(&version)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading corpus version: %w", err)
	}
	if version != schemaVersion {
		conn.Close()
		return nil, ErrIncompatibleSchema
	}

	return &Store{conn: conn, Path: path}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn returns the underlying sql.DB for custom queries.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// ensureIndex creates one of the named covering indexes.
func (s *Store) ensureIndex(name string) error {
	stmt, ok := indexes[name]
	if !ok {
		return fmt.Errorf("unknown index %q", name)
	}
	if _, err := s.conn.Exec(stmt); err != nil {
		return fmt.Errorf("creating index %s: %w", name, err)
	}
	return nil
}
