package store

import (
	"database/sql"
	"fmt"
)

// EventRows streams keyed events for one network type, grouped by action key
// and ordered by (timestamp, message_id) within each group. The caller must
// Close it.
type EventRows struct {
	rows *sql.Rows
}

func (r *EventRows) Next() bool { return r.rows.Next() }

func (r *EventRows) Event() (Event, error) {
	var e Event
	var key, tokens sql.NullString
	if err := r.rows.Scan(&key, &e.UserID, &e.MessageID, &e.Timestamp, &tokens); err != nil {
		return e, fmt.Errorf("scanning event: %w", err)
	}
	e.Key = key.String
	e.TokenSet = tokens.String
	return e, nil
}

func (r *EventRows) Err() error   { return r.rows.Err() }
func (r *EventRows) Close() error { return r.rows.Close() }

func (s *Store) queryEvents(indexNames []string, query string) (*EventRows, error) {
	for _, idx := range indexNames {
		if err := s.ensureIndex(idx); err != nil {
			return nil, err
		}
	}
	rows, err := s.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("scanning events: %w", err)
	}
	return &EventRows{rows: rows}, nil
}

// RepostEvents streams repost actions keyed by the original message id.
func (s *Store) RepostEvents() (*EventRows, error) {
	return s.queryEvents([]string{"repost_time"}, `
		select repost_id, user_id, message_id, timestamp, ''
		from message
		where repost_id is not null
		order by repost_id, timestamp, message_id
	`)
}

// ContentEvents streams non-repost messages keyed by their normalized
// content fingerprint. EnsureFingerprints must have run first.
func (s *Store) ContentEvents() (*EventRows, error) {
	return s.queryEvents([]string{"content_time"}, `
		select cast(content_hash as text), user_id, message_id, timestamp, ''
		from message
		where repost_id is null and content_hash is not null
		order by content_hash, timestamp, message_id
	`)
}

// ReplyEvents streams non-repost replies keyed by the replied-to message id.
func (s *Store) ReplyEvents() (*EventRows, error) {
	return s.queryEvents([]string{"reply_time"}, `
		select reply_id, user_id, message_id, timestamp, ''
		from message
		where repost_id is null and reply_id is not null
		order by reply_id, timestamp, message_id
	`)
}

// LinkEvents streams one event per (message, url) pair, keyed by the URL.
// With resolved set it reads the canonicalized URL table built by
// RebuildResolvedMessageURLs instead of the raw URLs.
func (s *Store) LinkEvents(resolved bool) (*EventRows, error) {
	if resolved {
		return s.queryEvents([]string{"resolved_url_time"}, `
			select resolved_url, user_id, message_id, timestamp, ''
			from resolved_message_url
			order by resolved_url, timestamp, message_id
		`)
	}
	return s.queryEvents([]string{"url_time"}, `
		select url, user_id, message_id, timestamp, ''
		from message_url
		order by url, timestamp, message_id
	`)
}

// PostEvents streams every non-repost message under a single constant key,
// ordered by time across the whole corpus.
func (s *Store) PostEvents() (*EventRows, error) {
	return s.queryEvents([]string{"non_repost_time"}, `
		select '', user_id, message_id, timestamp, ''
		from message
		where repost_id is null
		order by timestamp, message_id
	`)
}

// SimilarityEvents streams non-repost messages with their token sets,
// ordered by time. Bucketing into groups is the join engine's concern.
// EnsureTokenSets must have run first.
func (s *Store) SimilarityEvents() (*EventRows, error) {
	return s.queryEvents([]string{"non_repost_time"}, `
		select '', user_id, message_id, timestamp, token_set
		from message
		where repost_id is null and token_set is not null
		order by timestamp, message_id
	`)
}
