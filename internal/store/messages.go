package store

import (
	"database/sql"
	"fmt"
	"math"

	"coordnet/internal/text"
)

// RowError describes a single ingested row that violated the corpus
// invariants. Malformed rows are skipped, not fatal.
type RowError struct {
	MessageID string
	Reason    string
}

func (e RowError) Error() string {
	return fmt.Sprintf("malformed row %q: %s", e.MessageID, e.Reason)
}

// InsertResult summarises one batch insert.
type InsertResult struct {
	Accepted   int
	Duplicates int
	Malformed  []RowError
}

// validateMessage checks the row invariants: required identifiers, a finite
// timestamp, and at most one of repost_id / reply_id set.
func validateMessage(m *Message) *RowError {
	if m.MessageID == "" {
		return &RowError{MessageID: m.MessageID, Reason: "missing message_id"}
	}
	if m.UserID == "" {
		return &RowError{MessageID: m.MessageID, Reason: "missing user_id"}
	}
	if math.IsNaN(m.Timestamp) || math.IsInf(m.Timestamp, 0) {
		return &RowError{MessageID: m.MessageID, Reason: "timestamp is not finite"}
	}
	if m.IsRepost() && m.ReplyID != nil && *m.ReplyID != "" {
		return &RowError{MessageID: m.MessageID, Reason: "both repost_id and reply_id set"}
	}
	return nil
}

// nullable converts an optional string to its SQL value, mapping empty
// strings to NULL.
func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// InsertMessages inserts a batch of normalized rows. Duplicate message_ids
// are silently ignored and counted; rows violating invariants are skipped
// and reported in the result. URLs are fanned out into message_url for
// non-repost rows only.
func (s *Store) InsertMessages(msgs []Message) (InsertResult, error) {
	var res InsertResult

	tx, err := s.conn.Begin()
	if err != nil {
		return res, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	insertMsg, err := tx.Prepare(`
		insert or ignore into message
			(message_id, user_id, username, repost_id, reply_id, message, timestamp)
		values (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return res, fmt.Errorf("preparing message insert: %w", err)
	}
	defer insertMsg.Close()

	insertURL, err := tx.Prepare(`
		insert or ignore into message_url (message_id, url, timestamp, user_id)
		values (?, ?, ?, ?)
	`)
	if err != nil {
		return res, fmt.Errorf("preparing url insert: %w", err)
	}
	defer insertURL.Close()

	for i := range msgs {
		m := &msgs[i]
		if rowErr := validateMessage(m); rowErr != nil {
			res.Malformed = append(res.Malformed, *rowErr)
			continue
		}

		r, err := insertMsg.Exec(
			m.MessageID, m.UserID, m.Username,
			nullable(m.RepostID), nullable(m.ReplyID),
			m.Text, m.Timestamp,
		)
		if err != nil {
			return res, fmt.Errorf("inserting message %s: %w", m.MessageID, err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return res, fmt.Errorf("inserting message %s: %w", m.MessageID, err)
		}
		if n == 0 {
			res.Duplicates++
			continue
		}
		res.Accepted++

		// URLs shared in reposts never drive co-link.
		if m.IsRepost() {
			continue
		}
		for _, u := range m.URLs {
			if u == "" {
				continue
			}
			if _, err := insertURL.Exec(m.MessageID, u, m.Timestamp, m.UserID); err != nil {
				return res, fmt.Errorf("inserting url for message %s: %w", m.MessageID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("committing insert transaction: %w", err)
	}
	return res, nil
}

// MessageCount returns the number of messages in the corpus.
func (s *Store) MessageCount() (int, error) {
	var n int
	if err := s.conn.QueryRow("select count(*) from message").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}

// EnsureFingerprints backfills the normalized content hash for every
// non-repost message that does not have one yet. Run before a co-tweet
// compute; a no-op on corpora already processed.
func (s *Store) EnsureFingerprints() error {
	if err := s.ensureIndex("needs_fingerprint"); err != nil {
		return err
	}
	return s.backfill(
		`select message_id, message from message
		 where repost_id is null and content_hash is null`,
		`update message set content_hash = ?, content_length = ? where message_id = ?`,
		func(body string) []any {
			normalized := text.Normalize(body)
			return []any{int64(text.Fingerprint(body)), len(normalized)}
		},
	)
}

// EnsureTokenSets backfills the token set column for every non-repost
// message that does not have one yet. Run before a co-similar-tweet compute.
func (s *Store) EnsureTokenSets() error {
	if err := s.ensureIndex("needs_token_set"); err != nil {
		return err
	}
	return s.backfill(
		`select message_id, message from message
		 where repost_id is null and token_set is null`,
		`update message set token_set = ? where message_id = ?`,
		func(body string) []any {
			return []any{text.JoinTokens(text.Tokenize(body))}
		},
	)
}

// backfill streams rows matching selectQuery, derives new column values from
// the message body, and writes them back in one transaction.
func (s *Store) backfill(selectQuery, updateQuery string, derive func(body string) []any) error {
	rows, err := s.conn.Query(selectQuery)
	if err != nil {
		return fmt.Errorf("scanning rows to backfill: %w", err)
	}
	defer rows.Close()

	type update struct {
		id   string
		args []any
	}
	var updates []update
	for rows.Next() {
		var id string
		var body sql.NullString
		if err := rows.Scan(&id, &body); err != nil {
			return fmt.Errorf("scanning row to backfill: %w", err)
		}
		updates = append(updates, update{id: id, args: derive(body.String)})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scanning rows to backfill: %w", err)
	}
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning backfill transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(updateQuery)
	if err != nil {
		return fmt.Errorf("preparing backfill update: %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		args := append(u.args, u.id)
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("backfilling message %s: %w", u.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing backfill transaction: %w", err)
	}
	return nil
}
