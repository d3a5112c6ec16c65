package store

import (
	"database/sql"
	"fmt"
	"sort"
)

// networkTables maps a network name to its table. The map doubles as the
// whitelist for table name interpolation.
var networkTables = map[string]string{
	"co_retweet":       "co_retweet_network",
	"co_tweet":         "co_tweet_network",
	"co_similar_tweet": "co_similar_tweet_network",
	"co_link":          "co_link_network",
	"co_reply":         "co_reply_network",
	"co_post":          "co_post_network",
}

// NetworkNames returns the known network names, sorted.
func NetworkNames() []string {
	names := make([]string, 0, len(networkTables))
	for name := range networkTables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func networkTable(name string) (string, error) {
	table, ok := networkTables[name]
	if !ok {
		return "", fmt.Errorf("unknown network %q", name)
	}
	return table, nil
}

// ReplaceNetwork atomically replaces the named network table with the given
// edges, dropping edges below minWeight. Each invocation is a full rebuild:
// the table is a materialized view of (corpus, network type, parameters).
// Self-loops are kept here and filtered at export.
func (s *Store) ReplaceNetwork(name string, edges []Edge, minWeight int) error {
	table, err := networkTable(name)
	if err != nil {
		return err
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning network replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("drop table if exists " + table); err != nil {
		return fmt.Errorf("dropping old %s: %w", table, err)
	}
	if _, err := tx.Exec(fmt.Sprintf(`
		create table %s (
			user_1 text,
			user_2 text,
			weight integer,
			primary key (user_1, user_2)
		) without rowid
	`, table)); err != nil {
		return fmt.Errorf("creating %s: %w", table, err)
	}

	stmt, err := tx.Prepare("insert into " + table + " values (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing edge insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		if e.Weight < minWeight {
			continue
		}
		if _, err := stmt.Exec(e.UserA, e.UserB, e.Weight); err != nil {
			return fmt.Errorf("inserting edge (%s, %s): %w", e.UserA, e.UserB, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing network replace: %w", err)
	}
	return nil
}

// NetworkExists reports whether the named network has been computed.
func (s *Store) NetworkExists(name string) (bool, error) {
	table, err := networkTable(name)
	if err != nil {
		return false, err
	}
	return s.hasTable(table)
}

// HasResolvedURLs reports whether the resolver has built the canonical-URL
// join table.
func (s *Store) HasResolvedURLs() (bool, error) {
	return s.hasTable("resolved_message_url")
}

func (s *Store) hasTable(table string) (bool, error) {
	var n int
	err := s.conn.QueryRow(
		"select count(*) from sqlite_master where type = 'table' and name = ?", table,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking for %s: %w", table, err)
	}
	return n > 0, nil
}

// EdgeRows streams the edges of a computed network.
type EdgeRows struct {
	rows *sql.Rows
}

func (r *EdgeRows) Next() bool { return r.rows.Next() }

func (r *EdgeRows) Edge() (Edge, error) {
	var e Edge
	if err := r.rows.Scan(&e.UserA, &e.UserB, &e.Weight); err != nil {
		return e, fmt.Errorf("scanning edge: %w", err)
	}
	return e, nil
}

func (r *EdgeRows) Err() error   { return r.rows.Err() }
func (r *EdgeRows) Close() error { return r.rows.Close() }

// NetworkEdges streams the named network's edges at or above minWeight,
// ordered by (user_1, user_2). Self-loops are excluded unless requested.
func (s *Store) NetworkEdges(name string, minWeight int, includeSelfLoops bool) (*EdgeRows, error) {
	table, err := networkTable(name)
	if err != nil {
		return nil, err
	}

	loopFilter := "and user_1 != user_2"
	if includeSelfLoops {
		loopFilter = ""
	}
	rows, err := s.conn.Query(fmt.Sprintf(`
		select user_1, user_2, weight
		from %s
		where weight >= ? %s
		order by user_1, user_2
	`, table, loopFilter), minWeight)
	if err != nil {
		return nil, fmt.Errorf("scanning %s edges: %w", table, err)
	}
	return &EdgeRows{rows: rows}, nil
}

// UsersInNetwork returns the distinct user ids touched by any retained edge
// of the named network, sorted.
func (s *Store) UsersInNetwork(name string, minWeight int, includeSelfLoops bool) ([]string, error) {
	table, err := networkTable(name)
	if err != nil {
		return nil, err
	}

	loopFilter := "and user_1 != user_2"
	if includeSelfLoops {
		loopFilter = ""
	}
	rows, err := s.conn.Query(fmt.Sprintf(`
		select user_1 from %[1]s where weight >= ?1 %[2]s
		union
		select user_2 from %[1]s where weight >= ?1 %[2]s
		order by 1
	`, table, loopFilter), minWeight)
	if err != nil {
		return nil, fmt.Errorf("scanning %s users: %w", table, err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UserSnapshot is the per-user metadata attached to exported nodes: a
// representative username and the most recent messages.
type UserSnapshot struct {
	UserID   string
	Username string
	Messages []string
}

// Snapshot returns a user's representative username and their n most recent
// messages, newest first.
func (s *Store) Snapshot(userID string, n int) (UserSnapshot, error) {
	snap := UserSnapshot{UserID: userID}

	if err := s.ensureIndex("user_time"); err != nil {
		return snap, err
	}

	var username sql.NullString
	err := s.conn.QueryRow(
		"select max(username) from message where user_id = ?", userID,
	).Scan(&username)
	if err != nil {
		return snap, fmt.Errorf("reading username for %s: %w", userID, err)
	}
	snap.Username = username.String

	if n <= 0 {
		return snap, nil
	}

	rows, err := s.conn.Query(`
		select message
		from message
		where user_id = ?
		order by timestamp desc, message_id desc
		limit ?
	`, userID, n)
	if err != nil {
		return snap, fmt.Errorf("reading messages for %s: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var body sql.NullString
		if err := rows.Scan(&body); err != nil {
			return snap, fmt.Errorf("reading messages for %s: %w", userID, err)
		}
		snap.Messages = append(snap.Messages, body.String)
	}
	return snap, rows.Err()
}
