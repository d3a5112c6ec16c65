package store

import "fmt"

// UnresolvedURLs returns every URL queued for resolution that has no
// recorded outcome yet. Any recorded status, success or failure, keeps a URL
// out of this list: re-running the resolver never retries.
func (s *Store) UnresolvedURLs() ([]string, error) {
	rows, err := s.conn.Query(
		"select url from resolved_url where resolved_status is null order by url",
	)
	if err != nil {
		return nil, fmt.Errorf("scanning unresolved urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scanning unresolved url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// RecordResolution persists the outcome of resolving one URL. Existing
// outcomes are never overwritten.
func (s *Store) RecordResolution(r Resolution) error {
	_, err := s.conn.Exec(`
		update resolved_url
		set resolved_url = ?, ssl_verified = ?, resolved_status = ?
		where url = ? and resolved_status is null
	`, r.ResolvedURL, r.SSLVerified, r.Status, r.URL)
	if err != nil {
		return fmt.Errorf("recording resolution for %s: %w", r.URL, err)
	}
	return nil
}

// ClearFailedResolutions removes the recorded outcome for every URL whose
// resolution failed, so the next resolver run retries them. This is the only
// path back for failure markers.
func (s *Store) ClearFailedResolutions() (int, error) {
	res, err := s.conn.Exec(`
		update resolved_url
		set resolved_url = null, ssl_verified = null, resolved_status = null
		where resolved_status is not null and resolved_status != 'ok'
	`)
	if err != nil {
		return 0, fmt.Errorf("clearing failed resolutions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clearing failed resolutions: %w", err)
	}
	return int(n), nil
}

// RebuildResolvedMessageURLs rebuilds the canonical-URL join table from the
// raw message URLs and the recorded resolutions. URLs without a successful
// resolution keep their raw form, so the co-link resolved mode degrades to
// the raw URL instead of dropping the message.
func (s *Store) RebuildResolvedMessageURLs() error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning resolved url rebuild: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`drop table if exists resolved_message_url`,
		`create table resolved_message_url (
			message_id text references message(message_id),
			resolved_url text,
			timestamp real,
			user_id text,
			primary key (message_id, resolved_url)
		)`,
		`insert or ignore into resolved_message_url
		 select
			message_url.message_id,
			coalesce(resolved_url.resolved_url, message_url.url),
			message_url.timestamp,
			message_url.user_id
		 from message_url
		 left join resolved_url on resolved_url.url = message_url.url`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("rebuilding resolved_message_url: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing resolved url rebuild: %w", err)
	}
	return nil
}
