// Package ingest transforms platform records into normalized corpus rows.
// Parsers only reshape data; deduplication and invariant checking live in
// the store.
package ingest

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"coordnet/internal/store"
)

// Format identifies an input file format.
type Format string

const (
	FormatCSV         Format = "csv"
	FormatTwitterJSON Format = "twitter_json"
)

// ParseFormat validates a format name from the CLI.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatTwitterJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown input format %q", s)
	}
}

// batchSize bounds how many rows are buffered before each insert
// transaction.
const batchSize = 500

// malformedThreshold aborts an ingest that is mostly garbage rather than
// silently producing a near-empty corpus.
const malformedThreshold = 1000

// Stats accumulates ingest outcomes across files.
type Stats struct {
	Accepted   int
	Duplicates int
	Malformed  int
}

// TooManyMalformedError aborts ingest once the malformed-row threshold is
// exceeded.
type TooManyMalformedError struct {
	Count int
}

func (e *TooManyMalformedError) Error() string {
	return fmt.Sprintf("aborting ingest: %d malformed rows (threshold %d)", e.Count, malformedThreshold)
}

// sink receives parsed batches and feeds them to the store.
type sink struct {
	store *store.Store
	log   zerolog.Logger
	stats Stats
	batch []store.Message
}

func (s *sink) push(m store.Message) error {
	s.batch = append(s.batch, m)
	if len(s.batch) >= batchSize {
		return s.flush()
	}
	return nil
}

func (s *sink) flush() error {
	if len(s.batch) == 0 {
		return nil
	}
	res, err := s.store.InsertMessages(s.batch)
	s.batch = s.batch[:0]
	if err != nil {
		return err
	}
	s.stats.Accepted += res.Accepted
	s.stats.Duplicates += res.Duplicates
	s.stats.Malformed += len(res.Malformed)
	for _, rowErr := range res.Malformed {
		s.log.Warn().Str("message_id", rowErr.MessageID).Str("reason", rowErr.Reason).Msg("skipping malformed row")
	}
	if s.stats.Malformed > malformedThreshold {
		return &TooManyMalformedError{Count: s.stats.Malformed}
	}
	return nil
}

// parser turns one input stream into normalized rows.
type parser func(r io.Reader, push func(store.Message) error) error

// Files ingests the given input files into the corpus.
func Files(st *store.Store, format Format, paths []string, log zerolog.Logger) (Stats, error) {
	var parse parser
	switch format {
	case FormatCSV:
		parse = parseCSV
	case FormatTwitterJSON:
		parse = parseTwitterJSON
	default:
		return Stats{}, fmt.Errorf("unknown input format %q", format)
	}

	s := &sink{store: st, log: log}
	for _, path := range paths {
		log.Info().Str("file", path).Msg("preprocessing")

		f, err := os.Open(path)
		if err != nil {
			return s.stats, fmt.Errorf("opening input file: %w", err)
		}
		err = parse(f, s.push)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err == nil {
			err = s.flush()
		}
		if err != nil {
			return s.stats, fmt.Errorf("preprocessing %s: %w", path, err)
		}

		log.Info().
			Str("file", path).
			Int("accepted", s.stats.Accepted).
			Int("duplicates", s.stats.Duplicates).
			Int("malformed", s.stats.Malformed).
			Msg("done preprocessing")
	}
	return s.stats, nil
}
