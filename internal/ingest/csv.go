package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"

	"coordnet/internal/store"
)

// csvColumns is the normalized 8-column schema, in order:
// message_id, user_id, username, repost_id, reply_id, message, timestamp, urls.
const csvColumns = 8

// parseCSV reads UTF-8 CSV with a header row in the normalized column
// order. Empty repost_id/reply_id become null; urls is a space-delimited
// list. Timestamps are float seconds, or any parseable datetime as a
// convenience for hand-built corpora.
func parseCSV(r io.Reader, push func(store.Message) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = csvColumns

	// Header row.
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("reading csv header: %w", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading csv row: %w", err)
		}

		m := store.Message{
			MessageID: record[0],
			UserID:    record[1],
			Username:  record[2],
			Text:      record[5],
			Timestamp: parseTimestamp(record[6]),
			URLs:      strings.Fields(record[7]),
		}
		if record[3] != "" {
			repost := record[3]
			m.RepostID = &repost
		}
		if record[4] != "" {
			reply := record[4]
			m.ReplyID = &reply
		}

		if err := push(m); err != nil {
			return err
		}
	}
}

// parseTimestamp accepts numeric seconds or any parseable datetime.
// Unparseable values become NaN so the store rejects the row as malformed
// instead of the parser inventing a time.
func parseTimestamp(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	if t, err := strconv.ParseFloat(s, 64); err == nil {
		return t
	}
	if t, err := dateparse.ParseAny(s); err == nil {
		return float64(t.UnixNano()) / 1e9
	}
	return math.NaN()
}
