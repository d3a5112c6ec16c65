package join

import (
	"context"

	"coordnet/internal/store"
)

// event is a corpus event plus its parsed token set (similarity scans only).
type event struct {
	store.Event
	tokens []string
}

// cancelCheckInterval bounds how many window steps run between context
// checks inside one group.
const cancelCheckInterval = 4096

// windowPairs runs the single-pass sliding window over one group of events,
// already sorted by (timestamp, message_id). For each event it evicts
// everything older than window seconds, then pairs the event with every
// survivor that accept admits, emitting the ordered pair in both directions.
// Cost is O(len(events) + matches).
func windowPairs(ctx context.Context, events []event, window float64, accept func(a, b *event) bool, counts pairCounts) error {
	start := 0
	steps := 0
	for i := range events {
		cur := &events[i]
		for events[start].Timestamp < cur.Timestamp-window {
			start++
		}
		for j := start; j < i; j++ {
			steps++
			if steps%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			prev := &events[j]
			if !accept(prev, cur) {
				continue
			}
			counts.add(prev.UserID, cur.UserID)
			counts.add(cur.UserID, prev.UserID)
		}
	}
	return nil
}

// pair is one directed (source, target) user pair.
type pair struct {
	a, b string
}

// pairCounts aggregates ordered pair emissions by summation.
type pairCounts map[pair]int

func (c pairCounts) add(a, b string) {
	c[pair{a: a, b: b}]++
}

// merge folds other into c.
func (c pairCounts) merge(other pairCounts) {
	for p, n := range other {
		c[p] += n
	}
}

// acceptAll is the pair-acceptance predicate for every equality-keyed
// network: group membership already implies a key match.
func acceptAll(*event, *event) bool { return true }
