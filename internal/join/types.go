// Package join implements the temporal join engine: given keyed, timestamped
// events from the corpus, it finds every pair of events with the same action
// key within a bounded time window and aggregates the matches into a weighted
// directed edge set, in parallel across key groups.
package join

import (
	"fmt"
	"runtime"

	"coordnet/internal/text"
)

// Type identifies one of the supported network types.
type Type string

const (
	CoRetweet      Type = "co_retweet"
	CoTweet        Type = "co_tweet"
	CoSimilarTweet Type = "co_similar_tweet"
	CoLink         Type = "co_link"
	CoReply        Type = "co_reply"
	CoPost         Type = "co_post"
)

// Types lists every network type in CLI order.
var Types = []Type{CoRetweet, CoTweet, CoSimilarTweet, CoLink, CoReply, CoPost}

// ParseType validates a network type name from the CLI.
func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown network type %q", s)
}

// Bucketer assigns each similarity event to exactly one candidate group.
// Every pair of events meeting the similarity threshold must share a bucket,
// or the pair is silently lost; any scheme that cannot guarantee that must
// not be used.
type Bucketer interface {
	Bucket(tokens []string) string
}

// SingleBucket places every event in one group, so every pair inside the
// time window is scored. Correct for any scorer; the pluggable seam exists
// for locality-sensitive schemes on corpora too large for one group.
type SingleBucket struct{}

func (SingleBucket) Bucket([]string) string { return "" }

// Config parameterizes one compute invocation.
type Config struct {
	Type          Type
	Window        float64 // seconds either side of each event
	MinEdgeWeight int
	Workers       int

	// Similarity settings, used only by CoSimilarTweet.
	SimilarityThreshold float64
	Scorer              text.Scorer
	Bucketer            Bucketer

	// Resolved switches CoLink onto the canonicalized URL table.
	Resolved bool
}

func (c *Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

func (c *Config) scorer() text.Scorer {
	if c.Scorer != nil {
		return c.Scorer
	}
	return text.JaccardScorer{}
}

func (c *Config) bucketer() Bucketer {
	if c.Bucketer != nil {
		return c.Bucketer
	}
	return SingleBucket{}
}
