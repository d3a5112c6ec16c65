package join

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordnet/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func strptr(s string) *string { return &s }

func msg(id, user string, ts float64, body string, urls ...string) store.Message {
	return store.Message{
		MessageID: id,
		UserID:    user,
		Username:  user + "_name",
		Text:      body,
		Timestamp: ts,
		URLs:      urls,
	}
}

func repost(id, user, original string, ts float64) store.Message {
	m := msg(id, user, ts, "")
	m.RepostID = strptr(original)
	return m
}

func reply(id, user, parent string, ts float64) store.Message {
	m := msg(id, user, ts, "a reply")
	m.ReplyID = strptr(parent)
	return m
}

func insert(t *testing.T, st *store.Store, msgs ...store.Message) {
	t.Helper()
	res, err := st.InsertMessages(msgs)
	require.NoError(t, err)
	require.Empty(t, res.Malformed)
}

func compute(t *testing.T, st *store.Store, cfg Config) {
	t.Helper()
	err := New(st, zerolog.Nop()).Compute(context.Background(), cfg)
	require.NoError(t, err)
}

func edges(t *testing.T, st *store.Store, name string, loops bool) map[[2]string]int {
	t.Helper()
	rows, err := st.NetworkEdges(name, 1, loops)
	require.NoError(t, err)
	defer rows.Close()

	got := make(map[[2]string]int)
	for rows.Next() {
		e, err := rows.Edge()
		require.NoError(t, err)
		got[[2]string{e.UserA, e.UserB}] = e.Weight
	}
	require.NoError(t, rows.Err())
	return got
}

func TestCompute_CoRetweet(t *testing.T) {
	st := newTestStore(t)
	insert(t, st,
		repost("1", "U", "X", 0),
		repost("2", "V", "X", 30),
		repost("3", "W", "X", 90),
	)

	compute(t, st, Config{Type: CoRetweet, Window: 60})

	// U-V and V-W co-occur within 60s; U and W are 90s apart.
	assert.Equal(t, map[[2]string]int{
		{"U", "V"}: 1, {"V", "U"}: 1,
		{"V", "W"}: 1, {"W", "V"}: 1,
	}, edges(t, st, "co_retweet", false))
}

func TestCompute_CoRetweet_DifferentOriginals(t *testing.T) {
	st := newTestStore(t)
	insert(t, st,
		repost("1", "U", "X", 0),
		repost("2", "V", "Y", 0),
	)

	compute(t, st, Config{Type: CoRetweet, Window: 60})
	assert.Empty(t, edges(t, st, "co_retweet", true))
}

func TestCompute_CoTweet(t *testing.T) {
	st := newTestStore(t)
	insert(t, st,
		msg("1", "U", 0, "hello"),
		msg("2", "V", 10, "HELLO"),
		msg("3", "V", 20, "hello"),
		msg("4", "W", 25, "unrelated text"),
	)

	compute(t, st, Config{Type: CoTweet, Window: 60})

	// Case variants fingerprint identically; V matching both of U's pairs
	// and their own earlier post yields the self-loop.
	assert.Equal(t, map[[2]string]int{
		{"U", "V"}: 2, {"V", "U"}: 2,
	}, edges(t, st, "co_tweet", false))

	withLoops := edges(t, st, "co_tweet", true)
	assert.Equal(t, 2, withLoops[[2]string{"V", "V"}])
}

func TestCompute_CoLink_MultiURL(t *testing.T) {
	st := newTestStore(t)
	insert(t, st,
		msg("1", "U", 0, "x", "http://a.example", "http://b.example"),
		msg("2", "V", 30, "y", "http://a.example", "http://b.example", "http://c.example"),
	)

	compute(t, st, Config{Type: CoLink, Window: 60})

	// One co-occurrence per shared URL.
	assert.Equal(t, map[[2]string]int{
		{"U", "V"}: 2, {"V", "U"}: 2,
	}, edges(t, st, "co_link", false))
}

func TestCompute_CoLink_Resolved(t *testing.T) {
	st := newTestStore(t)
	insert(t, st,
		msg("1", "U", 0, "x", "http://short.example/a"),
		msg("2", "V", 30, "y", "http://long.example/article"),
	)

	// Raw URLs differ, so no raw co-link edge.
	compute(t, st, Config{Type: CoLink, Window: 60})
	assert.Empty(t, edges(t, st, "co_link", false))

	// After resolution the short link canonicalizes onto the long form.
	require.NoError(t, st.RecordResolution(store.Resolution{
		URL:         "http://short.example/a",
		ResolvedURL: "http://long.example/article",
		Status:      "ok",
	}))
	require.NoError(t, st.RebuildResolvedMessageURLs())

	compute(t, st, Config{Type: CoLink, Window: 60, Resolved: true})
	assert.Equal(t, map[[2]string]int{
		{"U", "V"}: 1, {"V", "U"}: 1,
	}, edges(t, st, "co_link", false))
}

func TestCompute_CoReply(t *testing.T) {
	st := newTestStore(t)
	insert(t, st,
		reply("1", "U", "parent", 0),
		reply("2", "V", "parent", 30),
		reply("3", "W", "other", 30),
	)

	compute(t, st, Config{Type: CoReply, Window: 60})
	assert.Equal(t, map[[2]string]int{
		{"U", "V"}: 1, {"V", "U"}: 1,
	}, edges(t, st, "co_reply", false))
}

func TestCompute_CoPost(t *testing.T) {
	st := newTestStore(t)
	insert(t, st,
		msg("1", "U", 0, "anything"),
		msg("2", "V", 30, "at all"),
		msg("3", "W", 200, "too late"),
	)

	compute(t, st, Config{Type: CoPost, Window: 60})
	assert.Equal(t, map[[2]string]int{
		{"U", "V"}: 1, {"V", "U"}: 1,
	}, edges(t, st, "co_post", false))
}

func TestCompute_CoSimilarTweet(t *testing.T) {
	st := newTestStore(t)
	insert(t, st,
		msg("1", "U", 0, "the cat sat on mat"),
		msg("2", "V", 30, "the cat sat on mat slowly"),
	)

	// Jaccard is 5/6 ≈ 0.833: in at 0.8, out at 0.9.
	compute(t, st, Config{Type: CoSimilarTweet, Window: 60, SimilarityThreshold: 0.8})
	assert.Equal(t, map[[2]string]int{
		{"U", "V"}: 1, {"V", "U"}: 1,
	}, edges(t, st, "co_similar_tweet", false))

	compute(t, st, Config{Type: CoSimilarTweet, Window: 60, SimilarityThreshold: 0.9})
	assert.Empty(t, edges(t, st, "co_similar_tweet", false))
}

func TestCompute_RepostExclusion(t *testing.T) {
	st := newTestStore(t)
	// Two reposts of the same original with identical text and URL: they
	// must only ever appear in co_retweet.
	a := repost("1", "U", "X", 0)
	a.Text = "same words"
	a.URLs = []string{"http://a.example"}
	b := repost("2", "V", "X", 10)
	b.Text = "same words"
	b.URLs = []string{"http://a.example"}
	insert(t, st, a, b)

	for _, cfg := range []Config{
		{Type: CoTweet, Window: 60},
		{Type: CoSimilarTweet, Window: 60, SimilarityThreshold: 0.1},
		{Type: CoLink, Window: 60},
		{Type: CoReply, Window: 60},
		{Type: CoPost, Window: 60},
	} {
		compute(t, st, cfg)
		assert.Empty(t, edges(t, st, string(cfg.Type), true), "network %s", cfg.Type)
	}

	compute(t, st, Config{Type: CoRetweet, Window: 60})
	assert.Len(t, edges(t, st, "co_retweet", false), 2)
}

func TestCompute_MinEdgeWeight(t *testing.T) {
	st := newTestStore(t)
	insert(t, st,
		repost("1", "U", "X", 0),
		repost("2", "V", "X", 10),
		repost("3", "U", "Y", 100),
		repost("4", "V", "Y", 110),
		repost("5", "W", "X", 20),
	)

	compute(t, st, Config{Type: CoRetweet, Window: 60, MinEdgeWeight: 2})

	// U-V coordinated twice (X and Y); everything involving W only once.
	assert.Equal(t, map[[2]string]int{
		{"U", "V"}: 2, {"V", "U"}: 2,
	}, edges(t, st, "co_retweet", false))
}

func TestCompute_MonotoneInWindow(t *testing.T) {
	st := newTestStore(t)
	insert(t, st,
		repost("1", "U", "X", 0),
		repost("2", "V", "X", 30),
		repost("3", "U", "X", 55),
		repost("4", "W", "X", 100),
	)

	weights := func(window float64) map[[2]string]int {
		compute(t, st, Config{Type: CoRetweet, Window: window})
		return edges(t, st, "co_retweet", true)
	}

	narrow := weights(30)
	wide := weights(120)
	for pair, w := range narrow {
		assert.GreaterOrEqual(t, wide[pair], w, "pair %v", pair)
	}
}

func TestCompute_InvariantUnderWorkerCount(t *testing.T) {
	st := newTestStore(t)
	var batch []store.Message
	for i := 0; i < 40; i++ {
		user := string(rune('A' + i%7))
		original := string(rune('X' + i%3))
		batch = append(batch, repost(string(rune('a'+i))+"-id", user, original, float64(i*13%97)))
	}
	insert(t, st, batch...)

	var baseline map[[2]string]int
	for _, workers := range []int{1, 2, 8} {
		compute(t, st, Config{Type: CoRetweet, Window: 50, Workers: workers})
		got := edges(t, st, "co_retweet", true)
		if baseline == nil {
			baseline = got
			continue
		}
		assert.Equal(t, baseline, got, "workers=%d", workers)
	}
}

func TestCompute_CancelPreservesPreviousNetwork(t *testing.T) {
	st := newTestStore(t)
	insert(t, st,
		repost("1", "U", "X", 0),
		repost("2", "V", "X", 30),
	)

	compute(t, st, Config{Type: CoRetweet, Window: 60})
	before := edges(t, st, "co_retweet", false)
	require.NotEmpty(t, before)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(st, zerolog.Nop()).Compute(ctx, Config{Type: CoRetweet, Window: 1})
	require.Error(t, err)

	assert.Equal(t, before, edges(t, st, "co_retweet", false))
}

func TestCompute_NegativeWindow(t *testing.T) {
	st := newTestStore(t)
	err := New(st, zerolog.Nop()).Compute(context.Background(), Config{Type: CoRetweet, Window: -1})
	require.Error(t, err)
}

func TestParseType(t *testing.T) {
	for _, name := range []string{"co_retweet", "co_tweet", "co_similar_tweet", "co_link", "co_reply", "co_post"} {
		typ, err := ParseType(name)
		require.NoError(t, err)
		assert.Equal(t, Type(name), typ)
	}
	_, err := ParseType("co_nothing")
	require.Error(t, err)
}
