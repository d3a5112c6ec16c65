package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordnet/internal/join"
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

// seedCoRetweet ingests three reposts of the same original and computes the
// co-retweet network: U-V and V-W within the window, U-W outside it.
func seedCoRetweet(t *testing.T, st *store.Store) {
	t.Helper()
	rp := func(id, user string, ts float64) store.Message {
		return store.Message{
			MessageID: id,
			UserID:    user,
			Username:  user + "_name",
			RepostID:  strptr("X"),
			Text:      "reposted content about " + id,
			Timestamp: ts,
		}
	}
	_, err := st.InsertMessages([]store.Message{
		rp("1", "U", 0), rp("2", "V", 30), rp("3", "W", 90),
	})
	require.NoError(t, err)

	err = join.New(st, zerolog.Nop()).Compute(context.Background(), join.Config{
		Type: join.CoRetweet, Window: 60,
	})
	require.NoError(t, err)
}

// graphml mirrors the subset of the format the exporter writes, for
// round-trip checks.
type graphml struct {
	Keys []struct {
		ID       string `xml:"id,attr"`
		For      string `xml:"for,attr"`
		AttrName string `xml:"attr.name,attr"`
	} `xml:"key"`
	Graph struct {
		EdgeDefault string `xml:"edgedefault,attr"`
		Nodes       []struct {
			ID   string `xml:"id,attr"`
			Data []struct {
				Key   string `xml:"key,attr"`
				Value string `xml:",chardata"`
			} `xml:"data"`
		} `xml:"node"`
		Edges []struct {
			Source string `xml:"source,attr"`
			Target string `xml:"target,attr"`
			Data   []struct {
				Key   string `xml:"key,attr"`
				Value string `xml:",chardata"`
			} `xml:"data"`
		} `xml:"edge"`
	} `xml:"graph"`
}

func parseGraphML(t *testing.T, data []byte) graphml {
	t.Helper()
	var doc graphml
	require.NoError(t, xml.Unmarshal(data, &doc))
	return doc
}

// attrNames maps key ids back to declared attribute names.
func (g graphml) attrNames() map[string]string {
	names := make(map[string]string)
	for _, k := range g.Keys {
		names[k.ID] = k.AttrName
	}
	return names
}

func TestWriteGraphML_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	seedCoRetweet(t, st)

	var buf bytes.Buffer
	err := Write(&buf, st, "co_retweet", FormatGraphML, Options{NMessages: 2})
	require.NoError(t, err)

	doc := parseGraphML(t, buf.Bytes())
	assert.Equal(t, "directed", doc.Graph.EdgeDefault)
	names := doc.attrNames()

	// Nodes: the three users, annotated with user_id, username and their
	// latest messages.
	nodes := make(map[string]map[string]string)
	for _, n := range doc.Graph.Nodes {
		attrs := make(map[string]string)
		for _, d := range n.Data {
			attrs[names[d.Key]] = d.Value
		}
		nodes[n.ID] = attrs
	}
	require.Len(t, nodes, 3)
	assert.Equal(t, "V", nodes["V"]["user_id"])
	assert.Equal(t, "V_name", nodes["V"]["username"])
	assert.Equal(t, "reposted content about 2", nodes["V"]["message_1"])

	// Edges: re-materialize the (source, target) → weight multiset and
	// compare with what the store holds.
	got := make(map[[2]string]int)
	for _, e := range doc.Graph.Edges {
		var weight int
		var edgeType string
		for _, d := range e.Data {
			switch names[d.Key] {
			case "weight":
				w, err := strconv.Atoi(d.Value)
				require.NoError(t, err)
				weight = w
			case "edge_type":
				edgeType = d.Value
			}
		}
		assert.Equal(t, "co_retweet", edgeType)
		got[[2]string{e.Source, e.Target}] = weight
	}
	assert.Equal(t, map[[2]string]int{
		{"U", "V"}: 1, {"V", "U"}: 1,
		{"V", "W"}: 1, {"W", "V"}: 1,
	}, got)
}

func TestWriteGraphML_FewerMessagesThanN(t *testing.T) {
	st := newTestStore(t)
	seedCoRetweet(t, st)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, st, "co_retweet", FormatGraphML, Options{NMessages: 10}))

	doc := parseGraphML(t, buf.Bytes())
	names := doc.attrNames()
	for _, n := range doc.Graph.Nodes {
		seen := make(map[string]bool)
		for _, d := range n.Data {
			seen[names[d.Key]] = true
		}
		// Each user only has one message; the other nine keys are omitted.
		assert.True(t, seen["message_1"])
		assert.False(t, seen["message_2"])
	}
}

func TestWriteGraphML_SelfLoops(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.ReplaceNetwork("co_tweet", []store.Edge{
		{UserA: "u", UserB: "u", Weight: 2},
		{UserA: "u", UserB: "v", Weight: 1},
		{UserA: "v", UserB: "u", Weight: 1},
	}, 1))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, st, "co_tweet", FormatGraphML, Options{}))
	doc := parseGraphML(t, buf.Bytes())
	assert.Len(t, doc.Graph.Edges, 2)

	buf.Reset()
	require.NoError(t, Write(&buf, st, "co_tweet", FormatGraphML, Options{IncludeSelfLoops: true}))
	doc = parseGraphML(t, buf.Bytes())
	assert.Len(t, doc.Graph.Edges, 3)
}

func TestWriteCSV(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.ReplaceNetwork("co_link", []store.Edge{
		{UserA: "u", UserB: `with,comma`, Weight: 3},
		{UserA: `with,comma`, UserB: "u", Weight: 3},
	}, 1))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, st, "co_link", FormatCSV, Options{}))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"user_a", "user_b", "edge_type", "weight"}, records[0])
	assert.Equal(t, []string{"u", "with,comma", "co_link", "3"}, records[1])
	assert.Equal(t, []string{"with,comma", "u", "co_link", "3"}, records[2])
}

func TestWrite_MinWeightAtExport(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.ReplaceNetwork("co_reply", []store.Edge{
		{UserA: "u", UserB: "v", Weight: 5},
		{UserA: "v", UserB: "u", Weight: 5},
		{UserA: "u", UserB: "w", Weight: 1},
		{UserA: "w", UserB: "u", Weight: 1},
	}, 1))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, st, "co_reply", FormatCSV, Options{MinWeight: 2}))
	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3, "header plus the two heavy edges")
}

func TestWrite_UncomputedNetwork(t *testing.T) {
	st := newTestStore(t)
	var buf bytes.Buffer
	err := Write(&buf, st, "co_post", FormatCSV, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not been computed")
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"graphml", "csv"} {
		f, err := ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, Format(name), f)
	}
	_, err := ParseFormat("gexf")
	require.Error(t, err)
}
