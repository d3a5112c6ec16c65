package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"coordnet/internal/store"
)

// writeCSV streams the edge list: one row per directed edge, with standard
// CSV quoting.
func writeCSV(w io.Writer, st *store.Store, name string, opts Options) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"user_a", "user_b", "edge_type", "weight"}); err != nil {
		return err
	}

	edges, err := st.NetworkEdges(name, opts.MinWeight, opts.IncludeSelfLoops)
	if err != nil {
		return err
	}
	defer edges.Close()

	for edges.Next() {
		e, err := edges.Edge()
		if err != nil {
			return err
		}
		if err := cw.Write([]string{e.UserA, e.UserB, name, strconv.Itoa(e.Weight)}); err != nil {
			return err
		}
	}
	if err := edges.Err(); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}
