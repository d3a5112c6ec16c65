// Package export turns a computed network table into an output artifact:
// GraphML with per-node message snapshots, or an edge-list CSV. Both writers
// stream, so memory is bounded by the node snapshots rather than edge count.
package export

import (
	"fmt"
	"io"

	"coordnet/internal/store"
)

// Format identifies an output format.
type Format string

const (
	FormatGraphML Format = "graphml"
	FormatCSV     Format = "csv"
)

// ParseFormat validates an output format name from the CLI.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatGraphML, FormatCSV:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Options control what part of a network is exported.
type Options struct {
	// MinWeight drops edges lighter than this at export time, on top of any
	// filter applied when the network was computed.
	MinWeight int
	// NMessages is how many recent messages annotate each node in GraphML.
	NMessages int
	// IncludeSelfLoops keeps (u, u) edges, which are recorded but hidden by
	// default.
	IncludeSelfLoops bool
}

func (o Options) normalized() Options {
	if o.MinWeight < 1 {
		o.MinWeight = 1
	}
	if o.NMessages < 0 {
		o.NMessages = 0
	}
	return o
}

// Write exports the named network in the requested format.
func Write(w io.Writer, st *store.Store, name string, format Format, opts Options) error {
	exists, err := st.NetworkExists(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("network %s has not been computed yet", name)
	}

	switch format {
	case FormatGraphML:
		return writeGraphML(w, st, name, opts.normalized())
	case FormatCSV:
		return writeCSV(w, st, name, opts.normalized())
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
