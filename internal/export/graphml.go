package export

import (
	"encoding/xml"
	"fmt"
	"io"

	"coordnet/internal/store"
)

const graphmlNS = "http://graphml.graphdrawing.org/xmlns"

// writeGraphML streams a GraphML 1.1 document: key declarations, then one
// node per user touched by a retained edge (annotated with username and the
// latest messages), then the edges.
func writeGraphML(w io.Writer, st *store.Store, name string, opts Options) error {
	users, err := st.UsersInNetwork(name, opts.MinWeight, opts.IncludeSelfLoops)
	if err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	root := xml.StartElement{
		Name: xml.Name{Local: "graphml"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: graphmlNS}},
	}
	if err := enc.EncodeToken(root); err != nil {
		return err
	}

	// Attribute keys. Node attrs are user_id, username, message_1..N; edge
	// attrs are edge_type and weight. Ids follow the d0, d1, ... convention.
	keyIDs := map[string]string{}
	nextKey := 0
	declareKey := func(target, attrName, attrType string) error {
		id := fmt.Sprintf("d%d", nextKey)
		nextKey++
		keyIDs[target+"/"+attrName] = id
		return enc.EncodeToken(xml.StartElement{
			Name: xml.Name{Local: "key"},
			Attr: []xml.Attr{
				{Name: xml.Name{Local: "id"}, Value: id},
				{Name: xml.Name{Local: "for"}, Value: target},
				{Name: xml.Name{Local: "attr.name"}, Value: attrName},
				{Name: xml.Name{Local: "attr.type"}, Value: attrType},
			},
		})
	}
	closeKey := func() error {
		return enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "key"}})
	}

	nodeAttrs := []string{"user_id", "username"}
	for i := 1; i <= opts.NMessages; i++ {
		nodeAttrs = append(nodeAttrs, fmt.Sprintf("message_%d", i))
	}
	for _, attr := range nodeAttrs {
		if err := declareKey("node", attr, "string"); err != nil {
			return err
		}
		if err := closeKey(); err != nil {
			return err
		}
	}
	if err := declareKey("edge", "edge_type", "string"); err != nil {
		return err
	}
	if err := closeKey(); err != nil {
		return err
	}
	if err := declareKey("edge", "weight", "int"); err != nil {
		return err
	}
	if err := closeKey(); err != nil {
		return err
	}

	graph := xml.StartElement{
		Name: xml.Name{Local: "graph"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "edgedefault"}, Value: "directed"}},
	}
	if err := enc.EncodeToken(graph); err != nil {
		return err
	}

	writeData := func(keyID, value string) error {
		start := xml.StartElement{
			Name: xml.Name{Local: "data"},
			Attr: []xml.Attr{{Name: xml.Name{Local: "key"}, Value: keyID}},
		}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.CharData(value)); err != nil {
			return err
		}
		return enc.EncodeToken(xml.EndElement{Name: start.Name})
	}

	for _, userID := range users {
		snap, err := st.Snapshot(userID, opts.NMessages)
		if err != nil {
			return err
		}

		node := xml.StartElement{
			Name: xml.Name{Local: "node"},
			Attr: []xml.Attr{{Name: xml.Name{Local: "id"}, Value: userID}},
		}
		if err := enc.EncodeToken(node); err != nil {
			return err
		}
		if err := writeData(keyIDs["node/user_id"], userID); err != nil {
			return err
		}
		if err := writeData(keyIDs["node/username"], snap.Username); err != nil {
			return err
		}
		// Users with fewer than N messages simply omit the remaining keys.
		for i, msg := range snap.Messages {
			keyID := keyIDs[fmt.Sprintf("node/message_%d", i+1)]
			if err := writeData(keyID, msg); err != nil {
				return err
			}
		}
		if err := enc.EncodeToken(xml.EndElement{Name: node.Name}); err != nil {
			return err
		}
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
		edge := xml.StartElement{
			Name: xml.Name{Local: "edge"},
			Attr: []xml.Attr{
				{Name: xml.Name{Local: "source"}, Value: e.UserA},
				{Name: xml.Name{Local: "target"}, Value: e.UserB},
			},
		}
		if err := enc.EncodeToken(edge); err != nil {
			return err
		}
		if err := writeData(keyIDs["edge/edge_type"], name); err != nil {
			return err
		}
		if err := writeData(keyIDs["edge/weight"], fmt.Sprintf("%d", e.Weight)); err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.EndElement{Name: edge.Name}); err != nil {
			return err
		}
	}
	if err := edges.Err(); err != nil {
		return err
	}

	if err := enc.EncodeToken(xml.EndElement{Name: graph.Name}); err != nil {
		return err
	}
	if err := enc.EncodeToken(xml.EndElement{Name: root.Name}); err != nil {
		return err
	}
	return enc.Flush()
}
