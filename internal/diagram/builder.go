// Package diagram renders record collections as local preview images,
// independent of the external PlantUML renderer.
package diagram

import (
	"sort"
	"strings"

	"github.com/atessari/diaforge/pkg/schema"
)

// Build constructs a Model from a record collection. Records keep their
// input order; relations whose target is not in the collection are dropped.
func Build(title string, records []schema.Record) *Model {
	known := make(map[string]struct{}, len(records))
	for _, rec := range records {
		known[rec.ID] = struct{}{}
	}

	nodes := make([]*Node, 0, len(records))
	var edges []Edge
	layers := make(map[string][]string)

	for _, rec := range records {
		nodes = append(nodes, recordToNode(rec))

		if layer := layerOf(rec); layer != "" {
			layers[layer] = append(layers[layer], rec.ID)
		}

		for _, rel := range rec.Relations {
			if _, ok := known[rel.Target]; !ok {
				continue
			}
			edges = append(edges, Edge{From: rec.ID, To: rel.Target, Label: rel.Type})
		}
	}

	return &Model{
		Title:    title,
		Nodes:    nodes,
		Edges:    edges,
		Clusters: buildClusters(layers),
	}
}

// recordToNode maps a Record to a diagram Node.
func recordToNode(rec schema.Record) *Node {
	return &Node{
		ID:    rec.ID,
		Label: nodeLabel(rec),
		Kind:  typeToKind(rec.Type),
		SPOF:  spofOf(rec),
	}
}

// typeToKind converts a record type to a NodeKind.
func typeToKind(t string) NodeKind {
	switch strings.ToLower(t) {
	case "service", "application", "app":
		return NodeKindService
	case "database", "db", "datastore":
		return NodeKindDatabase
	case "queue", "broker", "topic":
		return NodeKindQueue
	case "network", "loadbalancer", "gateway", "proxy":
		return NodeKindNetwork
	case "external", "saas", "thirdparty":
		return NodeKindExternal
	case "note":
		return NodeKindNote
	default:
		return NodeKindOther
	}
}

// nodeLabel creates a human-readable label for a node.
func nodeLabel(rec schema.Record) string {
	if rec.Name != "" && rec.Name != rec.ID {
		return rec.Name + "\n(" + rec.ID + ")"
	}
	return rec.ID
}

// layerOf reads the layer attribute, if present.
func layerOf(rec schema.Record) string {
	if rec.Attributes == nil {
		return ""
	}
	if layer, ok := rec.Attributes["layer"].(string); ok {
		return layer
	}
	return ""
}

// spofOf reads the single-point-of-failure flag. The agent may emit it as a
// bool or as a descriptive string.
func spofOf(rec schema.Record) bool {
	if rec.Attributes == nil {
		return false
	}
	switch v := rec.Attributes["spof"].(type) {
	case bool:
		return v
	case string:
		return v != "" && !strings.EqualFold(v, "false")
	default:
		return false
	}
}

// buildClusters converts the layer index into sorted clusters for stable
// output.
func buildClusters(layers map[string][]string) []*Cluster {
	if len(layers) == 0 {
		return nil
	}
	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	sort.Strings(names)

	clusters := make([]*Cluster, 0, len(names))
	for _, name := range names {
		clusters = append(clusters, &Cluster{Label: name, NodeIDs: layers[name]})
	}
	return clusters
}
