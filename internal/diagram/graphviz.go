package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// RenderImage renders a Model as a PNG image using graphviz.
// Returns the PNG bytes.
func RenderImage(model *Model) ([]byte, error) {
	ctx := context.Background()

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	clustered := make(map[string]string, len(model.Nodes))
	for _, cluster := range model.Clusters {
		for _, id := range cluster.NodeIDs {
			clustered[id] = cluster.Label
		}
	}

	// Create layer clusters first so their nodes land inside them.
	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, cluster := range model.Clusters {
		sub, subErr := graph.CreateSubGraphByName("cluster_" + cluster.Label)
		if subErr != nil {
			continue
		}
		sub.SetLabel(cluster.Label)
		sub.SetStyle(cgraph.DashedGraphStyle)

		for _, node := range model.Nodes {
			if clustered[node.ID] != cluster.Label {
				continue
			}
			gvNode, nErr := sub.CreateNodeByName(node.ID)
			if nErr != nil {
				continue
			}
			gvNode.SetLabel(node.Label)
			applyNodeStyle(gvNode, node)
			gvNodes[node.ID] = gvNode
		}
	}

	// Remaining nodes go on the top-level graph.
	for _, node := range model.Nodes {
		if _, done := gvNodes[node.ID]; done {
			continue
		}
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(node.Label)
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV != nil && toGV != nil {
			e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
			if eErr == nil && edge.Label != "" {
				e.SetLabel(edge.Label)
			}
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.PNG, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// applyNodeStyle sets graphviz attributes based on node kind and the SPOF
// flag.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindService:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindDatabase:
		gvNode.SetShape(cgraph.CylinderShape)
	case NodeKindQueue:
		gvNode.SetShape(cgraph.HexagonShape)
	case NodeKindNetwork:
		gvNode.SetShape(cgraph.DiamondShape)
	case NodeKindExternal:
		gvNode.SetShape(cgraph.EllipseShape)
	case NodeKindNote:
		gvNode.SetShape(cgraph.NoteShape)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	if node.SPOF {
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	}
}
