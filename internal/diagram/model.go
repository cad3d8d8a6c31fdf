package diagram

// NodeKind classifies a diagram node by its record type.
type NodeKind string

const (
	NodeKindService  NodeKind = "service"
	NodeKindDatabase NodeKind = "database"
	NodeKindQueue    NodeKind = "queue"
	NodeKindNetwork  NodeKind = "network"
	NodeKindExternal NodeKind = "external"
	NodeKindNote     NodeKind = "note"
	NodeKindOther    NodeKind = "other"
)

// Model is the intermediate representation the graphviz renderer consumes.
type Model struct {
	Title    string
	Nodes    []*Node
	Edges    []Edge
	Clusters []*Cluster
}

// Node represents a single record in the diagram.
type Node struct {
	ID    string
	Label string
	Kind  NodeKind
	SPOF  bool
}

// Cluster groups nodes that share a layer attribute.
type Cluster struct {
	Label   string
	NodeIDs []string
}

// Edge represents a relation between two records.
type Edge struct {
	From  string
	To    string
	Label string
}
