package plantree

// NodeRecord is one node of the wire-format plan graph. Field names have
// drifted across backend revisions, so the record carries the union and
// Ingest normalizes it.
type NodeRecord struct {
	ID         string   `json:"id"`
	Type       string   `json:"type,omitempty"`
	NodeType   string   `json:"node_type,omitempty"`
	JoinOrScan string   `json:"join_or_scan,omitempty"`
	Cost       *float64 `json:"cost,omitempty"`
	Table      string   `json:"table,omitempty"`
	Tables     []string `json:"tables,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
	IsLeaf     *bool    `json:"isLeaf,omitempty"`
	IsRoot     *bool    `json:"isRoot,omitempty"`
	Position   string   `json:"position,omitempty"`
}

// Edge connects a parent node to one of its children
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the node/edge plan representation exchanged with the backend
type Graph struct {
	Nodes []NodeRecord `json:"nodes"`
	Edges []Edge       `json:"edges"`
}
