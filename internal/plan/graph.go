package plan

import (
	"fmt"
	"strings"

	"github.com/planwhat/planwhat/internal/plantree"
)

// Graph serializes the plan tree into the wire shape consumed by clients.
// Nodes appear in depth-first order, parents before children.
func (r *Result) Graph() plantree.Graph {
	var g plantree.Graph
	if r.Root == nil {
		return g
	}
	r.appendNode(&g, r.Root, true)
	return g
}

func (r *Result) appendNode(g *plantree.Graph, node *Node, isRoot bool) {
	record := plantree.NodeRecord{
		ID:         node.ID,
		Type:       node.Type,
		JoinOrScan: string(plantree.ClassifyLabel(node.Type)),
		Tables:     append([]string(nil), node.Tables...),
		Conditions: append([]string(nil), node.Conditions...),
	}
	if node.HasCost {
		cost := node.Cost
		record.Cost = &cost
	}
	if len(node.Tables) == 1 {
		record.Table = node.Tables[0]
	}
	root := isRoot
	leaf := len(node.Children) == 0
	record.IsRoot = &root
	record.IsLeaf = &leaf

	g.Nodes = append(g.Nodes, record)
	for _, child := range node.Children {
		g.Edges = append(g.Edges, plantree.Edge{Source: node.ID, Target: child.ID})
		r.appendNode(g, child, false)
	}
}

// Clone deep-copies the result so modifications never touch the parsed
// original
func (r *Result) Clone() *Result {
	clone := &Result{
		AliasMap: make(map[string]string, len(r.AliasMap)),
		idIndex:  make(map[string]*Node, len(r.idIndex)),
	}
	for alias, table := range r.AliasMap {
		clone.AliasMap[alias] = table
	}
	clone.Root = clone.cloneNode(r.Root)
	return clone
}

func (r *Result) cloneNode(node *Node) *Node {
	if node == nil {
		return nil
	}
	copied := *node
	copied.Tables = append([]string(nil), node.Tables...)
	copied.Aliases = append([]string(nil), node.Aliases...)
	copied.Conditions = append([]string(nil), node.Conditions...)
	copied.Children = make([]*Node, 0, len(node.Children))
	for _, child := range node.Children {
		copied.Children = append(copied.Children, r.cloneNode(child))
	}
	r.idIndex[copied.ID] = &copied
	return &copied
}

// SetNodeType overwrites the operator type of one node
func (r *Result) SetNodeType(id, newType string) error {
	node := r.idIndex[id]
	if node == nil {
		return fmt.Errorf("plan: node %s not found", id)
	}
	node.Type = newType
	return nil
}

// SwapSubtrees exchanges the positions of two subtrees. Neither node may be
// an ancestor of the other.
func (r *Result) SwapSubtrees(firstID, secondID string) error {
	if firstID == secondID {
		return fmt.Errorf("plan: cannot swap node %s with itself", firstID)
	}
	first, second := r.idIndex[firstID], r.idIndex[secondID]
	if first == nil || second == nil {
		return fmt.Errorf("plan: swap nodes not found")
	}
	if r.contains(first, secondID) || r.contains(second, firstID) {
		return fmt.Errorf("plan: cannot swap a node with its ancestor")
	}

	firstParent, firstIdx := r.locate(r.Root, firstID)
	secondParent, secondIdx := r.locate(r.Root, secondID)
	if firstParent == nil || secondParent == nil {
		return fmt.Errorf("plan: cannot swap the plan root")
	}

	firstParent.Children[firstIdx], secondParent.Children[secondIdx] =
		secondParent.Children[secondIdx], firstParent.Children[firstIdx]
	return nil
}

// ClearCosts drops cost estimates from every node; previews have no
// planner-computed costs to show
func (r *Result) ClearCosts() {
	var clear func(*Node)
	clear = func(n *Node) {
		if n == nil {
			return
		}
		n.Cost = 0
		n.HasCost = false
		for _, child := range n.Children {
			clear(child)
		}
	}
	clear(r.Root)
}

func (r *Result) contains(node *Node, id string) bool {
	if node == nil {
		return false
	}
	if node.ID == id {
		return true
	}
	for _, child := range node.Children {
		if r.contains(child, id) {
			return true
		}
	}
	return false
}

func (r *Result) locate(node *Node, id string) (*Node, int) {
	if node == nil {
		return nil, -1
	}
	for i, child := range node.Children {
		if child.ID == id {
			return node, i
		}
		if parent, idx := r.locate(child, id); parent != nil {
			return parent, idx
		}
	}
	return nil, -1
}

// JoinOrder renders the plan's join tree as a nested alias expression, e.g.
// "((c o) l)", suitable for a Leading hint
func (r *Result) JoinOrder() string {
	return joinOrderExpr(r.Root)
}

func joinOrderExpr(node *Node) string {
	if node == nil {
		return ""
	}
	if isScanType(node.Type) && len(node.Aliases) > 0 {
		return node.Aliases[0]
	}

	var parts []string
	for _, child := range node.Children {
		if expr := joinOrderExpr(child); expr != "" {
			parts = append(parts, expr)
		}
	}
	switch {
	case len(parts) == 0:
		return ""
	case len(parts) == 1:
		return parts[0]
	case isJoinType(node.Type):
		return "(" + strings.Join(parts, " ") + ")"
	default:
		return strings.Join(parts, " ")
	}
}
