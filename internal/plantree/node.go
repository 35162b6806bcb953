package plantree

import (
	"fmt"
	"sort"
)

// Role classifies a plan node for editing purposes
type Role string

const (
	RoleScan    Role = "Scan"
	RoleJoin    Role = "Join"
	RoleUnknown Role = "Unknown"
)

// Node is one operator in a rendered plan tree
type Node struct {
	ID         string
	Label      string
	Role       Role
	Cost       float64
	HasCost    bool
	Tables     []string
	Conditions []string
	IsRoot     bool
	IsLeaf     bool
	Position   string
	Children   []*Node
}

// CostLabel formats the node cost for display
func (n *Node) CostLabel() string {
	if !n.HasCost {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", n.Cost)
}

// Clone returns a deep copy of the subtree rooted at n
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	clone := *n
	clone.Tables = append([]string(nil), n.Tables...)
	clone.Conditions = append([]string(nil), n.Conditions...)
	clone.Children = make([]*Node, 0, len(n.Children))
	for _, child := range n.Children {
		clone.Children = append(clone.Children, child.Clone())
	}
	return &clone
}

// Find returns the node with the given id, searching depth-first
func (n *Node) Find(id string) *Node {
	if n == nil {
		return nil
	}
	if n.ID == id {
		return n
	}
	for _, child := range n.Children {
		if found := child.Find(id); found != nil {
			return found
		}
	}
	return nil
}

// Walk visits every node in the subtree depth-first, parents before children
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Parent returns the parent of the node with the given id, or nil for the
// root and for unknown ids
func (n *Node) Parent(id string) *Node {
	if n == nil || n.ID == id {
		return nil
	}
	for _, child := range n.Children {
		if child.ID == id {
			return n
		}
		if found := child.Parent(id); found != nil {
			return found
		}
	}
	return nil
}

// Equal reports whether two subtrees are structurally identical
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.Label != b.Label || a.Role != b.Role {
		return false
	}
	if a.HasCost != b.HasCost || (a.HasCost && a.Cost != b.Cost) {
		return false
	}
	if a.IsRoot != b.IsRoot || a.IsLeaf != b.IsLeaf || a.Position != b.Position {
		return false
	}
	if !stringSlicesEqual(a.Tables, b.Tables) || !stringSlicesEqual(a.Conditions, b.Conditions) {
		return false
	}
	if len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// positionRank orders children carrying explicit position tags
var positionRank = map[string]int{
	"left":   0,
	"center": 1,
	"right":  2,
	"sub":    3,
}

func sortChildrenByPosition(n *Node) {
	tagged := false
	for _, child := range n.Children {
		if _, ok := positionRank[child.Position]; ok {
			tagged = true
			break
		}
	}
	if !tagged {
		return
	}
	sort.SliceStable(n.Children, func(i, j int) bool {
		return positionValue(n.Children[i].Position) < positionValue(n.Children[j].Position)
	})
}

func positionValue(pos string) int {
	if rank, ok := positionRank[pos]; ok {
		return rank
	}
	return len(positionRank)
}
