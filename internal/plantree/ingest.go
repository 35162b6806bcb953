package plantree

import "strings"

// Ingest converts a wire-format plan graph into a rooted tree suitable for
// recursive rendering. It is a pure transformation: malformed input yields a
// best-effort tree rather than an error, since the payload comes from an
// external service and the caller has nothing better to show than whatever
// structure survives.
func Ingest(g Graph) *Node {
	if len(g.Nodes) == 0 {
		return nil
	}

	index := make(map[string]*Node, len(g.Nodes))
	order := make([]*Node, 0, len(g.Nodes))
	for _, record := range g.Nodes {
		node := normalize(record)
		if _, exists := index[node.ID]; exists {
			continue
		}
		index[node.ID] = node
		order = append(order, node)
	}

	parents := make(map[string]*Node, len(index))
	for _, edge := range g.Edges {
		source, ok := index[edge.Source]
		if !ok {
			continue
		}
		target, ok := index[edge.Target]
		if !ok || source == target {
			continue
		}
		// one parent per node; refuse edges that would close a cycle
		if _, claimed := parents[target.ID]; claimed {
			continue
		}
		if isAncestor(parents, target.ID, source.ID) {
			continue
		}
		source.Children = append(source.Children, target)
		parents[target.ID] = source
	}

	root := pickRoot(order, parents)
	root.IsRoot = true
	root.Walk(func(n *Node) {
		if len(n.Children) == 0 {
			n.IsLeaf = true
		}
		sortChildrenByPosition(n)
	})
	return root
}

// normalize folds the field union of one wire record into a Node
func normalize(record NodeRecord) *Node {
	label := record.Type
	if label == "" {
		label = record.NodeType
	}

	node := &Node{
		ID:         record.ID,
		Label:      label,
		Role:       classifyRole(record.JoinOrScan, label),
		Conditions: append([]string(nil), record.Conditions...),
		Position:   record.Position,
	}
	if record.Cost != nil {
		node.Cost = *record.Cost
		node.HasCost = true
	}
	if len(record.Tables) > 0 {
		node.Tables = append(node.Tables, record.Tables...)
	} else if record.Table != "" {
		node.Tables = append(node.Tables, record.Table)
	}
	if record.IsRoot != nil {
		node.IsRoot = *record.IsRoot
	}
	if record.IsLeaf != nil {
		node.IsLeaf = *record.IsLeaf
	}
	return node
}

// classifyRole prefers the explicit join_or_scan tag and falls back to
// inspecting the operator name
func classifyRole(tag, label string) Role {
	switch tag {
	case string(RoleScan):
		return RoleScan
	case string(RoleJoin):
		return RoleJoin
	case string(RoleUnknown):
		return RoleUnknown
	}
	return ClassifyLabel(label)
}

// ClassifyLabel derives a node role from its operator name. Matching is
// case-insensitive since older payloads carried upper-cased types.
func ClassifyLabel(label string) Role {
	lower := strings.ToLower(label)
	if strings.Contains(lower, "join") || strings.Contains(lower, "nest") {
		return RoleJoin
	}
	if strings.Contains(lower, "scan") {
		return RoleScan
	}
	return RoleUnknown
}

// pickRoot prefers an explicitly flagged root, then the unique node without
// a parent. When neither exists the first node in input order is used; that
// only happens on malformed payloads and keeps the result renderable.
func pickRoot(order []*Node, parents map[string]*Node) *Node {
	for _, node := range order {
		if node.IsRoot {
			return node
		}
	}
	var orphan *Node
	for _, node := range order {
		if _, ok := parents[node.ID]; ok {
			continue
		}
		if orphan != nil {
			orphan = nil
			break
		}
		orphan = node
	}
	if orphan != nil {
		return orphan
	}
	return order[0]
}

func isAncestor(parents map[string]*Node, candidate, of string) bool {
	for cur := of; ; {
		parent, ok := parents[cur]
		if !ok {
			return false
		}
		if parent.ID == candidate {
			return true
		}
		cur = parent.ID
	}
}
