package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// conditionKeys are the EXPLAIN fields that carry predicates worth surfacing
var conditionKeys = []string{
	"Hash Cond",
	"Merge Cond",
	"Join Filter",
	"Filter",
	"Index Cond",
	"Recheck Cond",
}

// Node is one operator of a parsed execution plan. IDs are assigned here and
// stay stable for the lifetime of the parse result; the client refers back to
// them when proposing modifications.
type Node struct {
	ID         string
	Type       string
	Cost       float64
	HasCost    bool
	Tables     []string
	Aliases    []string
	Conditions []string
	Subplan    bool
	Children   []*Node
}

// Result is a parsed plan: the operator tree plus the alias map collected
// while walking it
type Result struct {
	Root     *Node
	AliasMap map[string]string
	idIndex  map[string]*Node
}

// Parse reads a PostgreSQL EXPLAIN (FORMAT JSON) document and produces the
// plan tree. Aliases are resolved bottom-up so join predicates can be
// rewritten in terms of real table names.
func Parse(explainJSON []byte) (*Result, error) {
	decoder := json.NewDecoder(strings.NewReader(string(explainJSON)))
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode explain json: %w", err)
	}

	entry, err := firstEntry(payload)
	if err != nil {
		return nil, err
	}
	planMap, ok := entry["Plan"].(map[string]any)
	if !ok {
		return nil, errors.New("explain json: missing Plan root")
	}

	result := &Result{
		AliasMap: map[string]string{},
		idIndex:  map[string]*Node{},
	}
	result.Root = result.parseNode(planMap)
	return result, nil
}

// TotalCost returns the root node's estimated total cost
func (r *Result) TotalCost() float64 {
	if r.Root == nil {
		return 0
	}
	return r.Root.Cost
}

// Find returns the node with the given id
func (r *Result) Find(id string) *Node {
	return r.idIndex[id]
}

func firstEntry(payload any) (map[string]any, error) {
	switch v := payload.(type) {
	case []any:
		if len(v) == 0 {
			return nil, errors.New("explain json: empty payload")
		}
		entry, ok := v[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("explain json: unexpected entry type %T", v[0])
		}
		return entry, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("explain json: unexpected top-level type %T", payload)
	}
}

func (r *Result) parseNode(data map[string]any) *Node {
	node := &Node{
		ID:      uuid.NewString(),
		Type:    asString(data["Node Type"]),
		Cost:    asFloat(data["Total Cost"]),
		HasCost: data["Total Cost"] != nil,
		Subplan: strings.HasPrefix(asString(data["Subplan Name"]), "SubPlan"),
	}

	// children first so their aliases are registered before this node's
	// predicates are resolved
	if plans, ok := data["Plans"].([]any); ok {
		for _, childVal := range plans {
			childMap, ok := childVal.(map[string]any)
			if !ok {
				continue
			}
			node.Children = append(node.Children, r.parseNode(childMap))
		}
	}

	tables := map[string]struct{}{}
	aliases := map[string]struct{}{}

	if relation := asString(data["Relation Name"]); relation != "" {
		alias := asString(data["Alias"])
		if alias == "" {
			alias = relation
		}
		r.AliasMap[strings.ToLower(alias)] = relation
		tables[relation] = struct{}{}
		aliases[strings.ToLower(alias)] = struct{}{}
	}

	for _, key := range conditionKeys {
		condition := asString(data[key])
		if condition == "" {
			continue
		}
		condTables, resolved := r.resolveCondition(condition)
		for table := range condTables {
			tables[table] = struct{}{}
		}
		node.Conditions = append(node.Conditions, resolved...)
	}

	// join nodes also report everything their subtrees touch
	if isJoinType(node.Type) {
		for _, child := range node.Children {
			collectDescendants(child, tables, aliases)
		}
	}

	node.Tables = sortedKeys(tables)
	node.Aliases = sortedKeys(aliases)
	r.idIndex[node.ID] = node
	return node
}

// resolveCondition rewrites table aliases inside a predicate to their full
// table names and reports which tables the predicate references
func (r *Result) resolveCondition(condition string) (map[string]struct{}, []string) {
	tables := map[string]struct{}{}
	var resolved []string

	for _, clause := range strings.Split(condition, " AND ") {
		rewritten := clause
		parts := strings.FieldsFunc(clause, func(c rune) bool {
			return c == '(' || c == ')' || c == '=' || c == ' '
		})
		for _, part := range parts {
			alias, _, found := strings.Cut(part, ".")
			if !found {
				continue
			}
			table, ok := r.AliasMap[strings.ToLower(alias)]
			if !ok || table == alias {
				continue
			}
			tables[table] = struct{}{}
			rewritten = strings.ReplaceAll(rewritten, alias+".", table+".")
		}
		if trimmed := strings.TrimSpace(rewritten); trimmed != "" {
			resolved = append(resolved, trimmed)
		}
	}
	return tables, resolved
}

func collectDescendants(node *Node, tables, aliases map[string]struct{}) {
	for _, table := range node.Tables {
		tables[table] = struct{}{}
	}
	for _, alias := range node.Aliases {
		aliases[alias] = struct{}{}
	}
	for _, child := range node.Children {
		collectDescendants(child, tables, aliases)
	}
}

func isJoinType(nodeType string) bool {
	return strings.Contains(nodeType, "Join") || strings.Contains(nodeType, "Nested Loop")
}

func isScanType(nodeType string) bool {
	return strings.Contains(nodeType, "Scan")
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func asString(val any) string {
	s, _ := val.(string)
	return s
}

func asFloat(val any) float64 {
	switch v := val.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case float64:
		return v
	default:
		return 0
	}
}
