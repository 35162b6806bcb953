// Package hint builds pg_hint_plan directive blocks from a plan tree so the
// optimizer can be steered into an alternative plan.
package hint

import (
	"fmt"
	"strings"

	"github.com/planwhat/planwhat/internal/plan"
)

// scanHints maps EXPLAIN operator names to pg_hint_plan scan directives
var scanHints = map[string]string{
	"Seq Scan":          "SeqScan",
	"Index Scan":        "IndexScan",
	"Index Only Scan":   "IndexOnlyScan",
	"Bitmap Heap Scan":  "BitmapScan",
	"Bitmap Index Scan": "BitmapScan",
	"Tid Scan":          "TidScan",
}

// joinHints maps EXPLAIN join operators to pg_hint_plan join directives
var joinHints = map[string]string{
	"Nested Loop": "NestLoop",
	"Hash Join":   "HashJoin",
	"Merge Join":  "MergeJoin",
}

// Set is a complete generated hint set: the comment block to prepend to the
// query, the individual hint labels, and an explanation per label.
type Set struct {
	Block        string
	Hints        []string
	Explanations map[string]string
}

// Build derives the full hint set that pins the given plan: a Leading hint
// for the join order, one join-method hint per join node, and one scan-method
// hint per scan node outside subplans.
func Build(result *plan.Result) Set {
	set := Set{Explanations: map[string]string{}}

	if order := result.JoinOrder(); strings.Contains(order, " ") {
		leading := "Leading(" + order + ")"
		set.Hints = append(set.Hints, leading)
		set.Explanations[leading] = explainLeading(order)
	}

	collect(result, result.Root, false, &set)

	if len(set.Hints) > 0 {
		set.Block = "/*+ " + strings.Join(set.Hints, " ") + " */"
	}
	return set
}

// Apply prepends the hint block to the query text
func (s Set) Apply(query string) string {
	if s.Block == "" {
		return query
	}
	return s.Block + "\n" + query
}

func collect(result *plan.Result, node *plan.Node, inSubplan bool, set *Set) {
	if node == nil {
		return
	}
	inSubplan = inSubplan || node.Subplan

	if directive, ok := joinHints[node.Type]; ok && len(node.Aliases) >= 2 {
		label := fmt.Sprintf("%s(%s)", directive, strings.Join(node.Aliases, " "))
		set.Hints = append(set.Hints, label)
		set.Explanations[label] = explainJoin(result, directive, node.Aliases)
	}

	// scans under a subplan are planned separately; hinting them would
	// conflict with the outer query's hint set
	if directive, ok := scanHints[node.Type]; ok && !inSubplan && len(node.Aliases) == 1 {
		label := fmt.Sprintf("%s(%s)", directive, node.Aliases[0])
		set.Hints = append(set.Hints, label)
		set.Explanations[label] = explainScan(result, directive, node.Aliases[0])
	}

	for _, child := range node.Children {
		collect(result, child, inSubplan, set)
	}
}

func explainLeading(order string) string {
	return fmt.Sprintf("This hint fixes the join order of the plan: relations are joined innermost-first following %s.", order)
}

func explainJoin(result *plan.Result, directive string, aliases []string) string {
	return fmt.Sprintf(
		"This hint directs the optimizer to use a %s when joining the relations with aliases %s corresponding to tables %s.",
		directive, strings.Join(aliases, ", "), strings.Join(resolveAll(result, aliases), ", "))
}

func explainScan(result *plan.Result, directive, alias string) string {
	return fmt.Sprintf(
		"This hint directs the optimizer to use a %s on the relation %s with alias %s.",
		directive, resolve(result, alias), alias)
}

func resolveAll(result *plan.Result, aliases []string) []string {
	tables := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		tables = append(tables, resolve(result, alias))
	}
	return tables
}

func resolve(result *plan.Result, alias string) string {
	if table, ok := result.AliasMap[strings.ToLower(alias)]; ok {
		return table
	}
	return alias
}
