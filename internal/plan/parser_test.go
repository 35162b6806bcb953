package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planwhat/planwhat/internal/plantree"
)

// explainDoc is a trimmed EXPLAIN (FORMAT JSON) document for
// "select * from customer c, orders o where c.c_custkey = o.o_custkey"
const explainDoc = `[
  {
    "Plan": {
      "Node Type": "Hash Join",
      "Join Type": "Inner",
      "Startup Cost": 4672.0,
      "Total Cost": 78456.85,
      "Hash Cond": "(o.o_custkey = c.c_custkey)",
      "Plans": [
        {
          "Node Type": "Seq Scan",
          "Relation Name": "orders",
          "Alias": "o",
          "Startup Cost": 0.0,
          "Total Cost": 41315.0
        },
        {
          "Node Type": "Hash",
          "Startup Cost": 4217.0,
          "Total Cost": 4217.0,
          "Plans": [
            {
              "Node Type": "Seq Scan",
              "Relation Name": "customer",
              "Alias": "c",
              "Startup Cost": 0.0,
              "Total Cost": 4217.0
            }
          ]
        }
      ]
    }
  }
]`

func TestParseBuildsTree(t *testing.T) {
	result, err := Parse([]byte(explainDoc))
	require.NoError(t, err)
	require.NotNil(t, result.Root)

	root := result.Root
	assert.Equal(t, "Hash Join", root.Type)
	assert.Equal(t, 78456.85, root.Cost)
	assert.Equal(t, 78456.85, result.TotalCost())
	require.Len(t, root.Children, 2)
	assert.Equal(t, "Seq Scan", root.Children[0].Type)
	assert.Equal(t, "Hash", root.Children[1].Type)
}

func TestParseResolvesAliases(t *testing.T) {
	result, err := Parse([]byte(explainDoc))
	require.NoError(t, err)

	assert.Equal(t, "customer", result.AliasMap["c"])
	assert.Equal(t, "orders", result.AliasMap["o"])

	// join predicate rewritten in terms of table names
	require.Len(t, result.Root.Conditions, 1)
	assert.Equal(t, "(orders.o_custkey = customer.c_custkey)", result.Root.Conditions[0])
}

func TestParseJoinNodeUnionsDescendantTables(t *testing.T) {
	result, err := Parse([]byte(explainDoc))
	require.NoError(t, err)

	assert.Equal(t, []string{"customer", "orders"}, result.Root.Tables)
	assert.Equal(t, []string{"c", "o"}, result.Root.Aliases)
}

func TestParseAssignsUniqueIDs(t *testing.T) {
	result, err := Parse([]byte(explainDoc))
	require.NoError(t, err)

	seen := map[string]bool{}
	var walk func(*Node)
	walk = func(n *Node) {
		assert.NotEmpty(t, n.ID)
		assert.False(t, seen[n.ID], "duplicate id %s", n.ID)
		seen[n.ID] = true
		assert.Same(t, n, result.Find(n.ID))
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(result.Root)
	assert.Len(t, seen, 4)
}

func TestParseRejectsMissingPlan(t *testing.T) {
	_, err := Parse([]byte(`[{"Settings": {}}]`))
	assert.Error(t, err)

	_, err = Parse([]byte(`[]`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestGraphWireShape(t *testing.T) {
	result, err := Parse([]byte(explainDoc))
	require.NoError(t, err)

	g := result.Graph()
	require.Len(t, g.Nodes, 4)
	require.Len(t, g.Edges, 3)

	root := g.Nodes[0]
	assert.Equal(t, "Hash Join", root.Type)
	assert.Equal(t, "Join", root.JoinOrScan)
	require.NotNil(t, root.IsRoot)
	assert.True(t, *root.IsRoot)
	require.NotNil(t, root.IsLeaf)
	assert.False(t, *root.IsLeaf)

	// single-table nodes also carry the scalar table field
	var scan *plantree.NodeRecord
	for i := range g.Nodes {
		if g.Nodes[i].Table == "orders" {
			scan = &g.Nodes[i]
		}
	}
	require.NotNil(t, scan)
	assert.Equal(t, "Scan", scan.JoinOrScan)
	assert.True(t, *scan.IsLeaf)

	// the wire graph round-trips through client ingestion
	tree := plantree.Ingest(g)
	require.NotNil(t, tree)
	count := 0
	tree.Walk(func(*plantree.Node) { count++ })
	assert.Equal(t, 4, count)
	assert.Equal(t, plantree.RoleJoin, tree.Role)
}

func TestCloneIsIndependent(t *testing.T) {
	result, err := Parse([]byte(explainDoc))
	require.NoError(t, err)

	clone := result.Clone()
	require.NoError(t, clone.SetNodeType(clone.Root.ID, "Merge Join"))

	assert.Equal(t, "Merge Join", clone.Root.Type)
	assert.Equal(t, "Hash Join", result.Root.Type)
}

func TestSetNodeTypeUnknownID(t *testing.T) {
	result, err := Parse([]byte(explainDoc))
	require.NoError(t, err)
	assert.Error(t, result.SetNodeType("missing", "Merge Join"))
}

func TestSwapSubtrees(t *testing.T) {
	result, err := Parse([]byte(explainDoc))
	require.NoError(t, err)

	first := result.Root.Children[0]
	second := result.Root.Children[1]
	require.NoError(t, result.SwapSubtrees(first.ID, second.ID))

	assert.Equal(t, second.ID, result.Root.Children[0].ID)
	assert.Equal(t, first.ID, result.Root.Children[1].ID)
}

func TestSwapSubtreesRejectsAncestor(t *testing.T) {
	result, err := Parse([]byte(explainDoc))
	require.NoError(t, err)

	hash := result.Root.Children[1]
	inner := hash.Children[0]
	assert.Error(t, result.SwapSubtrees(hash.ID, inner.ID))
	assert.Error(t, result.SwapSubtrees(result.Root.ID, inner.ID))
	assert.Error(t, result.SwapSubtrees(inner.ID, inner.ID))
}

func TestClearCosts(t *testing.T) {
	result, err := Parse([]byte(explainDoc))
	require.NoError(t, err)

	result.ClearCosts()
	g := result.Graph()
	for _, node := range g.Nodes {
		assert.Nil(t, node.Cost)
	}
}

func TestJoinOrder(t *testing.T) {
	result, err := Parse([]byte(explainDoc))
	require.NoError(t, err)
	assert.Equal(t, "(o c)", result.JoinOrder())
}
