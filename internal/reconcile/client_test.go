package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planwhat/planwhat/internal/edits"
	"github.com/planwhat/planwhat/internal/plantree"
)

func testPlan() *Plan {
	cost := func(f float64) *float64 { return &f }
	isRoot := true
	tree := plantree.Ingest(plantree.Graph{
		Nodes: []plantree.NodeRecord{
			{ID: "1", NodeType: "Hash Join", JoinOrScan: "Join", Cost: cost(200), IsRoot: &isRoot},
			{ID: "2", NodeType: "Seq Scan", JoinOrScan: "Scan", Table: "customer", Cost: cost(100)},
		},
		Edges: []plantree.Edge{{Source: "1", Target: "2"}},
	})
	return &Plan{Tree: tree, Cost: 200, Query: "select * from customer"}
}

func TestGenerateAlternativeNoChanges(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.GenerateAlternative(context.Background(), testPlan(), nil)

	assert.ErrorIs(t, err, ErrNoChanges)
	assert.Equal(t, int64(0), requests.Load(), "no request should be issued")
}

func TestGenerateAlternativeSuccess(t *testing.T) {
	var captured modifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/query/modify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		cost := 150.0
		isRoot := true
		resp := modifyResponse{
			Status:           "success",
			ModifiedSQLQuery: "/*+ IndexScan(customer) */ select * from customer",
			CostComparison:   costComparison{Original: 200, Modified: 150},
			UpdatedGraph: &plantree.Graph{
				Nodes: []plantree.NodeRecord{
					{ID: "1", NodeType: "Hash Join", JoinOrScan: "Join", Cost: &cost, IsRoot: &isRoot},
					{ID: "2", NodeType: "Index Scan", JoinOrScan: "Scan", Table: "customer", Cost: &cost},
				},
				Edges: []plantree.Edge{{Source: "1", Target: "2"}},
			},
			Hints: map[string]string{"IndexScan(customer)": "use an index scan on customer"},
		}
		writeTestJSON(t, w, resp)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	plan := testPlan()
	pending := []edits.Edit{
		edits.TypeChange{NodeID: "2", OriginalType: "Seq Scan", NewType: "Index Scan"},
	}

	comparison, err := client.GenerateAlternative(context.Background(), plan, pending)
	require.NoError(t, err)

	// the edit was serialized into the backend's modification shape
	require.Len(t, captured.Modifications, 1)
	raw, _ := json.Marshal(captured.Modifications[0])
	var mod typeModification
	require.NoError(t, json.Unmarshal(raw, &mod))
	assert.Equal(t, typeModification{
		NodeType:     "SCAN",
		OriginalType: "Seq Scan",
		NewType:      "Index Scan",
		NodeID:       "2",
	}, mod)

	assert.Equal(t, 200.0, comparison.OriginalCost)
	assert.Equal(t, 150.0, comparison.AlternativeCost)
	assert.Equal(t, "Index Scan", comparison.Alternative.Find("2").Label)
	assert.Equal(t, plan.Tree, comparison.Original)
	assert.Contains(t, comparison.Hints, "IndexScan(customer)")
}

func TestGenerateAlternativeSerializesOrderChange(t *testing.T) {
	var captured modifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeTestJSON(t, w, modifyResponse{UpdatedGraph: &plantree.Graph{
			Nodes: []plantree.NodeRecord{{ID: "1", NodeType: "Hash Join"}},
		}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	pending := []edits.Edit{edits.OrderChange{FirstID: "a", SecondID: "b"}}

	_, err := client.GenerateAlternative(context.Background(), testPlan(), pending)
	require.NoError(t, err)

	require.Len(t, captured.Modifications, 1)
	raw, _ := json.Marshal(captured.Modifications[0])
	var mod swapModification
	require.NoError(t, json.Unmarshal(raw, &mod))
	assert.Equal(t, swapModification{Node1ID: "a", Node2ID: "b"}, mod)
}

func TestGenerateAlternativeMissingGraph(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// success status but no updated_networkx_object
		writeTestJSON(t, w, map[string]any{
			"status":          "success",
			"cost_comparison": map[string]float64{"original": 200, "modified": 150},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	plan := testPlan()
	before := plan.Tree.Clone()
	pending := []edits.Edit{
		edits.TypeChange{NodeID: "2", OriginalType: "Seq Scan", NewType: "Index Scan"},
	}

	_, err := client.GenerateAlternative(context.Background(), plan, pending)

	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "updated_networkx_object", malformed.Field)
	// the caller's tree is untouched
	assert.True(t, plantree.Equal(before, plan.Tree))
}

func TestGenerateAlternativeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		writeTestJSON(t, w, statusResponse{Status: "error", Message: "planner exploded"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	pending := []edits.Edit{edits.OrderChange{FirstID: "a", SecondID: "b"}}

	_, err := client.GenerateAlternative(context.Background(), testPlan(), pending)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusInternalServerError, netErr.Status)
	assert.Contains(t, netErr.Error(), "planner exploded")
}

func TestGenerateAlternativeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := NewClient(srv.URL, zerolog.Nop())
	pending := []edits.Edit{edits.OrderChange{FirstID: "a", SecondID: "b"}}

	_, err := client.GenerateAlternative(context.Background(), testPlan(), pending)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestPreviewSwap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/preview_join_swaps", r.URL.Path)

		var req previewRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Modifications, 1)
		assert.Equal(t, swapModification{Node1ID: "x", Node2ID: "y"}, req.Modifications[0])

		writeTestJSON(t, w, previewResponse{NetworkxObject: &plantree.Graph{
			Nodes: []plantree.NodeRecord{{ID: "x", NodeType: "Merge Join"}},
		}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	tree, err := client.PreviewSwap(context.Background(), "x", "y")
	require.NoError(t, err)
	assert.Equal(t, "Merge Join", tree.Label)
}

func TestPreviewSwapMissingGraph(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(t, w, map[string]string{"status": "success"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.PreviewSwap(context.Background(), "x", "y")

	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
}

func TestFetchPlanEmptyQuery(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", zerolog.Nop())
	_, err := client.FetchPlan(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestFetchPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/query/plan", r.URL.Path)
		cost := 321.5
		isRoot := true
		writeTestJSON(t, w, planResponse{
			Status:   "success",
			SQLQuery: "select 1",
			Cost:     321.5,
			NetworkxObject: &plantree.Graph{
				Nodes: []plantree.NodeRecord{{ID: "r", NodeType: "Seq Scan", Cost: &cost, IsRoot: &isRoot}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	plan, err := client.FetchPlan(context.Background(), "select 1")
	require.NoError(t, err)
	assert.Equal(t, 321.5, plan.Cost)
	assert.Equal(t, "r", plan.Tree.ID)
}

func TestAvailableDatabases(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/database/available", r.URL.Path)
		writeTestJSON(t, w, availableResponse{Databases: []Database{{Value: "TPC-H", Label: "TPC-H"}}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	dbs, err := client.AvailableDatabases(context.Background())
	require.NoError(t, err)
	require.Len(t, dbs, 1)
	assert.Equal(t, "TPC-H", dbs[0].Value)
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}
