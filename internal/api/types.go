package api

import (
	"encoding/json"

	"github.com/planwhat/planwhat/internal/plantree"
)

// Status tags carried in response envelopes. The front end branches on these
// rather than on HTTP status codes alone.
const (
	StatusSuccess       = "success"
	StatusError         = "error"
	StatusQueryError    = "QueryError"
	StatusDatabaseError = "DatabaseError"
)

// DatabaseEntry is one selectable database
type DatabaseEntry struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// AvailableResponse lists the databases the server can connect to
type AvailableResponse struct {
	Databases []DatabaseEntry `json:"databases"`
}

// SelectDatabaseRequest asks the server to connect to a database
type SelectDatabaseRequest struct {
	Database string `json:"database"`
}

// StatusResponse is the generic success/error envelope
type StatusResponse struct {
	Status           string `json:"status"`
	Message          string `json:"message"`
	SelectedDatabase string `json:"selectedDatabase,omitempty"`
}

// PlanRequest asks for the execution plan of a query
type PlanRequest struct {
	Query string `json:"query"`
}

// PlanResponse carries the parsed plan graph for a query
type PlanResponse struct {
	Status         string         `json:"status"`
	Message        string         `json:"message"`
	SQLQuery       string         `json:"sql_query"`
	Cost           float64        `json:"cost"`
	NetworkxObject plantree.Graph `json:"networkx_object"`
}

// TypeModification replaces a scan or join operator on one node
type TypeModification struct {
	NodeType     string `json:"node_type"`
	OriginalType string `json:"original_type"`
	NewType      string `json:"new_type"`
	NodeID       string `json:"node_id"`
}

// SwapModification swaps the join order of two nodes
type SwapModification struct {
	Node1ID string `json:"node_1_id"`
	Node2ID string `json:"node_2_id"`
}

// ModifyRequest submits pending plan modifications. Each entry is either a
// TypeModification or a SwapModification; they are kept raw and dispatched
// on field presence.
type ModifyRequest struct {
	Query         string            `json:"query"`
	Modifications []json.RawMessage `json:"modifications"`
}

// CostComparison pairs the original and modified plan costs
type CostComparison struct {
	Original float64 `json:"original"`
	Modified float64 `json:"modified"`
}

// ModifyResponse carries the alternative plan produced by the hinted query
type ModifyResponse struct {
	Status           string            `json:"status"`
	Message          string            `json:"message"`
	ModifiedSQLQuery string            `json:"modified_sql_query"`
	CostComparison   CostComparison    `json:"cost_comparison"`
	UpdatedGraph     plantree.Graph    `json:"updated_networkx_object"`
	Hints            map[string]string `json:"hints"`
}

// PreviewRequest asks for the plan shape with join swaps applied, without
// re-planning
type PreviewRequest struct {
	Modifications []SwapModification `json:"modifications"`
}

// PreviewResponse carries the swapped plan graph
type PreviewResponse struct {
	Status         string         `json:"status"`
	NetworkxObject plantree.Graph `json:"networkx_object"`
}
