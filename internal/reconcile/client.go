package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/planwhat/planwhat/internal/edits"
	"github.com/planwhat/planwhat/internal/plantree"
)

const defaultTimeout = 30 * time.Second

// Client talks to the plan/hint backend. Requests carry a default timeout;
// callers serialize logical actions, so one in-flight request per client is
// the norm.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  zerolog.Logger
}

// NewClient creates a backend client for the given base URL
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

// Database is one selectable database entry
type Database struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Plan holds the ingested plan for one query
type Plan struct {
	Tree  *plantree.Node
	Cost  float64
	Query string
}

// Comparison is the result of one reconciliation: the original and
// alternative plans side by side with their costs and the hints that
// produced the alternative. Each successful call yields a fresh Comparison
// that fully replaces any prior one.
type Comparison struct {
	Original        *plantree.Node
	Alternative     *plantree.Node
	OriginalCost    float64
	AlternativeCost float64
	ModifiedSQL     string
	Hints           map[string]string
}

type availableResponse struct {
	Databases []Database `json:"databases"`
}

type selectRequest struct {
	Database string `json:"database"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type planRequest struct {
	Query string `json:"query"`
}

type planResponse struct {
	Status         string          `json:"status"`
	Message        string          `json:"message"`
	SQLQuery       string          `json:"sql_query"`
	Cost           float64         `json:"cost"`
	NetworkxObject *plantree.Graph `json:"networkx_object"`
}

type typeModification struct {
	NodeType     string `json:"node_type"`
	OriginalType string `json:"original_type"`
	NewType      string `json:"new_type"`
	NodeID       string `json:"node_id"`
}

type swapModification struct {
	Node1ID string `json:"node_1_id"`
	Node2ID string `json:"node_2_id"`
}

type modifyRequest struct {
	Query         string `json:"query"`
	Modifications []any  `json:"modifications"`
}

type costComparison struct {
	Original float64 `json:"original"`
	Modified float64 `json:"modified"`
}

type modifyResponse struct {
	Status           string            `json:"status"`
	Message          string            `json:"message"`
	ModifiedSQLQuery string            `json:"modified_sql_query"`
	CostComparison   costComparison    `json:"cost_comparison"`
	UpdatedGraph     *plantree.Graph   `json:"updated_networkx_object"`
	Hints            map[string]string `json:"hints"`
}

type previewRequest struct {
	Modifications []swapModification `json:"modifications"`
}

type previewResponse struct {
	NetworkxObject *plantree.Graph `json:"networkx_object"`
}

// AvailableDatabases lists the databases the backend can connect to
func (c *Client) AvailableDatabases(ctx context.Context) ([]Database, error) {
	var resp availableResponse
	if err := c.get(ctx, "/api/database/available", &resp); err != nil {
		return nil, err
	}
	return resp.Databases, nil
}

// SelectDatabase asks the backend to connect to the named database
func (c *Client) SelectDatabase(ctx context.Context, name string) error {
	var resp statusResponse
	return c.post(ctx, "/api/database/select", selectRequest{Database: name}, &resp)
}

// FetchPlan submits a query and ingests the returned execution plan
func (c *Client) FetchPlan(ctx context.Context, query string) (*Plan, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	var resp planResponse
	if err := c.post(ctx, "/api/query/plan", planRequest{Query: query}, &resp); err != nil {
		return nil, err
	}
	if resp.NetworkxObject == nil {
		return nil, &MalformedResponseError{Op: "fetch plan", Field: "networkx_object"}
	}

	return &Plan{
		Tree:  plantree.Ingest(*resp.NetworkxObject),
		Cost:  resp.Cost,
		Query: query,
	}, nil
}

// GenerateAlternative submits the pending edits and returns the resulting
// alternative plan. With no pending edits it signals ErrNoChanges and issues
// no request. Any failure leaves the caller's state untouched: the method
// only reads its arguments.
func (c *Client) GenerateAlternative(ctx context.Context, plan *Plan, pending []edits.Edit) (*Comparison, error) {
	if len(pending) == 0 {
		return nil, ErrNoChanges
	}

	req := modifyRequest{Query: plan.Query}
	for _, edit := range pending {
		switch e := edit.(type) {
		case edits.TypeChange:
			req.Modifications = append(req.Modifications, typeModification{
				NodeType:     nodeTypeTag(plan.Tree, e),
				OriginalType: e.OriginalType,
				NewType:      e.NewType,
				NodeID:       e.NodeID,
			})
		case edits.OrderChange:
			req.Modifications = append(req.Modifications, swapModification{
				Node1ID: e.FirstID,
				Node2ID: e.SecondID,
			})
		default:
			return nil, fmt.Errorf("reconcile: unsupported edit %T", edit)
		}
	}

	var resp modifyResponse
	if err := c.post(ctx, "/api/query/modify", req, &resp); err != nil {
		return nil, err
	}
	if resp.UpdatedGraph == nil {
		return nil, &MalformedResponseError{Op: "generate alternative", Field: "updated_networkx_object"}
	}

	c.logger.Debug().
		Int("modifications", len(req.Modifications)).
		Float64("original_cost", resp.CostComparison.Original).
		Float64("modified_cost", resp.CostComparison.Modified).
		Msg("alternative plan generated")

	return &Comparison{
		Original:        plan.Tree,
		Alternative:     plantree.Ingest(*resp.UpdatedGraph),
		OriginalCost:    resp.CostComparison.Original,
		AlternativeCost: resp.CostComparison.Modified,
		ModifiedSQL:     resp.ModifiedSQLQuery,
		Hints:           resp.Hints,
	}, nil
}

// PreviewSwap fetches the plan with a single join-order swap applied. It
// implements the edit session's preview boundary.
func (c *Client) PreviewSwap(ctx context.Context, firstID, secondID string) (*plantree.Node, error) {
	req := previewRequest{
		Modifications: []swapModification{{Node1ID: firstID, Node2ID: secondID}},
	}

	var resp previewResponse
	if err := c.post(ctx, "/api/preview_join_swaps", req, &resp); err != nil {
		return nil, err
	}
	if resp.NetworkxObject == nil {
		return nil, &MalformedResponseError{Op: "preview swap", Field: "networkx_object"}
	}
	return plantree.Ingest(*resp.NetworkxObject), nil
}

// nodeTypeTag maps an edited node back to the SCAN/JOIN tag the backend
// expects, preferring the node's ingested role over the label text
func nodeTypeTag(tree *plantree.Node, e edits.TypeChange) string {
	role := plantree.ClassifyLabel(e.OriginalType)
	if tree != nil {
		if node := tree.Find(e.NodeID); node != nil {
			role = node.Role
		}
	}
	if role == plantree.RoleJoin {
		return "JOIN"
	}
	return "SCAN"
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &NetworkError{Op: path, Err: err}
	}
	return c.do(req, path, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("reconcile: encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &NetworkError{Op: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var status statusResponse
		if body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); readErr == nil {
			_ = json.Unmarshal(body, &status)
		}
		if status.Message != "" {
			return &NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%s", status.Message)}
		}
		return &NetworkError{Op: op, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
