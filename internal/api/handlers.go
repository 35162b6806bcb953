package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/planwhat/planwhat/internal/hint"
	"github.com/planwhat/planwhat/internal/plan"
)

// Explainer runs EXPLAIN against the selected database
type Explainer interface {
	Connect(ctx context.Context, database string) error
	Connected() bool
	Explain(ctx context.Context, query string) ([]byte, error)
}

// Handlers holds all HTTP handlers. The last parsed plan is kept so that
// modification and preview requests can refer back to its node ids; the tool
// serves a single analysis session at a time, matching the front end.
type Handlers struct {
	db          Explainer
	databases   []DatabaseEntry
	logger      zerolog.Logger
	stmtTimeout time.Duration

	mu        sync.Mutex
	lastPlan  *plan.Result
	lastQuery string
}

// NewHandlers creates a new handlers instance
func NewHandlers(db Explainer, databases []string, logger zerolog.Logger, stmtTimeout time.Duration) *Handlers {
	sorted := append([]string(nil), databases...)
	sort.Strings(sorted)

	entries := make([]DatabaseEntry, 0, len(sorted))
	for _, name := range sorted {
		entries = append(entries, DatabaseEntry{Value: name, Label: name})
	}

	return &Handlers{
		db:          db,
		databases:   entries,
		logger:      logger,
		stmtTimeout: stmtTimeout,
	}
}

// AvailableDatabasesHandler handles GET /api/database/available
func (h *Handlers) AvailableDatabasesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, AvailableResponse{Databases: h.databases})
	}
}

// SelectDatabaseHandler handles POST /api/database/select
func (h *Handlers) SelectDatabaseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectDatabaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, StatusError, "invalid JSON: "+err.Error())
			return
		}
		if req.Database == "" {
			writeError(w, http.StatusBadRequest, StatusError, "Database not specified")
			return
		}
		if !h.knownDatabase(req.Database) {
			writeError(w, http.StatusBadRequest, StatusError, "Database configuration not found")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), h.stmtTimeout)
		defer cancel()

		if err := h.db.Connect(ctx, req.Database); err != nil {
			h.logger.Error().Err(err).Str("database", req.Database).Msg("database_connect_failed")
			writeError(w, http.StatusInternalServerError, StatusError, err.Error())
			return
		}

		h.logger.Info().Str("database", req.Database).Msg("database_selected")
		writeJSON(w, http.StatusOK, StatusResponse{
			Status:           StatusSuccess,
			Message:          "Connected to " + req.Database,
			SelectedDatabase: req.Database,
		})
	}
}

// QueryPlanHandler handles POST /api/query/plan
func (h *Handlers) QueryPlanHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var req PlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, StatusError, "invalid JSON: "+err.Error())
			return
		}
		if req.Query == "" {
			writeError(w, http.StatusBadRequest, StatusQueryError, "Invalid request, query is empty or not found.")
			return
		}
		if !h.db.Connected() {
			writeError(w, http.StatusBadRequest, StatusDatabaseError, "Invalid request, database connection not found.")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), h.stmtTimeout)
		defer cancel()

		explainJSON, err := h.db.Explain(ctx, req.Query)
		if err != nil {
			writeError(w, http.StatusBadRequest, StatusError, err.Error())
			return
		}

		result, err := plan.Parse(explainJSON)
		if err != nil {
			writeError(w, http.StatusInternalServerError, StatusError, err.Error())
			return
		}

		h.mu.Lock()
		h.lastPlan = result
		h.lastQuery = req.Query
		h.mu.Unlock()

		h.logger.Info().
			Str("query", req.Query).
			Float64("cost", result.TotalCost()).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Msg("plan_generated")

		writeJSON(w, http.StatusOK, PlanResponse{
			Status:         StatusSuccess,
			Message:        "Query plan generated successfully",
			SQLQuery:       req.Query,
			Cost:           result.TotalCost(),
			NetworkxObject: result.Graph(),
		})
	}
}

// ModifyQueryHandler handles POST /api/query/modify
func (h *Handlers) ModifyQueryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var req ModifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, StatusError, "invalid JSON: "+err.Error())
			return
		}
		if req.Query == "" {
			writeError(w, http.StatusBadRequest, StatusQueryError, "Invalid request, query is empty or not found.")
			return
		}
		if !h.db.Connected() {
			writeError(w, http.StatusBadRequest, StatusDatabaseError, "Invalid request, database connection not found.")
			return
		}

		h.mu.Lock()
		original := h.lastPlan
		h.mu.Unlock()
		if original == nil {
			writeError(w, http.StatusBadRequest, StatusQueryError, "No query plan available, request a plan first.")
			return
		}

		working := original.Clone()
		if err := applyModifications(working, req.Modifications); err != nil {
			writeError(w, http.StatusBadRequest, StatusError, err.Error())
			return
		}

		hints := hint.Build(working)
		modifiedQuery := hints.Apply(req.Query)

		ctx, cancel := context.WithTimeout(r.Context(), h.stmtTimeout)
		defer cancel()

		explainJSON, err := h.db.Explain(ctx, modifiedQuery)
		if err != nil {
			writeError(w, http.StatusBadRequest, StatusError, err.Error())
			return
		}
		updated, err := plan.Parse(explainJSON)
		if err != nil {
			writeError(w, http.StatusInternalServerError, StatusError, err.Error())
			return
		}

		h.logger.Info().
			Int("modifications", len(req.Modifications)).
			Int("hints", len(hints.Hints)).
			Float64("original_cost", original.TotalCost()).
			Float64("modified_cost", updated.TotalCost()).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Msg("plan_modified")

		writeJSON(w, http.StatusOK, ModifyResponse{
			Status:           StatusSuccess,
			Message:          "QEP modifications applied successfully",
			ModifiedSQLQuery: modifiedQuery,
			CostComparison: CostComparison{
				Original: original.TotalCost(),
				Modified: updated.TotalCost(),
			},
			UpdatedGraph: updated.Graph(),
			Hints:        hints.Explanations,
		})
	}
}

// PreviewJoinSwapsHandler handles POST /api/preview_join_swaps
func (h *Handlers) PreviewJoinSwapsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PreviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, StatusError, "invalid JSON: "+err.Error())
			return
		}
		if len(req.Modifications) == 0 {
			writeError(w, http.StatusBadRequest, StatusError, "No modifications specified")
			return
		}

		h.mu.Lock()
		original := h.lastPlan
		h.mu.Unlock()
		if original == nil {
			writeError(w, http.StatusBadRequest, StatusQueryError, "No query plan available, request a plan first.")
			return
		}

		working := original.Clone()
		for _, swap := range req.Modifications {
			if err := working.SwapSubtrees(swap.Node1ID, swap.Node2ID); err != nil {
				writeError(w, http.StatusBadRequest, StatusError, err.Error())
				return
			}
		}

		// the swap preview carries no planner-computed costs
		working.ClearCosts()

		writeJSON(w, http.StatusOK, PreviewResponse{
			Status:         StatusSuccess,
			NetworkxObject: working.Graph(),
		})
	}
}

// HealthHandler handles GET /health
func (h *Handlers) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// applyModifications dispatches each raw modification on field presence:
// entries with node ids are type changes, entries with a node pair are swaps
func applyModifications(working *plan.Result, mods []json.RawMessage) error {
	for _, raw := range mods {
		var swap SwapModification
		if err := json.Unmarshal(raw, &swap); err == nil && swap.Node1ID != "" && swap.Node2ID != "" {
			if err := working.SwapSubtrees(swap.Node1ID, swap.Node2ID); err != nil {
				return err
			}
			continue
		}

		var change TypeModification
		if err := json.Unmarshal(raw, &change); err != nil {
			return err
		}
		if err := working.SetNodeType(change.NodeID, change.NewType); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) knownDatabase(name string) bool {
	for _, entry := range h.databases {
		if entry.Value == name {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, httpStatus int, statusTag, message string) {
	writeJSON(w, httpStatus, StatusResponse{Status: statusTag, Message: message})
}
