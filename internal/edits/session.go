package edits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/planwhat/planwhat/internal/plantree"
)

// Mode selects which edit gesture the session is tracking
type Mode int

const (
	ModeTypeChange Mode = iota
	ModeOrderChange
)

// Edit is one pending, user-proposed plan change
type Edit interface {
	edit()
}

// TypeChange replaces a scan or join node's operator type
type TypeChange struct {
	NodeID       string
	OriginalType string
	NewType      string
}

// OrderChange proposes swapping the join order of two nodes
type OrderChange struct {
	FirstID  string
	SecondID string
}

func (TypeChange) edit()  {}
func (OrderChange) edit() {}

// Previewer supplies planner-computed previews for order swaps. A join-order
// swap is not a local tree edit: the subtree shape and costs after the swap
// depend on the planner, so the session asks the reconciliation boundary.
type Previewer interface {
	PreviewSwap(ctx context.Context, firstID, secondID string) (*plantree.Node, error)
}

var (
	ErrNoSelection  = errors.New("edits: no node selected")
	ErrNotSwappable = errors.New("edits: selected nodes are not swappable")
)

// Session tracks a user's pending edits against an ingested plan tree. The
// working tree always reflects every pending edit applied in order; the
// original tree is never mutated.
type Session struct {
	original  *plantree.Node
	working   *plantree.Node
	pending   []Edit
	mode      Mode
	selected  []string
	previewer Previewer
}

// NewSession starts edit tracking over an ingested plan tree
func NewSession(original *plantree.Node, previewer Previewer) *Session {
	return &Session{
		original:  original,
		working:   original.Clone(),
		previewer: previewer,
	}
}

// WorkingTree returns the live preview tree
func (s *Session) WorkingTree() *plantree.Node { return s.working }

// Original returns the source tree as ingested
func (s *Session) Original() *plantree.Node { return s.original }

// Pending returns a copy of the pending edit list
func (s *Session) Pending() []Edit { return append([]Edit(nil), s.pending...) }

// Selected returns the ids of currently selected nodes in selection order
func (s *Session) Selected() []string { return append([]string(nil), s.selected...) }

// Mode returns the active edit mode
func (s *Session) Mode() Mode { return s.mode }

// SetMode switches the edit gesture and drops any current selection
func (s *Session) SetMode(mode Mode) {
	s.mode = mode
	s.selected = nil
}

// SelectNode toggles selection of a node. Unknown-role nodes, third picks in
// order-change mode, and ineligible picks are all no-ops. It reports whether
// the selection changed.
func (s *Session) SelectNode(id string) bool {
	node := s.working.Find(id)
	if node == nil || node.Role == plantree.RoleUnknown {
		return false
	}

	for i, selected := range s.selected {
		if selected == id {
			s.selected = append(s.selected[:i], s.selected[i+1:]...)
			return true
		}
	}

	switch s.mode {
	case ModeTypeChange:
		s.selected = []string{id}
	case ModeOrderChange:
		if len(s.selected) >= 2 {
			return false
		}
		if len(s.selected) == 1 && !s.Swappable(id) {
			return false
		}
		s.selected = append(s.selected, id)
	}
	return true
}

// Swappable reports whether the node may be picked as the second node of an
// order swap given the current first selection. With a Join node selected
// first, every other Join node plus the first node's sibling is enabled;
// otherwise only the sibling is.
func (s *Session) Swappable(id string) bool {
	if s.mode != ModeOrderChange || len(s.selected) != 1 {
		return false
	}
	firstID := s.selected[0]
	if id == firstID {
		return false
	}
	first := s.working.Find(firstID)
	node := s.working.Find(id)
	if first == nil || node == nil || node.Role == plantree.RoleUnknown {
		return false
	}
	if first.Role == plantree.RoleJoin && node.Role == plantree.RoleJoin {
		return true
	}
	return s.isSibling(firstID, id)
}

// isSibling reports whether other is a same-parent sibling of id that is not
// a synthetic sub-query marker
func (s *Session) isSibling(id, other string) bool {
	parent := s.working.Parent(id)
	if parent == nil {
		return false
	}
	for _, child := range parent.Children {
		if child.ID != other {
			continue
		}
		return !isSubplanMarker(child)
	}
	return false
}

func isSubplanMarker(n *plantree.Node) bool {
	return n.Position == "sub" || strings.Contains(n.Label, "Subquery")
}

// ApplyTypeChange overwrites the selected node's operator type on a fresh
// clone of the working tree and records the edit
func (s *Session) ApplyTypeChange(id, newType string) error {
	if !s.isSelected(id) {
		return ErrNoSelection
	}
	clone := s.working.Clone()
	node := clone.Find(id)
	if node == nil || node.Role == plantree.RoleUnknown {
		return fmt.Errorf("edits: node %s is not editable", id)
	}

	s.pending = append(s.pending, TypeChange{
		NodeID:       id,
		OriginalType: node.Label,
		NewType:      newType,
	})
	node.Label = newType
	s.working = clone
	s.selected = nil
	return nil
}

// ApplyOrderChange requests a planner preview of the swap and, on success,
// replaces the working tree with the previewed plan and records the edit.
// On failure the working tree and pending list are left untouched.
func (s *Session) ApplyOrderChange(ctx context.Context, firstID, secondID string) error {
	if len(s.selected) != 2 || !s.isSelected(firstID) || !s.isSelected(secondID) {
		return ErrNotSwappable
	}
	if s.previewer == nil {
		return errors.New("edits: no previewer configured")
	}

	previewed, err := s.previewer.PreviewSwap(ctx, firstID, secondID)
	if err != nil {
		return fmt.Errorf("preview swap: %w", err)
	}
	if previewed == nil {
		return errors.New("edits: empty preview")
	}

	s.working = previewed
	s.pending = append(s.pending, OrderChange{FirstID: firstID, SecondID: secondID})
	s.selected = nil
	return nil
}

// ClearPending discards every pending edit and resets the working tree to a
// fresh clone of the original
func (s *Session) ClearPending() {
	s.pending = nil
	s.working = s.original.Clone()
	s.selected = nil
}

func (s *Session) isSelected(id string) bool {
	for _, selected := range s.selected {
		if selected == id {
			return true
		}
	}
	return false
}
