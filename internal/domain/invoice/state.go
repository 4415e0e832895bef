package invoice

import (
	"fmt"

	"github.com/storefront/backend/internal/domain/shared"
)

// RenderState is a step of the linear render lifecycle
type RenderState string

const (
	StateInitialized RenderState = "INITIALIZED"
	StateHeaderDrawn RenderState = "HEADER_DRAWN"
	StateRowDrawn    RenderState = "ROW_DRAWN"
	StateTotalsDrawn RenderState = "TOTALS_DRAWN"
	StateFinalized   RenderState = "FINALIZED"
	StateFailed      RenderState = "FAILED"
)

var renderTransitions = map[RenderState][]RenderState{
	StateInitialized: {StateHeaderDrawn},
	StateHeaderDrawn: {StateRowDrawn, StateTotalsDrawn},
	StateRowDrawn:    {StateRowDrawn, StateTotalsDrawn},
	StateTotalsDrawn: {StateFinalized},
}

// IsTerminal reports whether no further transition is possible
func (s RenderState) IsTerminal() bool {
	return s == StateFinalized || s == StateFailed
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Failed is reachable from every non-terminal state.
func (s RenderState) CanTransitionTo(next RenderState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for _, allowed := range renderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RenderLifecycle tracks the state of one render call
type RenderLifecycle struct {
	state RenderState
}

// NewRenderLifecycle starts a lifecycle in the Initialized state
func NewRenderLifecycle() *RenderLifecycle {
	return &RenderLifecycle{state: StateInitialized}
}

// State returns the current state
func (l *RenderLifecycle) State() RenderState {
	return l.state
}

// Advance moves to next or returns an INVALID_STATE error
func (l *RenderLifecycle) Advance(next RenderState) error {
	if !l.state.CanTransitionTo(next) {
		return shared.NewDomainError(ErrCodeInvalidState,
			fmt.Sprintf("cannot move invoice render from %s to %s", l.state, next))
	}
	l.state = next
	return nil
}

// Fail moves the lifecycle to Failed unless it already finished
func (l *RenderLifecycle) Fail() {
	if !l.state.IsTerminal() {
		l.state = StateFailed
	}
}
