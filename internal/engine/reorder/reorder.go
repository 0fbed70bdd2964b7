// Package reorder turns drag-and-drop and keyboard move gestures, which
// identify items by task id, into index moves on the plan engine.
package reorder

import "planline/internal/domain"

// Reorderer is the part of the engine the adapter drives.
type Reorderer interface {
	Plan() (domain.Plan, bool)
	ApplyLocalReorder(from, to int) bool
}

type Adapter struct {
	Engine Reorderer
}

func New(r Reorderer) Adapter {
	return Adapter{Engine: r}
}

// Drop moves activeID to the slot of overID. A nil overID means the item was
// released outside any target. Ids that no longer resolve are ignored.
func (a Adapter) Drop(activeID string, overID *string) bool {
	if overID == nil {
		return false
	}
	plan, ok := a.Engine.Plan()
	if !ok {
		return false
	}
	from, to := plan.IndexOf(activeID), plan.IndexOf(*overID)
	if from < 0 || to < 0 {
		return false
	}
	return a.Engine.ApplyLocalReorder(from, to)
}

// Nudge moves taskID by delta slots, stopping at either end of the plan.
func (a Adapter) Nudge(taskID string, delta int) bool {
	plan, ok := a.Engine.Plan()
	if !ok || delta == 0 {
		return false
	}
	from := plan.IndexOf(taskID)
	if from < 0 {
		return false
	}
	to := min(max(from+delta, 0), len(plan.Items)-1)
	return a.Engine.ApplyLocalReorder(from, to)
}
