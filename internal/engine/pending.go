package engine

import (
	"context"

	"planline/internal/domain"
)

// Op names the operation behind a Pending.
type Op string

const (
	OpLoad       Op = "load"
	OpCommit     Op = "commit"
	OpDiscard    Op = "discard"
	OpAdd        Op = "add"
	OpRemove     Op = "remove"
	OpAddMany    Op = "add-many"
	OpRemoveMany Op = "remove-many"
	OpMove       Op = "move"
)

// Pending is an issued request. Run touches only the transport.
type Pending struct {
	op        Op
	projectID string
	gen       uint64
	transport Transport

	taskIDs  []string
	seqs     []domain.TaskSequence
	position int
}

func (p Pending) Op() Op { return p.op }

// Outcome is what came back for a Pending.
type Outcome struct {
	op        Op
	projectID string
	gen       uint64

	opErr error
	batch *domain.BatchResult

	plan     domain.Plan
	planErr  error
	stats    *domain.PlanStats
	statsErr error
}

func (o Outcome) Op() Op            { return o.op }
func (o Outcome) ProjectID() string { return o.projectID }

// Batch returns the service's batch result, if the request produced one.
func (o Outcome) Batch() (domain.BatchResult, bool) {
	if o.batch == nil {
		return domain.BatchResult{}, false
	}
	return *o.batch, true
}

// Err is the operation's own failure, or the failure of the fetch that
// followed it.
func (o Outcome) Err() error {
	if o.opErr != nil {
		return o.opErr
	}
	return o.planErr
}

// Run performs the request. A failed commit is not followed by a fetch;
// every other write is.
func (p Pending) Run(ctx context.Context) Outcome {
	o := Outcome{op: p.op, projectID: p.projectID, gen: p.gen}
	switch p.op {
	case OpLoad, OpDiscard:
	case OpCommit:
		o.opErr = p.transport.Reorder(ctx, p.projectID, p.seqs)
		if o.opErr != nil {
			return o
		}
	case OpAdd:
		o.opErr = p.transport.AddTask(ctx, p.projectID, p.taskIDs[0])
	case OpRemove:
		o.opErr = p.transport.RemoveTask(ctx, p.projectID, p.taskIDs[0])
	case OpAddMany:
		o.batch, o.opErr = batch(p.transport.AddBatch(ctx, p.projectID, p.taskIDs))
	case OpRemoveMany:
		o.batch, o.opErr = batch(p.transport.RemoveBatch(ctx, p.projectID, p.taskIDs))
	case OpMove:
		err := p.transport.RepositionOne(ctx, p.projectID, p.taskIDs[0], p.position)
		if domain.IsTaskNotFound(err) {
			err = &domain.NotFoundError{TaskID: p.taskIDs[0], Err: err}
		}
		o.opErr = err
	}
	p.fetch(ctx, &o)
	return o
}

func (p Pending) fetch(ctx context.Context, o *Outcome) {
	o.plan, o.planErr = p.transport.FetchPlan(ctx, p.projectID)
	stats, err := p.transport.FetchStats(ctx, p.projectID)
	if err != nil {
		o.statsErr = err
		return
	}
	o.stats = &stats
}

func batch(res domain.BatchResult, err error) (*domain.BatchResult, error) {
	if err != nil {
		return nil, err
	}
	return &res, nil
}
