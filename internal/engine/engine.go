// Package engine keeps the client-side copy of one project's development plan
// in step with the plan service.
//
// An Engine is owned by a single event loop. Network work is split out into
// Pending values whose Run method may execute on any goroutine; the Outcome
// it produces is handed back to Apply on the owning loop.
package engine

import (
	"context"
	"io"
	"log"
	"slices"
	"sort"

	"planline/internal/domain"
)

// Transport is the plan service as seen by the engine.
type Transport interface {
	FetchPlan(ctx context.Context, projectID string) (domain.Plan, error)
	FetchStats(ctx context.Context, projectID string) (domain.PlanStats, error)
	AddTask(ctx context.Context, projectID, taskID string) error
	RemoveTask(ctx context.Context, projectID, taskID string) error
	Reorder(ctx context.Context, projectID string, seqs []domain.TaskSequence) error
	RepositionOne(ctx context.Context, projectID, taskID string, position int) error
	AddBatch(ctx context.Context, projectID string, taskIDs []string) (domain.BatchResult, error)
	RemoveBatch(ctx context.Context, projectID string, taskIDs []string) (domain.BatchResult, error)
	IsInPlan(ctx context.Context, projectID, taskID string) (bool, error)
	Position(ctx context.Context, projectID, taskID string) (int, error)
}

type Status int

const (
	StatusUnloaded Status = iota
	StatusLoading
	StatusReady
	StatusSaving
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusUnloaded:
		return "unloaded"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusSaving:
		return "saving"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

type Engine struct {
	transport Transport
	log       *log.Logger

	projectID string
	plan      *domain.Plan
	stats     *domain.PlanStats
	baseline  []string
	status    Status
	err       error
	statsErr  error
	gen       uint64
}

type Option func(*Engine)

// WithLogger sets the logger used for dropped responses and plan repairs.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func New(t Transport, opts ...Option) *Engine {
	e := &Engine{
		transport: t,
		log:       log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Status() Status    { return e.status }
func (e *Engine) ProjectID() string { return e.projectID }

// Err is the error of the last failed operation, cleared by the next
// successful load.
func (e *Engine) Err() error { return e.err }

// StatsErr reports why stats are missing after the last fetch.
func (e *Engine) StatsErr() error { return e.statsErr }

// Plan returns a copy of the loaded plan.
func (e *Engine) Plan() (domain.Plan, bool) {
	if e.plan == nil {
		return domain.Plan{}, false
	}
	return e.plan.Clone(), true
}

func (e *Engine) Stats() (domain.PlanStats, bool) {
	if e.stats == nil {
		return domain.PlanStats{}, false
	}
	return *e.stats, true
}

// Dirty reports whether the local order differs from the last fetched one.
func (e *Engine) Dirty() bool {
	return e.plan != nil && !slices.Equal(e.plan.TaskIDs(), e.baseline)
}

// ApplyLocalReorder moves the item at index from to index to and renumbers
// the plan. It reports whether anything moved.
func (e *Engine) ApplyLocalReorder(from, to int) bool {
	if e.status != StatusReady || e.plan == nil {
		return false
	}
	n := len(e.plan.Items)
	if n <= 1 || from == to || from < 0 || to < 0 || from >= n || to >= n {
		return false
	}
	item := e.plan.Items[from]
	items := slices.Delete(e.plan.Items, from, from+1)
	e.plan.Items = slices.Insert(items, to, item)
	renumber(e.plan.Items)
	return true
}

// BeginLoad discards the current snapshot and starts fetching projectID.
func (e *Engine) BeginLoad(projectID string) (Pending, error) {
	if projectID == "" {
		return Pending{}, &domain.ValidationError{Op: string(OpLoad), Reason: "project id is required"}
	}
	e.projectID = projectID
	e.plan = nil
	e.stats = nil
	e.baseline = nil
	e.err = nil
	e.statsErr = nil
	e.status = StatusLoading
	return e.pending(OpLoad), nil
}

// BeginCommit sends the local order to the service.
func (e *Engine) BeginCommit() (Pending, error) {
	switch {
	case e.plan == nil:
		return Pending{}, &domain.ValidationError{Op: string(OpCommit), Reason: "no plan is loaded"}
	case e.status == StatusSaving:
		return Pending{}, &domain.ValidationError{Op: string(OpCommit), Reason: "a save is already in flight"}
	case e.status != StatusReady:
		return Pending{}, &domain.ValidationError{Op: string(OpCommit), Reason: "plan is " + e.status.String()}
	}
	e.status = StatusSaving
	p := e.pending(OpCommit)
	p.seqs = e.plan.Sequences()
	return p, nil
}

// BeginDiscard drops local edits by reloading the plan.
func (e *Engine) BeginDiscard() (Pending, error) {
	if !e.Dirty() {
		return Pending{}, &domain.ValidationError{Op: string(OpDiscard), Reason: "no unsaved changes"}
	}
	p, err := e.BeginLoad(e.projectID)
	if err != nil {
		return Pending{}, err
	}
	p.op = OpDiscard
	return p, nil
}

func (e *Engine) BeginAddTask(taskID string) (Pending, error) {
	return e.beginMutation(OpAdd, []string{taskID}, 0)
}

func (e *Engine) BeginRemoveTask(taskID string) (Pending, error) {
	return e.beginMutation(OpRemove, []string{taskID}, 0)
}

func (e *Engine) BeginAddMany(taskIDs []string) (Pending, error) {
	return e.beginMutation(OpAddMany, taskIDs, 0)
}

func (e *Engine) BeginRemoveMany(taskIDs []string) (Pending, error) {
	return e.beginMutation(OpRemoveMany, taskIDs, 0)
}

// BeginMoveTaskTo moves one task to a 1-based position on the service.
func (e *Engine) BeginMoveTaskTo(taskID string, position int) (Pending, error) {
	return e.beginMutation(OpMove, []string{taskID}, position)
}

func (e *Engine) beginMutation(op Op, taskIDs []string, position int) (Pending, error) {
	if e.projectID == "" {
		return Pending{}, &domain.ValidationError{Op: string(op), Reason: "no project is loaded"}
	}
	if len(taskIDs) == 0 || slices.Contains(taskIDs, "") {
		return Pending{}, &domain.ValidationError{Op: string(op), Reason: "task id is required"}
	}
	e.status = StatusLoading
	p := e.pending(op)
	p.taskIDs = slices.Clone(taskIDs)
	p.position = position
	return p, nil
}

func (e *Engine) pending(op Op) Pending {
	e.gen++
	return Pending{op: op, projectID: e.projectID, gen: e.gen, transport: e.transport}
}

// IsCurrent reports whether o answers the latest issued request.
func (e *Engine) IsCurrent(o Outcome) bool {
	return o.gen == e.gen && o.projectID == e.projectID
}

// Apply reconciles an outcome with the engine. Outcomes from superseded
// requests are dropped without touching state; their own error is still
// returned.
func (e *Engine) Apply(o Outcome) error {
	if !e.IsCurrent(o) {
		e.log.Printf("engine: dropping stale %s response for project %s", o.op, o.projectID)
		return o.Err()
	}
	if o.op == OpCommit && o.opErr != nil {
		e.status = StatusReady
		e.err = o.opErr
		return o.opErr
	}
	e.applyFetch(o)
	if o.opErr != nil {
		e.err = o.opErr
	}
	return o.Err()
}

func (e *Engine) applyFetch(o Outcome) {
	if o.statsErr != nil {
		e.stats = nil
		e.statsErr = o.statsErr
	} else if o.stats != nil {
		s := *o.stats
		e.stats = &s
		e.statsErr = nil
	}
	if o.planErr != nil {
		e.plan = nil
		e.baseline = nil
		e.status = StatusErrored
		e.err = o.planErr
		return
	}
	plan := o.plan.Clone()
	plan.ProjectID = o.projectID
	if normalize(&plan) {
		e.log.Printf("engine: plan %s had non-contiguous sequence orders; renumbered", o.projectID)
	}
	e.plan = &plan
	e.baseline = plan.TaskIDs()
	e.status = StatusReady
	e.err = nil
}

// normalize sorts items by sequence order and renumbers them 1..N. It
// reports whether anything had to change.
func normalize(p *domain.Plan) bool {
	if p.CheckContiguous() == nil {
		return false
	}
	sort.SliceStable(p.Items, func(i, j int) bool {
		return p.Items[i].SequenceOrder < p.Items[j].SequenceOrder
	})
	renumber(p.Items)
	return true
}

func renumber(items []domain.PlanItem) {
	for i := range items {
		items[i].SequenceOrder = i + 1
	}
}

// Load fetches projectID and waits for the answer.
func (e *Engine) Load(ctx context.Context, projectID string) error {
	p, err := e.BeginLoad(projectID)
	if err != nil {
		return err
	}
	return e.Apply(p.Run(ctx))
}

func (e *Engine) Commit(ctx context.Context) error {
	p, err := e.BeginCommit()
	if err != nil {
		return err
	}
	return e.Apply(p.Run(ctx))
}

func (e *Engine) Discard(ctx context.Context) error {
	p, err := e.BeginDiscard()
	if err != nil {
		return err
	}
	return e.Apply(p.Run(ctx))
}

func (e *Engine) AddTask(ctx context.Context, taskID string) error {
	p, err := e.BeginAddTask(taskID)
	if err != nil {
		return err
	}
	return e.Apply(p.Run(ctx))
}

func (e *Engine) RemoveTask(ctx context.Context, taskID string) error {
	p, err := e.BeginRemoveTask(taskID)
	if err != nil {
		return err
	}
	return e.Apply(p.Run(ctx))
}

// AddMany adds every task it can. Per-task failures are in the result.
func (e *Engine) AddMany(ctx context.Context, taskIDs []string) (domain.BatchResult, error) {
	p, err := e.BeginAddMany(taskIDs)
	if err != nil {
		return domain.BatchResult{}, err
	}
	o := p.Run(ctx)
	err = e.Apply(o)
	res, _ := o.Batch()
	return res, err
}

func (e *Engine) RemoveMany(ctx context.Context, taskIDs []string) (domain.BatchResult, error) {
	p, err := e.BeginRemoveMany(taskIDs)
	if err != nil {
		return domain.BatchResult{}, err
	}
	o := p.Run(ctx)
	err = e.Apply(o)
	res, _ := o.Batch()
	return res, err
}

func (e *Engine) MoveTaskTo(ctx context.Context, taskID string, position int) error {
	p, err := e.BeginMoveTaskTo(taskID, position)
	if err != nil {
		return err
	}
	return e.Apply(p.Run(ctx))
}

// IsInPlan asks the service; the local copy is not consulted.
func (e *Engine) IsInPlan(ctx context.Context, taskID string) (bool, error) {
	if e.projectID == "" {
		return false, &domain.ValidationError{Op: "check", Reason: "no project is loaded"}
	}
	return e.transport.IsInPlan(ctx, e.projectID, taskID)
}

// Position asks the service for the 1-based position of taskID.
func (e *Engine) Position(ctx context.Context, taskID string) (int, error) {
	if e.projectID == "" {
		return 0, &domain.ValidationError{Op: "position", Reason: "no project is loaded"}
	}
	pos, err := e.transport.Position(ctx, e.projectID, taskID)
	if domain.IsTaskNotFound(err) {
		return 0, &domain.NotFoundError{TaskID: taskID, Err: err}
	}
	return pos, err
}
