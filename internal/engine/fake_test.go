package engine_test

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"planline/internal/domain"
)

// fakeTransport is an in-memory plan service. Errors queued in failNext are
// returned once by the named method.
type fakeTransport struct {
	mu       sync.Mutex
	plans    map[string][]string
	tasks    map[string]bool
	failNext map[string]error
	calls    []string
	reorders [][]domain.TaskSequence
	rawPlan  map[string]domain.Plan
}

func newFake() *fakeTransport {
	return &fakeTransport{
		plans:    map[string][]string{},
		tasks:    map[string]bool{},
		failNext: map[string]error{},
		rawPlan:  map[string]domain.Plan{},
	}
}

// seed creates tasks and puts them in the plan of projectID in order.
func (f *fakeTransport) seed(projectID string, planned []string, unplanned ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range append(slices.Clone(planned), unplanned...) {
		f.tasks[id] = true
	}
	f.plans[projectID] = slices.Clone(planned)
}

func (f *fakeTransport) fail(method string, err error) {
	f.mu.Lock()
	f.failNext[method] = err
	f.mu.Unlock()
}

func (f *fakeTransport) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeTransport) enter(method string) error {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	err := f.failNext[method]
	delete(f.failNext, method)
	f.mu.Unlock()
	return err
}

func notFound(format string, args ...any) error {
	return domain.NewRemoteError(http.StatusNotFound, fmt.Sprintf(format, args...))
}

func (f *fakeTransport) FetchPlan(ctx context.Context, projectID string) (domain.Plan, error) {
	if err := f.enter("FetchPlan"); err != nil {
		return domain.Plan{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if raw, ok := f.rawPlan[projectID]; ok {
		return raw.Clone(), nil
	}
	ids, ok := f.plans[projectID]
	if !ok {
		return domain.Plan{}, notFound("project %s", projectID)
	}
	plan := domain.Plan{ProjectID: projectID, Items: []domain.PlanItem{}}
	for i, id := range ids {
		plan.Items = append(plan.Items, domain.PlanItem{
			ID:            "pi-" + id,
			TaskID:        id,
			SequenceOrder: i + 1,
			Task:          domain.TaskSnapshot{Title: "Task " + id, Status: "planned", Priority: "medium", Type: "feature"},
		})
	}
	return plan, nil
}

func (f *fakeTransport) FetchStats(ctx context.Context, projectID string) (domain.PlanStats, error) {
	if err := f.enter("FetchStats"); err != nil {
		return domain.PlanStats{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.plans[projectID])
	return domain.PlanStats{TotalTasks: n, ByStatus: map[string]int{"planned": n}}, nil
}

func (f *fakeTransport) AddTask(ctx context.Context, projectID, taskID string) error {
	if err := f.enter("AddTask"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.add(projectID, taskID)
}

func (f *fakeTransport) add(projectID, taskID string) error {
	if !f.tasks[taskID] {
		return notFound("task %s", taskID)
	}
	if slices.Contains(f.plans[projectID], taskID) {
		return domain.NewRemoteError(http.StatusConflict, "task "+taskID+" is already in the plan")
	}
	f.plans[projectID] = append(f.plans[projectID], taskID)
	return nil
}

func (f *fakeTransport) RemoveTask(ctx context.Context, projectID, taskID string) error {
	if err := f.enter("RemoveTask"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remove(projectID, taskID)
}

func (f *fakeTransport) remove(projectID, taskID string) error {
	idx := slices.Index(f.plans[projectID], taskID)
	if idx < 0 {
		return notFound("task %s in plan %s", taskID, projectID)
	}
	f.plans[projectID] = slices.Delete(f.plans[projectID], idx, idx+1)
	return nil
}

func (f *fakeTransport) Reorder(ctx context.Context, projectID string, seqs []domain.TaskSequence) error {
	if err := f.enter("Reorder"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reorders = append(f.reorders, slices.Clone(seqs))
	order := make([]string, len(seqs))
	for _, s := range seqs {
		order[s.SequenceOrder-1] = s.TaskID
	}
	f.plans[projectID] = order
	return nil
}

func (f *fakeTransport) RepositionOne(ctx context.Context, projectID, taskID string, position int) error {
	if err := f.enter("RepositionOne"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.plans[projectID]
	idx := slices.Index(ids, taskID)
	if idx < 0 {
		return notFound("task %s in plan %s", taskID, projectID)
	}
	ids = slices.Delete(ids, idx, idx+1)
	to := min(max(position, 1), len(ids)+1) - 1
	f.plans[projectID] = slices.Insert(ids, to, taskID)
	return nil
}

func (f *fakeTransport) AddBatch(ctx context.Context, projectID string, taskIDs []string) (domain.BatchResult, error) {
	if err := f.enter("AddBatch"); err != nil {
		return domain.BatchResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batch(taskIDs, func(id string) error { return f.add(projectID, id) }), nil
}

func (f *fakeTransport) RemoveBatch(ctx context.Context, projectID string, taskIDs []string) (domain.BatchResult, error) {
	if err := f.enter("RemoveBatch"); err != nil {
		return domain.BatchResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batch(taskIDs, func(id string) error { return f.remove(projectID, id) }), nil
}

func (f *fakeTransport) batch(ids []string, apply func(string) error) domain.BatchResult {
	res := domain.BatchResult{TotalCount: len(ids)}
	for _, id := range ids {
		if err := apply(id); err != nil {
			res.FailedCount++
			res.Errors = append(res.Errors, id+": failed")
			continue
		}
		res.SuccessCount++
	}
	return res
}

func (f *fakeTransport) IsInPlan(ctx context.Context, projectID, taskID string) (bool, error) {
	if err := f.enter("IsInPlan"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.plans[projectID], taskID), nil
}

func (f *fakeTransport) Position(ctx context.Context, projectID, taskID string) (int, error) {
	if err := f.enter("Position"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := slices.Index(f.plans[projectID], taskID)
	if idx < 0 {
		return 0, notFound("task %s in plan %s", taskID, projectID)
	}
	return idx + 1, nil
}
