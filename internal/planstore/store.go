// Package planstore holds the authoritative plan rules served over HTTP:
// membership, contiguous ordering and the event trail.
package planstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
)

var (
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid request")
)

var (
	taskStatuses   = []string{"planned", "in_progress", "review", "done", "rejected", "canceled"}
	taskPriorities = []string{"low", "medium", "high", "critical"}
	taskTypes      = []string{"feature", "bug", "technical", "docs", "chore"}
)

type Store struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB) Store {
	return Store{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Now:    time.Now,
	}
}

func (s Store) now() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().UTC().Format(time.RFC3339Nano)
}

func (s Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateProject registers a project with an empty plan.
func (s Store) CreateProject(ctx context.Context, id, name, description, actorID string) (domain.Project, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Project{}, fmt.Errorf("%w: project id is required", ErrInvalid)
	}
	if name == "" {
		name = id
	}
	p := domain.Project{ID: id, Name: name, Description: description, CreatedAt: s.now()}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.Repo.GetProject(ctx, tx, id); err == nil {
			return fmt.Errorf("%w: project %s already exists", ErrConflict, id)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := s.Repo.InsertProject(ctx, tx, p); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		return s.Events.Append(ctx, tx, events.ProjectCreated, p.ID, "project", p.ID, actorID, events.Payload{"name": p.Name})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID        string
	ProjectID string
	Title     string
	Status    string
	Priority  string
	Type      string
	ActorID   string
}

func (s Store) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if opts.Status == "" {
		opts.Status = "planned"
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	if opts.Type == "" {
		opts.Type = "feature"
	}
	if err := oneOf("status", opts.Status, taskStatuses); err != nil {
		return domain.Task{}, err
	}
	if err := oneOf("priority", opts.Priority, taskPriorities); err != nil {
		return domain.Task{}, err
	}
	if err := oneOf("type", opts.Type, taskTypes); err != nil {
		return domain.Task{}, err
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	now := s.now()
	t := domain.Task{
		ID:        opts.ID,
		ProjectID: opts.ProjectID,
		Title:     opts.Title,
		Status:    opts.Status,
		Priority:  opts.Priority,
		Type:      opts.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.Repo.GetProject(ctx, tx, opts.ProjectID); err != nil {
			return err
		}
		if _, err := s.Repo.GetTask(ctx, tx, t.ID); err == nil {
			return fmt.Errorf("%w: task %s already exists", ErrConflict, t.ID)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		n, err := s.Repo.NextTaskNumber(ctx, tx, opts.ProjectID)
		if err != nil {
			return err
		}
		t.Number = n
		if err := s.Repo.InsertTask(ctx, tx, t); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return s.Events.Append(ctx, tx, events.TaskCreated, t.ProjectID, "task", t.ID, opts.ActorID, events.Payload{"number": t.Number, "title": t.Title})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// Plan returns the authoritative ordered plan.
func (s Store) Plan(ctx context.Context, projectID string) (domain.Plan, error) {
	if _, err := s.Repo.GetProject(ctx, nil, projectID); err != nil {
		return domain.Plan{}, err
	}
	items, err := s.Repo.ListPlanItems(ctx, nil, projectID)
	if err != nil {
		return domain.Plan{}, err
	}
	return domain.Plan{ProjectID: projectID, Items: items}, nil
}

func (s Store) Stats(ctx context.Context, projectID string) (domain.PlanStats, error) {
	if _, err := s.Repo.GetProject(ctx, nil, projectID); err != nil {
		return domain.PlanStats{}, err
	}
	return s.Repo.PlanStats(ctx, projectID)
}

// AddTask appends a task at the end of the plan. Adding a task that is
// already planned is a conflict.
func (s Store) AddTask(ctx context.Context, projectID, taskID, actorID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.addTx(ctx, tx, projectID, taskID, actorID)
	})
}

func (s Store) addTx(ctx context.Context, tx *sql.Tx, projectID, taskID, actorID string) error {
	if _, err := s.Repo.GetProject(ctx, tx, projectID); err != nil {
		return err
	}
	task, err := s.Repo.GetTask(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if task.ProjectID != projectID {
		return fmt.Errorf("task %s in project %s: %w", taskID, projectID, repo.ErrNotFound)
	}
	if _, err := s.Repo.PlanPosition(ctx, tx, projectID, taskID); err == nil {
		return fmt.Errorf("%w: task %s is already in the plan", ErrConflict, taskID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	n, err := s.Repo.CountPlanItems(ctx, tx, projectID)
	if err != nil {
		return err
	}
	item := domain.PlanItem{ID: uuid.NewString(), TaskID: taskID, SequenceOrder: n + 1}
	if err := s.Repo.InsertPlanItem(ctx, tx, projectID, item, s.now()); err != nil {
		return fmt.Errorf("insert plan item: %w", err)
	}
	return s.Events.Append(ctx, tx, events.PlanTaskAdded, projectID, "plan_item", item.ID, actorID, events.Payload{"task_id": taskID, "position": item.SequenceOrder})
}

// RemoveTask drops a task from the plan and closes the gap it leaves.
func (s Store) RemoveTask(ctx context.Context, projectID, taskID, actorID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.removeTx(ctx, tx, projectID, taskID, actorID)
	})
}

func (s Store) removeTx(ctx context.Context, tx *sql.Tx, projectID, taskID, actorID string) error {
	if _, err := s.Repo.GetProject(ctx, tx, projectID); err != nil {
		return err
	}
	pos, err := s.Repo.PlanPosition(ctx, tx, projectID, taskID)
	if err != nil {
		return err
	}
	if err := s.Repo.DeletePlanItem(ctx, tx, projectID, taskID); err != nil {
		return err
	}
	if err := s.renumber(ctx, tx, projectID); err != nil {
		return err
	}
	return s.Events.Append(ctx, tx, events.PlanTaskRemoved, projectID, "task", taskID, actorID, events.Payload{"position": pos})
}

func (s Store) renumber(ctx context.Context, tx *sql.Tx, projectID string) error {
	items, err := s.Repo.ListPlanItems(ctx, tx, projectID)
	if err != nil {
		return err
	}
	return s.Repo.SetPlanOrder(ctx, tx, projectID, taskIDs(items))
}

// Reorder replaces the whole ordering. The sequences must name every planned
// task exactly once and use the positions 1..N.
func (s Store) Reorder(ctx context.Context, projectID string, seqs []domain.TaskSequence, actorID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.Repo.GetProject(ctx, tx, projectID); err != nil {
			return err
		}
		items, err := s.Repo.ListPlanItems(ctx, tx, projectID)
		if err != nil {
			return err
		}
		order, err := validateSequences(items, seqs)
		if err != nil {
			return err
		}
		if err := s.Repo.SetPlanOrder(ctx, tx, projectID, order); err != nil {
			return err
		}
		return s.Events.Append(ctx, tx, events.PlanReordered, projectID, "plan", projectID, actorID, events.Payload{"order": order})
	})
}

func validateSequences(items []domain.PlanItem, seqs []domain.TaskSequence) ([]string, error) {
	if len(seqs) != len(items) {
		return nil, fmt.Errorf("%w: reorder must list all %d planned tasks, got %d", ErrInvalid, len(items), len(seqs))
	}
	planned := make(map[string]bool, len(items))
	for _, it := range items {
		planned[it.TaskID] = true
	}
	order := make([]string, len(seqs))
	for _, seq := range seqs {
		if !planned[seq.TaskID] {
			return nil, fmt.Errorf("%w: task %s is not in the plan or listed twice", ErrInvalid, seq.TaskID)
		}
		if seq.SequenceOrder < 1 || seq.SequenceOrder > len(seqs) || order[seq.SequenceOrder-1] != "" {
			return nil, fmt.Errorf("%w: sequence orders must be exactly 1..%d", ErrInvalid, len(seqs))
		}
		planned[seq.TaskID] = false
		order[seq.SequenceOrder-1] = seq.TaskID
	}
	return order, nil
}

// MoveTask moves one planned task to an absolute 1-based position, clamped to
// the plan bounds, and renumbers the rest.
func (s Store) MoveTask(ctx context.Context, projectID, taskID string, position int, actorID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.Repo.GetProject(ctx, tx, projectID); err != nil {
			return err
		}
		items, err := s.Repo.ListPlanItems(ctx, tx, projectID)
		if err != nil {
			return err
		}
		order := taskIDs(items)
		from := slices.Index(order, taskID)
		if from < 0 {
			return fmt.Errorf("task %s in plan %s: %w", taskID, projectID, repo.ErrNotFound)
		}
		to := min(max(position, 1), len(order)) - 1
		order = slices.Delete(order, from, from+1)
		order = slices.Insert(order, to, taskID)
		if err := s.Repo.SetPlanOrder(ctx, tx, projectID, order); err != nil {
			return err
		}
		return s.Events.Append(ctx, tx, events.PlanTaskMoved, projectID, "task", taskID, actorID, events.Payload{"from": from + 1, "to": to + 1})
	})
}

// AddBatch adds each task independently. Failures are reported per task in
// the result; only an unusable request is an error.
func (s Store) AddBatch(ctx context.Context, projectID string, taskIDs []string, actorID string) (domain.BatchResult, error) {
	return s.batch(ctx, projectID, taskIDs, func(tx *sql.Tx, id string) error {
		return s.addTx(ctx, tx, projectID, id, actorID)
	})
}

func (s Store) RemoveBatch(ctx context.Context, projectID string, taskIDs []string, actorID string) (domain.BatchResult, error) {
	return s.batch(ctx, projectID, taskIDs, func(tx *sql.Tx, id string) error {
		return s.removeTx(ctx, tx, projectID, id, actorID)
	})
}

func (s Store) batch(ctx context.Context, projectID string, ids []string, apply func(tx *sql.Tx, id string) error) (domain.BatchResult, error) {
	if len(ids) == 0 {
		return domain.BatchResult{}, fmt.Errorf("%w: task_ids is required", ErrInvalid)
	}
	if _, err := s.Repo.GetProject(ctx, nil, projectID); err != nil {
		return domain.BatchResult{}, err
	}
	res := domain.BatchResult{TotalCount: len(ids)}
	for _, id := range ids {
		err := s.withTx(ctx, func(tx *sql.Tx) error { return apply(tx, id) })
		if err != nil {
			res.FailedCount++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", id, batchReason(err)))
			continue
		}
		res.SuccessCount++
	}
	return res, nil
}

func batchReason(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return "duplicate"
	case errors.Is(err, repo.ErrNotFound):
		return "not found"
	default:
		return err.Error()
	}
}

func (s Store) IsInPlan(ctx context.Context, projectID, taskID string) (bool, error) {
	if _, err := s.Repo.GetProject(ctx, nil, projectID); err != nil {
		return false, err
	}
	_, err := s.Repo.PlanPosition(ctx, nil, projectID, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s Store) Position(ctx context.Context, projectID, taskID string) (int, error) {
	if _, err := s.Repo.GetProject(ctx, nil, projectID); err != nil {
		return 0, err
	}
	return s.Repo.PlanPosition(ctx, nil, projectID, taskID)
}

func taskIDs(items []domain.PlanItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.TaskID
	}
	return ids
}

func oneOf(field, value string, allowed []string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%w: %s must be one of %s", ErrInvalid, field, strings.Join(allowed, ", "))
}
