package planstore_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/migrate"
	"planline/internal/planstore"
	"planline/internal/repo"
)

type testEnv struct {
	Store planstore.Store
	Ctx   context.Context
	Tasks map[string]string
}

func newTestEnv(t *testing.T, titles ...string) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := planstore.New(conn)
	s.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	if _, err := s.CreateProject(ctx, "proj-1", "Project One", "", "tester"); err != nil {
		t.Fatalf("create project: %v", err)
	}
	env := testEnv{Store: s, Ctx: ctx, Tasks: map[string]string{}}
	for _, title := range titles {
		task, err := s.CreateTask(ctx, planstore.TaskCreateOptions{ID: title, ProjectID: "proj-1", Title: title, ActorID: "tester"})
		if err != nil {
			t.Fatalf("create task %s: %v", title, err)
		}
		env.Tasks[title] = task.ID
	}
	return env
}

func planOrder(t *testing.T, env testEnv) []string {
	t.Helper()
	p, err := env.Store.Plan(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if err := p.CheckContiguous(); err != nil {
		t.Fatalf("plan not contiguous: %v", err)
	}
	return p.TaskIDs()
}

func TestAddRemoveKeepsPlanContiguous(t *testing.T) {
	env := newTestEnv(t, "A", "B", "C", "D")
	for _, id := range []string{"A", "B", "C", "D"} {
		if err := env.Store.AddTask(env.Ctx, "proj-1", id, "tester"); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	if err := env.Store.RemoveTask(env.Ctx, "proj-1", "B", "tester"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got, want := planOrder(t, env), []string{"A", "C", "D"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	pos, err := env.Store.Position(env.Ctx, "proj-1", "D")
	if err != nil || pos != 3 {
		t.Fatalf("expected D at 3, got %d (%v)", pos, err)
	}
}

func TestAddDuplicateIsConflict(t *testing.T) {
	env := newTestEnv(t, "A")
	if err := env.Store.AddTask(env.Ctx, "proj-1", "A", "tester"); err != nil {
		t.Fatal(err)
	}
	err := env.Store.AddTask(env.Ctx, "proj-1", "A", "tester")
	if !errors.Is(err, planstore.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := env.Store.AddTask(env.Ctx, "proj-1", "missing", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReorderRequiresFullPermutation(t *testing.T) {
	env := newTestEnv(t, "A", "B", "C")
	for _, id := range []string{"A", "B", "C"} {
		if err := env.Store.AddTask(env.Ctx, "proj-1", id, "tester"); err != nil {
			t.Fatal(err)
		}
	}
	partial := []domain.TaskSequence{{TaskID: "A", SequenceOrder: 1}}
	if err := env.Store.Reorder(env.Ctx, "proj-1", partial, "tester"); !errors.Is(err, planstore.ErrInvalid) {
		t.Fatalf("expected invalid for partial reorder, got %v", err)
	}
	gap := []domain.TaskSequence{{TaskID: "A", SequenceOrder: 1}, {TaskID: "B", SequenceOrder: 3}, {TaskID: "C", SequenceOrder: 3}}
	if err := env.Store.Reorder(env.Ctx, "proj-1", gap, "tester"); !errors.Is(err, planstore.ErrInvalid) {
		t.Fatalf("expected invalid for duplicate order, got %v", err)
	}
	full := []domain.TaskSequence{{TaskID: "C", SequenceOrder: 1}, {TaskID: "A", SequenceOrder: 2}, {TaskID: "B", SequenceOrder: 3}}
	if err := env.Store.Reorder(env.Ctx, "proj-1", full, "tester"); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if got, want := planOrder(t, env), []string{"C", "A", "B"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestMoveTaskClampsPosition(t *testing.T) {
	env := newTestEnv(t, "A", "B", "C")
	for _, id := range []string{"A", "B", "C"} {
		if err := env.Store.AddTask(env.Ctx, "proj-1", id, "tester"); err != nil {
			t.Fatal(err)
		}
	}
	if err := env.Store.MoveTask(env.Ctx, "proj-1", "A", 99, "tester"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got, want := planOrder(t, env), []string{"B", "C", "A"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if err := env.Store.MoveTask(env.Ctx, "proj-1", "C", 0, "tester"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got, want := planOrder(t, env), []string{"C", "B", "A"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if err := env.Store.MoveTask(env.Ctx, "proj-1", "nope", 1, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBatchReportsPartialFailure(t *testing.T) {
	env := newTestEnv(t, "a", "b", "c")
	if err := env.Store.AddTask(env.Ctx, "proj-1", "b", "tester"); err != nil {
		t.Fatal(err)
	}
	res, err := env.Store.AddBatch(env.Ctx, "proj-1", []string{"a", "b", "c"}, "tester")
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	want := domain.BatchResult{TotalCount: 3, SuccessCount: 2, FailedCount: 1, Errors: []string{"b: duplicate"}}
	if !reflect.DeepEqual(res, want) {
		t.Fatalf("expected %+v, got %+v", want, res)
	}
	res, err = env.Store.RemoveBatch(env.Ctx, "proj-1", []string{"a", "zzz"}, "tester")
	if err != nil {
		t.Fatalf("remove batch: %v", err)
	}
	if res.SuccessCount != 1 || res.FailedCount != 1 {
		t.Fatalf("unexpected remove batch result %+v", res)
	}
	if got, want := planOrder(t, env), []string{"b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestStatsCountPlannedTasksOnly(t *testing.T) {
	env := newTestEnv(t, "A", "B")
	if _, err := env.Store.CreateTask(env.Ctx, planstore.TaskCreateOptions{ID: "bug", ProjectID: "proj-1", Title: "bug", Type: "bug", Priority: "high"}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"A", "bug"} {
		if err := env.Store.AddTask(env.Ctx, "proj-1", id, "tester"); err != nil {
			t.Fatal(err)
		}
	}
	stats, err := env.Store.Stats(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalTasks != 2 || stats.ByType["bug"] != 1 || stats.ByType["feature"] != 1 || stats.ByPriority["high"] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	in, err := env.Store.IsInPlan(env.Ctx, "proj-1", "B")
	if err != nil || in {
		t.Fatalf("expected B not in plan, got %v (%v)", in, err)
	}
}

func TestTaskNumbersArePerProject(t *testing.T) {
	env := newTestEnv(t, "A", "B")
	if _, err := env.Store.CreateProject(env.Ctx, "proj-2", "", "", "tester"); err != nil {
		t.Fatal(err)
	}
	task, err := env.Store.CreateTask(env.Ctx, planstore.TaskCreateOptions{ProjectID: "proj-2", Title: "first"})
	if err != nil {
		t.Fatal(err)
	}
	if task.Number != 1 {
		t.Fatalf("expected number 1 in new project, got %d", task.Number)
	}
	if _, err := env.Store.CreateTask(env.Ctx, planstore.TaskCreateOptions{ProjectID: "proj-1", Title: "x", Priority: "urgent"}); !errors.Is(err, planstore.ErrInvalid) {
		t.Fatalf("expected invalid priority, got %v", err)
	}
}
