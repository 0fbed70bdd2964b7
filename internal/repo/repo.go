package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"planline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ErrProjectNotFound matches ErrNotFound and marks the project itself as missing.
var ErrProjectNotFound = fmt.Errorf("project %w", ErrNotFound)

// DBTX is satisfied by both *sql.DB and *sql.Tx so the same queries run
// inside and outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

func (r Repo) q(tx DBTX) DBTX {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) InsertProject(ctx context.Context, tx DBTX, p domain.Project) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(id,name,description,created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, tx DBTX, id string) (domain.Project, error) {
	var p domain.Project
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,name,COALESCE(description,''),created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,''),created_at FROM projects ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Project{}
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// NextTaskNumber allocates the next human-readable task number for a project.
func (r Repo) NextTaskNumber(ctx context.Context, tx DBTX, projectID string) (int, error) {
	q := r.q(tx)
	if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO project_sequences(project_id,next_seq)
SELECT ?, COALESCE(MAX(number),0)+1 FROM tasks WHERE project_id=?`, projectID, projectID); err != nil {
		return 0, fmt.Errorf("seed task sequence for %s: %w", projectID, err)
	}
	var next int
	if err := q.QueryRowContext(ctx, `UPDATE project_sequences SET next_seq=next_seq+1 WHERE project_id=? RETURNING next_seq-1`, projectID).Scan(&next); err != nil {
		return 0, fmt.Errorf("allocate task number for %s: %w", projectID, err)
	}
	return next, nil
}

func (r Repo) InsertTask(ctx context.Context, tx DBTX, t domain.Task) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(id,project_id,number,title,status,priority,type,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Number, t.Title, t.Status, t.Priority, t.Type, t.CreatedAt, t.UpdatedAt)
	return err
}

const taskColumns = `id,project_id,number,title,status,priority,type,created_at,updated_at`

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Number, &t.Title, &t.Status, &t.Priority, &t.Type, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r Repo) GetTask(ctx context.Context, tx DBTX, id string) (domain.Task, error) {
	t, err := scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, err
}

type TaskFilters struct {
	ProjectID string
	Status    string
	Limit     int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY number"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListPlanItems returns the plan of a project in sequence order, with the
// current task snapshot joined in.
func (r Repo) ListPlanItems(ctx context.Context, tx DBTX, projectID string) ([]domain.PlanItem, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT p.id,p.task_id,p.sequence_order,t.number,t.title,t.status,t.priority,t.type
FROM plan_items p JOIN tasks t ON t.id=p.task_id
WHERE p.project_id=? ORDER BY p.sequence_order, p.added_at, p.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []domain.PlanItem{}
	for rows.Next() {
		var it domain.PlanItem
		if err := rows.Scan(&it.ID, &it.TaskID, &it.SequenceOrder, &it.Task.Number, &it.Task.Title, &it.Task.Status, &it.Task.Priority, &it.Task.Type); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// PlanPosition returns the sequence order of a task in the project's plan.
func (r Repo) PlanPosition(ctx context.Context, tx DBTX, projectID, taskID string) (int, error) {
	var pos int
	err := r.q(tx).QueryRowContext(ctx, `SELECT sequence_order FROM plan_items WHERE project_id=? AND task_id=?`, projectID, taskID).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("task %s in plan %s: %w", taskID, projectID, ErrNotFound)
	}
	return pos, err
}

func (r Repo) CountPlanItems(ctx context.Context, tx DBTX, projectID string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM plan_items WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}

func (r Repo) InsertPlanItem(ctx context.Context, tx DBTX, projectID string, item domain.PlanItem, addedAt string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO plan_items(id,project_id,task_id,sequence_order,added_at) VALUES (?,?,?,?,?)`,
		item.ID, projectID, item.TaskID, item.SequenceOrder, addedAt)
	return err
}

func (r Repo) DeletePlanItem(ctx context.Context, tx DBTX, projectID, taskID string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM plan_items WHERE project_id=? AND task_id=?`, projectID, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s in plan %s: %w", taskID, projectID, ErrNotFound)
	}
	return nil
}

// SetPlanOrder rewrites sequence_order to 1..N following taskIDs.
func (r Repo) SetPlanOrder(ctx context.Context, tx DBTX, projectID string, taskIDs []string) error {
	q := r.q(tx)
	for i, id := range taskIDs {
		if _, err := q.ExecContext(ctx, `UPDATE plan_items SET sequence_order=? WHERE project_id=? AND task_id=?`, i+1, projectID, id); err != nil {
			return fmt.Errorf("set order of %s: %w", id, err)
		}
	}
	return nil
}

// PlanStats aggregates the tasks currently in a project's plan.
func (r Repo) PlanStats(ctx context.Context, projectID string) (domain.PlanStats, error) {
	stats := domain.PlanStats{
		ByStatus:   map[string]int{},
		ByPriority: map[string]int{},
		ByType:     map[string]int{},
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT t.status,t.priority,t.type FROM plan_items p JOIN tasks t ON t.id=p.task_id WHERE p.project_id=?`, projectID)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var status, priority, typ string
		if err := rows.Scan(&status, &priority, &typ); err != nil {
			return stats, err
		}
		stats.TotalTasks++
		stats.ByStatus[status]++
		stats.ByPriority[priority]++
		stats.ByType[typ]++
	}
	return stats, rows.Err()
}

const eventColumns = `id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json`

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents returns the newest events of a project, newest first.
func (r Repo) LatestEvents(ctx context.Context, projectID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE project_id=? ORDER BY id DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter returns events with id > after in ascending order.
func (r Repo) EventsAfter(ctx context.Context, after int64, limit int) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id LIMIT ?`, after, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
