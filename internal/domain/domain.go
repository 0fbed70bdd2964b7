package domain

import "fmt"

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Task struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Status    string `json:"status" enum:"planned,in_progress,review,done,rejected,canceled"`
	Priority  string `json:"priority" enum:"low,medium,high,critical"`
	Type      string `json:"type" enum:"feature,bug,technical,docs,chore"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// TaskSnapshot is the display copy of a task taken when the plan was fetched.
// It is replaced as a whole by the next fetch.
type TaskSnapshot struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	Type     string `json:"type"`
}

type PlanItem struct {
	ID            string       `json:"id"`
	TaskID        string       `json:"task_id"`
	SequenceOrder int          `json:"sequence_order"`
	Task          TaskSnapshot `json:"task"`
}

// Plan is the ordered list of task references attached to one project.
// Items[i].SequenceOrder == i+1 for every loaded plan.
type Plan struct {
	ProjectID string     `json:"project_id"`
	Items     []PlanItem `json:"items"`
}

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	items := make([]PlanItem, len(p.Items))
	copy(items, p.Items)
	return Plan{ProjectID: p.ProjectID, Items: items}
}

// TaskIDs returns the task ids in array order.
func (p Plan) TaskIDs() []string {
	ids := make([]string, len(p.Items))
	for i, it := range p.Items {
		ids[i] = it.TaskID
	}
	return ids
}

// IndexOf returns the array index of taskID, or -1.
func (p Plan) IndexOf(taskID string) int {
	for i, it := range p.Items {
		if it.TaskID == taskID {
			return i
		}
	}
	return -1
}

// CheckContiguous reports the first item whose sequence order does not match
// its array position.
func (p Plan) CheckContiguous() error {
	for i, it := range p.Items {
		if it.SequenceOrder != i+1 {
			return fmt.Errorf("plan %s: item %s at index %d has sequence_order %d", p.ProjectID, it.TaskID, i, it.SequenceOrder)
		}
	}
	return nil
}

// Sequences serializes the plan order for a bulk reorder.
func (p Plan) Sequences() []TaskSequence {
	seqs := make([]TaskSequence, len(p.Items))
	for i, it := range p.Items {
		seqs[i] = TaskSequence{TaskID: it.TaskID, SequenceOrder: it.SequenceOrder}
	}
	return seqs
}

type PlanStats struct {
	TotalTasks int            `json:"total_tasks"`
	ByStatus   map[string]int `json:"by_status"`
	ByPriority map[string]int `json:"by_priority"`
	ByType     map[string]int `json:"by_type"`
}

type TaskSequence struct {
	TaskID        string `json:"taskId"`
	SequenceOrder int    `json:"sequenceOrder"`
}

// BatchResult describes a non-atomic batch. Failed items are reported here,
// not as an error.
type BatchResult struct {
	TotalCount   int      `json:"total_tasks"`
	SuccessCount int      `json:"success_count"`
	FailedCount  int      `json:"failed_count"`
	Errors       []string `json:"errors,omitempty"`
}

// Partial reports whether some but not necessarily all items failed.
func (b BatchResult) Partial() bool {
	return b.FailedCount > 0
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
