package server

import "planline/internal/domain"

// Request payloads

type CreateProjectRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

type CreateTaskRequest struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title"`
	Status   string `json:"status,omitempty" enum:"planned,in_progress,review,done,rejected,canceled"`
	Priority string `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Type     string `json:"type,omitempty" enum:"feature,bug,technical,docs,chore"`
}

type ReorderRequest struct {
	TaskSequences []domain.TaskSequence `json:"taskSequences"`
}

type PositionRequest struct {
	Position int `json:"position"`
}

type BatchRequest struct {
	TaskIDs []string `json:"task_ids"`
}

// Response payloads

type CheckResponse struct {
	TaskID string `json:"task_id"`
	InPlan bool   `json:"in_plan"`
}

type PositionResponse struct {
	TaskID   string `json:"task_id"`
	Position int    `json:"position"`
}

type EventsResponse struct {
	Items []domain.Event `json:"items"`
}

type TasksResponse struct {
	Items []domain.Task `json:"items"`
}
