package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"planline/internal/domain"
	"planline/internal/planstore"
	"planline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Store    planstore.Store
	BasePath string
	Logger   *log.Logger
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task t-1 in plan p-1: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type output[T any] struct {
	Body T
}

type projectPath struct {
	ProjectID string `path:"project_id"`
	ActorID   string `header:"X-Actor-Id"`
}

type planTaskPath struct {
	ProjectID string `path:"project_id"`
	TaskID    string `path:"task_id"`
	ActorID   string `header:"X-Actor-Id"`
}

// New returns an HTTP handler exposing the plan API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Store.DB == nil {
		return nil, errors.New("server: store is not configured")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		// request validation failures are reported as bad_request
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(cfg.logger()))
	hcfg := huma.DefaultConfig("Planline API", "0.2.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := handlers{store: cfg.Store, log: cfg.logger()}
	registerDocs(router, basePath)
	registerHealth(group)
	h.registerProjects(group)
	h.registerTasks(group)
	h.registerPlan(group)
	h.registerPlanMembership(group)
	h.registerPlanOrdering(group)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

type handlers struct {
	store planstore.Store
	log   *log.Logger
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body:   apiErrorBody{Code: code, Message: message, Details: details},
	}
}

func (h handlers) handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repo.ErrProjectNotFound):
		return newAPIError(http.StatusNotFound, domain.CodeProjectNotFound, err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, planstore.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, planstore.ErrInvalid):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		h.log.Printf("server: internal error: %v", err)
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func requestLogger(l *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= 500 {
				l.Printf("server: %s %s -> %d", r.Method, r.URL.Path, rec.status)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			if _, ok := op.Responses["default"]; ok {
				continue
			}
			op.Responses["default"] = &huma.Response{Description: "Error envelope {error:{code,message,details}}"}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Planline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*output[map[string]string], error) {
		return &output[map[string]string]{Body: map[string]string{"status": "ok"}}, nil
	})
}

func (h handlers) registerProjects(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActorID string `header:"X-Actor-Id"`
		Body    CreateProjectRequest
	}) (*output[domain.Project], error) {
		p, err := h.store.CreateProject(ctx, input.Body.ID, input.Body.Name, input.Body.Description, input.ActorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &output[domain.Project]{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*output[[]domain.Project], error) {
		items, err := h.store.Repo.ListProjects(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &output[[]domain.Project]{Body: items}, nil
	})
}

func (h handlers) registerTasks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ActorID   string `header:"X-Actor-Id"`
		Body      CreateTaskRequest
	}) (*output[domain.Task], error) {
		t, err := h.store.CreateTask(ctx, planstore.TaskCreateOptions{
			ID:        input.Body.ID,
			ProjectID: input.ProjectID,
			Title:     input.Body.Title,
			Status:    input.Body.Status,
			Priority:  input.Body.Priority,
			Type:      input.Body.Type,
			ActorID:   input.ActorID,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &output[domain.Task]{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Status    string `query:"status"`
	}) (*output[TasksResponse], error) {
		if _, err := h.store.Repo.GetProject(ctx, nil, input.ProjectID); err != nil {
			return nil, h.handleError(err)
		}
		tasks, err := h.store.Repo.ListTasks(ctx, repo.TaskFilters{ProjectID: input.ProjectID, Status: input.Status})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &output[TasksResponse]{Body: TasksResponse{Items: tasks}}, nil
	})
}

func (h handlers) registerPlan(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-plan",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/plan",
		Summary:     "Get the ordered development plan",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*output[domain.Plan], error) {
		p, err := h.store.Plan(ctx, input.ProjectID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &output[domain.Plan]{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-plan-stats",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/plan/stats",
		Summary:     "Plan statistics",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*output[domain.PlanStats], error) {
		stats, err := h.store.Stats(ctx, input.ProjectID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &output[domain.PlanStats]{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-plan-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/plan/events",
		Summary:     "Recent plan events",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit" default:"20" minimum:"1" maximum:"200"`
	}) (*output[EventsResponse], error) {
		if _, err := h.store.Repo.GetProject(ctx, nil, input.ProjectID); err != nil {
			return nil, h.handleError(err)
		}
		items, err := h.store.Repo.LatestEvents(ctx, input.ProjectID, input.Limit)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &output[EventsResponse]{Body: EventsResponse{Items: items}}, nil
	})
}

func (h handlers) registerPlanMembership(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-plan-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/plan/tasks/{task_id}",
		Summary:       "Add a task to the end of the plan",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *planTaskPath) (*struct{}, error) {
		if err := h.store.AddTask(ctx, input.ProjectID, input.TaskID, input.ActorID); err != nil {
			return nil, h.handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-plan-task",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/plan/tasks/{task_id}",
		Summary:       "Remove a task from the plan",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *planTaskPath) (*struct{}, error) {
		if err := h.store.RemoveTask(ctx, input.ProjectID, input.TaskID, input.ActorID); err != nil {
			return nil, h.handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-plan-tasks-batch",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/plan/tasks/batch",
		Summary:     "Add many tasks; failures are reported per task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ActorID   string `header:"X-Actor-Id"`
		Body      BatchRequest
	}) (*output[domain.BatchResult], error) {
		res, err := h.store.AddBatch(ctx, input.ProjectID, input.Body.TaskIDs, input.ActorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &output[domain.BatchResult]{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-plan-tasks-batch",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/plan/tasks/batch",
		Summary:     "Remove many tasks; failures are reported per task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ActorID   string `header:"X-Actor-Id"`
		Body      BatchRequest
	}) (*output[domain.BatchResult], error) {
		res, err := h.store.RemoveBatch(ctx, input.ProjectID, input.Body.TaskIDs, input.ActorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &output[domain.BatchResult]{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-plan-task",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/plan/tasks/{task_id}/check",
		Summary:     "Whether a task is in the plan",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *planTaskPath) (*output[CheckResponse], error) {
		in, err := h.store.IsInPlan(ctx, input.ProjectID, input.TaskID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &output[CheckResponse]{Body: CheckResponse{TaskID: input.TaskID, InPlan: in}}, nil
	})
}

func (h handlers) registerPlanOrdering(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "reorder-plan",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/plan/reorder",
		Summary:     "Replace the whole plan ordering",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ActorID   string `header:"X-Actor-Id"`
		Body      ReorderRequest
	}) (*output[map[string]string], error) {
		if err := h.store.Reorder(ctx, input.ProjectID, input.Body.TaskSequences, input.ActorID); err != nil {
			return nil, h.handleError(err)
		}
		return &output[map[string]string]{Body: map[string]string{"status": "ok"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-plan-task-position",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/plan/tasks/{task_id}/position",
		Summary:     "Move one task to an absolute position",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TaskID    string `path:"task_id"`
		ActorID   string `header:"X-Actor-Id"`
		Body      PositionRequest
	}) (*output[PositionResponse], error) {
		if err := h.store.MoveTask(ctx, input.ProjectID, input.TaskID, input.Body.Position, input.ActorID); err != nil {
			return nil, h.handleError(err)
		}
		pos, err := h.store.Position(ctx, input.ProjectID, input.TaskID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &output[PositionResponse]{Body: PositionResponse{TaskID: input.TaskID, Position: pos}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-plan-task-position",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/plan/tasks/{task_id}/position",
		Summary:     "Current position of a task in the plan",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *planTaskPath) (*output[PositionResponse], error) {
		pos, err := h.store.Position(ctx, input.ProjectID, input.TaskID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &output[PositionResponse]{Body: PositionResponse{TaskID: input.TaskID, Position: pos}}, nil
	})
}
