package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/engine"
	plansdk "planline/sdk/go"
)

// Options are the command-line overrides on top of planline.yml.
type Options struct {
	Workspace string
	BaseURL   string
	ProjectID string
	ActorID   string
	Logger    *log.Logger
}

// Context bundles what a client-side command needs.
type Context struct {
	Config *config.Config
	Client *plansdk.Client
	Engine *engine.Engine
	Logger *log.Logger
}

// Open loads the workspace config and builds the plan client and engine.
func Open(opts Options) (*Context, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	baseURL := cfg.Client.BaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("no plan service configured; set client.base_url or --base-url")
	}
	if opts.ProjectID != "" {
		cfg.Client.Project = opts.ProjectID
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	client := plansdk.New(baseURL)
	client.Timeout = cfg.Timeout()
	client.ActorID = opts.ActorID
	if cfg.Server.BasePath != "" {
		client.BasePath = cfg.Server.BasePath
	}
	return &Context{
		Config: cfg,
		Client: client,
		Engine: engine.New(client, engine.WithLogger(logger)),
		Logger: logger,
	}, nil
}

// ResolveProject picks the active project: the override or configured id
// first, otherwise the only project the service knows.
func (c *Context) ResolveProject(ctx context.Context) (string, error) {
	if id := strings.TrimSpace(c.Config.Client.Project); id != "" {
		return id, nil
	}
	projects, err := c.Client.ListProjects(ctx)
	if err != nil {
		return "", err
	}
	if len(projects) == 1 {
		return projects[0].ID, nil
	}
	return "", fmt.Errorf("project not specified; use --project")
}

// LoadPlan resolves the project and loads its plan into the engine.
func (c *Context) LoadPlan(ctx context.Context) (string, error) {
	projectID, err := c.ResolveProject(ctx)
	if err != nil {
		return "", err
	}
	if err := c.Engine.Load(ctx, projectID); err != nil {
		return projectID, err
	}
	if err := c.Engine.StatsErr(); err != nil {
		c.Logger.Printf("plan stats unavailable: %v", err)
	}
	return projectID, nil
}

// Describe renders an engine or remote error for terminal output.
func Describe(err error) string {
	var nf *domain.NotFoundError
	var re *domain.RemoteError
	switch {
	case errors.As(err, &nf):
		return nf.Error()
	case errors.As(err, &re) && re.StatusClass == "network":
		return "plan service unreachable: " + re.Message
	case errors.As(err, &re):
		return re.Message
	default:
		return err.Error()
	}
}
