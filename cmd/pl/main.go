package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"planline/internal/app"
	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/migrate"
	"planline/internal/planstore"
	"planline/internal/server"
	"planline/internal/tui"
	plansdk "planline/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "Planline CLI",
	Long: `Planline keeps an ordered development plan per project.
- Plan service: 'pl serve' runs the HTTP API over the workspace database.
- Plan: the ordered list of tasks a project intends to work on; positions are 1..N.
- Edit: 'pl plan edit' opens the interactive list; reorder locally, then save or discard.
- Event log: every plan change is recorded, view with 'pl plan log'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", app.Describe(err))
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PLANLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	rootCmd.PersistentFlags().String("base-url", "", "plan service URL (overrides config client.base_url)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag("base-url", rootCmd.PersistentFlags().Lookup("base-url"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(planCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the workspace and a default planline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("%s already exists\n", path)
				return nil
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the plan service HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if _, err := migrate.Migrate(cmd.Context(), conn); err != nil {
				return err
			}
			logger := log.New(os.Stderr, "planline: ", log.LstdFlags)
			store := planstore.New(conn)
			handler, err := server.New(server.Config{Store: store, BasePath: basePath, Logger: logger})
			if err != nil {
				return err
			}
			if hooks := server.NewWebhookDispatcher(store.Repo, cfg.Webhooks, logger); hooks != nil {
				go hooks.Run(cmd.Context())
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Planline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config server.base_path)")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *app.Context) error {
				items, err := c.Client.ListProjects(cmd.Context())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Description", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Description, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var id, name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withClient(func(c *app.Context) error {
				p, err := c.Client.CreateProject(cmd.Context(), id, name, desc)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Created project %s\n", p.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "project name (defaults to id)")
	cmd.Flags().StringVar(&desc, "description", "", "project description")
	return cmd
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage tasks"}
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskListCmd())
	return t
}

func taskCreateCmd() *cobra.Command {
	var in plansdk.TaskInput
	var addToPlan bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(c *app.Context, projectID string) error {
				task, err := c.Client.CreateTask(cmd.Context(), projectID, in)
				if err != nil {
					return err
				}
				if addToPlan {
					if err := c.Client.AddTask(cmd.Context(), projectID, task.ID); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(task)
				}
				fmt.Printf("Created task %s (#%d)\n", task.ID, task.Number)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.ID, "id", "", "task id (generated when empty)")
	cmd.Flags().StringVar(&in.Title, "title", "", "task title")
	cmd.Flags().StringVar(&in.Status, "status", "", "status (planned, in_progress, review, done, rejected, canceled)")
	cmd.Flags().StringVar(&in.Priority, "priority", "", "priority (low, medium, high, critical)")
	cmd.Flags().StringVar(&in.Type, "type", "", "type (feature, bug, technical, docs, chore)")
	cmd.Flags().BoolVar(&addToPlan, "plan", false, "append the new task to the plan")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(c *app.Context, projectID string) error {
				items, err := c.Client.ListTasks(cmd.Context(), projectID, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"No.", "ID", "Title", "Status", "Priority", "Type"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.Number, t.ID, t.Title, t.Status, t.Priority, t.Type})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func planCmd() *cobra.Command {
	p := &cobra.Command{Use: "plan", Short: "View and edit the development plan"}
	p.AddCommand(planShowCmd())
	p.AddCommand(planStatsCmd())
	p.AddCommand(planAddCmd())
	p.AddCommand(planRemoveCmd())
	p.AddCommand(planMoveCmd())
	p.AddCommand(planReorderCmd())
	p.AddCommand(planCheckCmd())
	p.AddCommand(planPositionCmd())
	p.AddCommand(planLogCmd())
	p.AddCommand(planEditCmd())
	return p
}

func planShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the plan in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlan(cmd.Context(), func(c *app.Context) error {
				return printPlan(c)
			})
		},
	}
}

func planStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show plan statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(c *app.Context, projectID string) error {
				stats, err := c.Client.FetchStats(cmd.Context(), projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Status", "Tasks"})
				for status, n := range stats.ByStatus {
					tw.AppendRow(table.Row{status, n})
				}
				tw.SortBy([]table.SortBy{{Name: "Status", Mode: table.Asc}})
				tw.AppendFooter(table.Row{"Total", stats.TotalTasks})
				tw.Render()
				return nil
			})
		},
	}
}

func planAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <task-id>...",
		Short: "Append tasks to the end of the plan",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlan(cmd.Context(), func(c *app.Context) error {
				ids := tui.SplitIDs(strings.Join(args, " "))
				if len(ids) == 1 {
					if err := c.Engine.AddTask(cmd.Context(), ids[0]); err != nil {
						return err
					}
					return printPlan(c)
				}
				res, err := c.Engine.AddMany(cmd.Context(), ids)
				if err != nil {
					return err
				}
				return printBatch(c, res)
			})
		},
	}
}

func planRemoveCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "remove <task-id>...",
		Short: "Remove tasks from the plan",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := tui.SplitIDs(strings.Join(args, " "))
			if !yes && isInteractive() {
				ok := false
				title := fmt.Sprintf("Remove %s from the plan?", strings.Join(ids, ", "))
				if err := huh.NewConfirm().Title(title).Affirmative("Yes").Negative("No").Value(&ok).Run(); err != nil {
					return err
				}
				if !ok {
					fmt.Println("Nothing removed")
					return nil
				}
			}
			return withPlan(cmd.Context(), func(c *app.Context) error {
				if len(ids) == 1 {
					if err := c.Engine.RemoveTask(cmd.Context(), ids[0]); err != nil {
						return err
					}
					return printPlan(c)
				}
				res, err := c.Engine.RemoveMany(cmd.Context(), ids)
				if err != nil {
					return err
				}
				return printBatch(c, res)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func planMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <task-id> <position>",
		Short: "Move one task to a 1-based position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.Atoi(args[1])
			if err != nil || pos < 1 {
				return fmt.Errorf("position must be a positive integer")
			}
			return withPlan(cmd.Context(), func(c *app.Context) error {
				if err := c.Engine.MoveTaskTo(cmd.Context(), args[0], pos); err != nil {
					return err
				}
				return printPlan(c)
			})
		},
	}
}

func planReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <from> <to>",
		Short: "Move the item at one position to another and save the full order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err1 := strconv.Atoi(args[0])
			to, err2 := strconv.Atoi(args[1])
			if err1 != nil || err2 != nil {
				return fmt.Errorf("positions must be integers")
			}
			return withPlan(cmd.Context(), func(c *app.Context) error {
				if !c.Engine.ApplyLocalReorder(from-1, to-1) {
					return fmt.Errorf("nothing to move: positions must be distinct and within 1..%d", planLen(c))
				}
				if err := c.Engine.Commit(cmd.Context()); err != nil {
					return err
				}
				return printPlan(c)
			})
		},
	}
}

func planCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <task-id>",
		Short: "Report whether a task is in the plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlan(cmd.Context(), func(c *app.Context) error {
				in, err := c.Engine.IsInPlan(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"task_id": args[0], "in_plan": in})
				}
				fmt.Println(in)
				return nil
			})
		},
	}
}

func planPositionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "position <task-id>",
		Short: "Print a task's 1-based plan position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlan(cmd.Context(), func(c *app.Context) error {
				pos, err := c.Engine.Position(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"task_id": args[0], "position": pos})
				}
				fmt.Println(pos)
				return nil
			})
		},
	}
}

func planLogCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent plan events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(c *app.Context, projectID string) error {
				events, err := c.Client.PlanEvents(cmd.Context(), projectID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	return cmd
}

func planEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Edit the plan interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(c *app.Context, projectID string) error {
				if !isInteractive() {
					return fmt.Errorf("plan edit needs an interactive terminal; use plan move/reorder instead")
				}
				// The list owns the terminal; engine logging goes nowhere.
				c.Engine = newQuietEngine(c)
				_, err := tea.NewProgram(tui.New(cmd.Context(), c.Engine, projectID), tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
				return err
			})
		},
	}
}

// --- helpers ---

func openContext() (*app.Context, error) {
	return app.Open(app.Options{
		Workspace: viper.GetString("workspace"),
		BaseURL:   viper.GetString("base-url"),
		ProjectID: viper.GetString("project"),
		ActorID:   viper.GetString("actor-id"),
		Logger:    log.New(os.Stderr, "planline: ", 0),
	})
}

func withClient(fn func(*app.Context) error) error {
	c, err := openContext()
	if err != nil {
		return err
	}
	return fn(c)
}

func withProject(ctx context.Context, fn func(*app.Context, string) error) error {
	return withClient(func(c *app.Context) error {
		projectID, err := c.ResolveProject(ctx)
		if err != nil {
			return err
		}
		return fn(c, projectID)
	})
}

func withPlan(ctx context.Context, fn func(*app.Context) error) error {
	return withClient(func(c *app.Context) error {
		if _, err := c.LoadPlan(ctx); err != nil {
			return err
		}
		return fn(c)
	})
}

func newQuietEngine(c *app.Context) *engine.Engine {
	return engine.New(c.Client, engine.WithLogger(log.New(io.Discard, "", 0)))
}

func planLen(c *app.Context) int {
	plan, _ := c.Engine.Plan()
	return len(plan.Items)
}

func printPlan(c *app.Context) error {
	plan, ok := c.Engine.Plan()
	if !ok {
		return c.Engine.Err()
	}
	if viper.GetBool("json") {
		return printJSON(plan)
	}
	var stats *domain.PlanStats
	if s, ok := c.Engine.Stats(); ok {
		stats = &s
	}
	fmt.Println(tui.RenderTable(plan, stats))
	return nil
}

func printBatch(c *app.Context, res domain.BatchResult) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	fmt.Printf("%d of %d succeeded\n", res.SuccessCount, res.TotalCount)
	for _, e := range res.Errors {
		fmt.Println("  " + e)
	}
	return printPlan(c)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func isInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
