package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/migrate"
	"planline/internal/planstore"
	"planline/internal/repo"
)

func TestWebhookDispatcherDeliversMatchingEvents(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := planstore.New(conn)
	if _, err := store.CreateProject(ctx, "p1", "", "", "tester"); err != nil {
		t.Fatalf("create project: %v", err)
	}

	var mu sync.Mutex
	var got []string
	var secret string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			t.Errorf("unmarshal webhook body: %v", err)
		}
		mu.Lock()
		got = append(got, r.Header.Get("X-Planline-Event")+"@"+evt.ProjectID)
		secret = r.Header.Get("X-Planline-Secret")
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	d := NewWebhookDispatcher(store.Repo, []config.WebhookConfig{{URL: hook.URL, Events: []string{"plan.*"}, Secret: "s3cret"}}, log.New(io.Discard, "", 0))
	if d == nil {
		t.Fatalf("expected dispatcher for enabled hook")
	}
	// Events before the first round are skipped.
	d.DispatchAll(ctx)

	if _, err := store.CreateTask(ctx, planstore.TaskCreateOptions{ID: "a", ProjectID: "p1", Title: "A"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := store.AddTask(ctx, "p1", "a", "tester"); err != nil {
		t.Fatalf("add task: %v", err)
	}
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "plan.task.added@p1" {
		t.Fatalf("unexpected deliveries %v", got)
	}
	if secret != "s3cret" {
		t.Fatalf("expected secret header, got %q", secret)
	}
}

func TestWebhookDispatcherDisabled(t *testing.T) {
	off := false
	if d := NewWebhookDispatcher(repo.Repo{}, []config.WebhookConfig{{URL: "http://x", Enabled: &off}}, nil); d != nil {
		t.Fatalf("expected no dispatcher when every hook is disabled")
	}
}

func TestEventFilter(t *testing.T) {
	f := newEventFilter([]string{"plan.*", "task.created"})
	for evt, want := range map[string]bool{
		"plan.reordered":    true,
		"plan.task.added":   true,
		"task.created":      true,
		"project.created":   false,
		"planning.reviewed": false,
	} {
		if f.match(evt) != want {
			t.Fatalf("match(%s) = %v, want %v", evt, !want, want)
		}
	}
	if !newEventFilter(nil).match("anything") {
		t.Fatalf("empty filter should match everything")
	}
}
