package events

import (
	"context"
	"testing"
	"time"

	"planline/internal/db"
	"planline/internal/migrate"
)

func TestAppendDefaultsActorAndPayload(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	w := Writer{Now: func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }}
	if err := w.Append(ctx, conn, PlanReordered, "", "plan", "", "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	var ts, actor, payload string
	var project, entity *string
	row := conn.QueryRowContext(ctx, `SELECT ts, project_id, entity_id, actor_id, payload_json FROM events`)
	if err := row.Scan(&ts, &project, &entity, &actor, &payload); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if ts != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected ts %q", ts)
	}
	if project != nil || entity != nil {
		t.Fatalf("expected NULL project and entity, got %v %v", project, entity)
	}
	if actor != "anonymous" || payload != "{}" {
		t.Fatalf("unexpected actor %q payload %q", actor, payload)
	}
}
