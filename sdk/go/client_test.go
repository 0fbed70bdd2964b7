package plansdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/migrate"
	"planline/internal/planstore"
	"planline/internal/server"
	plansdk "planline/sdk/go"
)

func newClient(t *testing.T) *plansdk.Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	handler, err := server.New(server.Config{Store: planstore.New(conn)})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := plansdk.New(srv.URL)
	c.ActorID = "sdk-test"
	return c
}

func TestClientPlanRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	_, err := c.CreateProject(ctx, "p1", "Project", "")
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		task, err := c.CreateTask(ctx, "p1", plansdk.TaskInput{ID: id, Title: "Task " + id})
		require.NoError(t, err)
		assert.Equal(t, "planned", task.Status)
	}
	tasks, err := c.ListTasks(ctx, "p1", "")
	require.NoError(t, err)
	assert.Len(t, tasks, 3)

	require.NoError(t, c.AddTask(ctx, "p1", "a"))
	res, err := c.AddBatch(ctx, "p1", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, domain.BatchResult{TotalCount: 3, SuccessCount: 2, FailedCount: 1, Errors: []string{"a: duplicate"}}, res)

	plan, err := c.FetchPlan(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, plan.TaskIDs())
	assert.Equal(t, "Task b", plan.Items[1].Task.Title)

	require.NoError(t, c.Reorder(ctx, "p1", []domain.TaskSequence{
		{TaskID: "b", SequenceOrder: 1},
		{TaskID: "c", SequenceOrder: 2},
		{TaskID: "a", SequenceOrder: 3},
	}))
	pos, err := c.Position(ctx, "p1", "a")
	require.NoError(t, err)
	assert.Equal(t, 3, pos)

	require.NoError(t, c.RepositionOne(ctx, "p1", "a", 1))
	plan, err = c.FetchPlan(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, plan.TaskIDs())
	require.NoError(t, plan.CheckContiguous())

	require.NoError(t, c.RemoveTask(ctx, "p1", "b"))
	in, err := c.IsInPlan(ctx, "p1", "b")
	require.NoError(t, err)
	assert.False(t, in)

	res, err = c.RemoveBatch(ctx, "p1", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, res.FailedCount)

	stats, err := c.FetchStats(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalTasks)

	evts, err := c.PlanEvents(ctx, "p1", 5)
	require.NoError(t, err)
	require.NotEmpty(t, evts)
	assert.Equal(t, "sdk-test", evts[0].ActorID)
}

func TestClientErrorsAreRemoteErrors(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	_, err := c.CreateProject(ctx, "p1", "", "")
	require.NoError(t, err)

	err = c.RepositionOne(ctx, "p1", "ghost", 1)
	var re *domain.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusNotFound, re.StatusCode)
	assert.Equal(t, "4xx", re.StatusClass)
	assert.Contains(t, re.Message, "ghost")
	assert.True(t, domain.IsRemoteNotFound(err))

	assert.Equal(t, "not_found", re.Code)

	err = c.RepositionOne(ctx, "ghost-project", "a", 1)
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusNotFound, re.StatusCode)
	assert.Equal(t, domain.CodeProjectNotFound, re.Code)
	assert.False(t, domain.IsTaskNotFound(err))

	_, err = c.CreateProject(ctx, "p1", "", "")
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusConflict, re.StatusCode)
}

func TestClientIsSafeForConcurrentUse(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	_, err := c.CreateProject(ctx, "p1", "", "")
	require.NoError(t, err)
	httpClient := c.HTTPClient
	require.NotNil(t, httpClient)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.FetchPlan(ctx, "p1")
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Same(t, httpClient, c.HTTPClient)
}

func TestClientTimeoutIsANetworkFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := plansdk.New(srv.URL)
	c.Timeout = 50 * time.Millisecond
	_, err := c.FetchPlan(context.Background(), "p1")
	var re *domain.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "network", re.StatusClass)
}

func TestClientClassifiesServerAndNetworkFailures(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	c := plansdk.New(srv.URL)
	_, err := c.FetchPlan(ctx, "p1")
	var re *domain.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "5xx", re.StatusClass)
	assert.Equal(t, "boom", re.Message)

	srv.Close()
	_, err = c.FetchStats(ctx, "p1")
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 0, re.StatusCode)
	assert.Equal(t, "network", re.StatusClass)
}
