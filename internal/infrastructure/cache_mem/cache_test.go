package cache_mem

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davarch/pipeline-lineage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemo_ConcurrentCallersShareOneFetch(t *testing.T) {
	m := NewMemo[string]("test")
	var calls atomic.Int32
	release := make(chan struct{})

	fetch := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "value", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := m.GetOrFetch(context.Background(), "org|project", fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, "value", v)
	}
	assert.Equal(t, 1, m.Len())
}

func TestMemo_FailedFetchIsNotCached(t *testing.T) {
	m := NewMemo[int]("test")
	var calls int
	boom := errors.New("boom")

	fetch := func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 7, nil
	}

	_, err := m.GetOrFetch(context.Background(), "k", fetch)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Len())

	v, err := m.GetOrFetch(context.Background(), "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = m.GetOrFetch(context.Background(), "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, calls)
}

func TestMemo_CancelledOwnerDoesNotPoisonWaiters(t *testing.T) {
	m := NewMemo[string]("test")
	var calls atomic.Int32
	started := make(chan struct{})

	fetch := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	}

	ownerCtx, cancel := context.WithCancel(context.Background())
	ownerErr := make(chan error, 1)
	go func() {
		_, err := m.GetOrFetch(ownerCtx, "k", fetch)
		ownerErr <- err
	}()
	<-started

	waiter := make(chan string, 1)
	go func() {
		v, err := m.GetOrFetch(context.Background(), "k", fetch)
		assert.NoError(t, err)
		waiter <- v
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-ownerErr, context.Canceled)
	assert.Equal(t, "ok", <-waiter)
}

func TestFetcher_ListingFetchedOncePerProject(t *testing.T) {
	mock := &domain.MockFetcher{
		Pipelines: []domain.PipelineDefinition{
			{ID: "1", Name: "a", Project: domain.ProjectRef{ID: "p1", Name: "ProjectA"}},
			{ID: "2", Name: "b", Project: domain.ProjectRef{ID: "p2", Name: "ProjectB"}},
		},
		Delay: 5 * time.Millisecond,
	}
	f := New(mock)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ps, err := f.ListPipelines(context.Background(), "org", "ProjectA")
			assert.NoError(t, err)
			assert.Len(t, ps, 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, mock.Calls("ListPipelines"))

	_, err := f.ListPipelines(context.Background(), "ORG", "projecta")
	require.NoError(t, err)
	assert.Equal(t, 1, mock.Calls("ListPipelines"))

	_, err = f.ListPipelines(context.Background(), "org", "ProjectB")
	require.NoError(t, err)
	assert.Equal(t, 2, mock.Calls("ListPipelines"))
}

func TestFetcher_AbsenceIsCached(t *testing.T) {
	mock := &domain.MockFetcher{}
	f := New(mock)

	for i := 0; i < 3; i++ {
		p, err := f.GetPipelineDefinition(context.Background(), "org", "p", "404")
		require.NoError(t, err)
		assert.Nil(t, p)

		y, err := f.GetRenderedYaml(context.Background(), "org", "p", "404")
		require.NoError(t, err)
		assert.Empty(t, y)
	}
	assert.Equal(t, 1, mock.Calls("GetPipelineDefinition"))
	assert.Equal(t, 1, mock.Calls("GetRenderedYaml"))
}

func TestMemo_WaiterOutlivesRepeatedOwnerCancellations(t *testing.T) {
	m := NewMemo[string]("test")
	type doomedKey struct{}

	fetch := func(ctx context.Context) (string, error) {
		if ctx.Value(doomedKey{}) != nil {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	}

	stop := make(chan struct{})
	var owners sync.WaitGroup
	for i := 0; i < 8; i++ {
		owners.Add(1)
		go func() {
			defer owners.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				ctx, cancel := context.WithTimeout(context.WithValue(context.Background(), doomedKey{}, true), time.Millisecond)
				_, _ = m.GetOrFetch(ctx, "k", fetch)
				cancel()
			}
		}()
	}

	for i := 0; i < 20; i++ {
		v, err := m.GetOrFetch(context.Background(), "k", fetch)
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
	}
	close(stop)
	owners.Wait()
}

func TestMemo_OwnContextErrorIsReturned(t *testing.T) {
	m := NewMemo[string]("test")
	var calls atomic.Int32

	_, err := m.GetOrFetch(context.Background(), "k", func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", context.DeadlineExceeded
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetcher_ProjectByNameAndIDSharesEntries(t *testing.T) {
	projB := domain.ProjectRef{ID: "pb", Name: "ProjectB"}
	mock := &domain.MockFetcher{
		Pipelines: []domain.PipelineDefinition{
			{ID: "7", Name: "pipeline-c", Project: projB},
		},
		Repositories: []domain.RepositoryDefinition{{ID: "r2", Name: "Repo2", Project: projB}},
	}
	f := New(mock)
	ctx := context.Background()

	for _, project := range []string{"ProjectB", "pb", "PB", "projectb"} {
		ps, err := f.ListPipelines(ctx, "org", project)
		require.NoError(t, err)
		assert.Len(t, ps, 1)

		p, err := f.GetPipelineDefinition(ctx, "org", project, "7")
		require.NoError(t, err)
		require.NotNil(t, p)

		r, err := f.GetRepository(ctx, "org", project, "Repo2")
		require.NoError(t, err)
		require.NotNil(t, r)
	}

	assert.Equal(t, 1, mock.Calls("ListPipelines"))
	assert.Equal(t, 1, mock.Calls("GetPipelineDefinition"))
	assert.Equal(t, 1, mock.Calls("GetRepository"))
	// the name lookup teaches the id; "pb" and its spellings need no lookup
	assert.Equal(t, 1, mock.Calls("GetProject"))
}

func TestFetcher_UnknownProjectKeepsItsName(t *testing.T) {
	mock := &domain.MockFetcher{}
	f := New(mock)

	for i := 0; i < 2; i++ {
		ps, err := f.ListPipelines(context.Background(), "org", "Ghost")
		require.NoError(t, err)
		assert.Empty(t, ps)
	}
	assert.Equal(t, 1, mock.Calls("ListPipelines"))
	assert.Equal(t, 1, mock.Calls("GetProject"))
}

func TestFetcher_TaskGroupsKeyedByVersion(t *testing.T) {
	mock := &domain.MockFetcher{
		TaskGroups: []domain.TaskGroup{
			{ID: "tg", Version: "1.0.0", Name: "v1"},
			{ID: "tg", Version: "2.3.0", Name: "v2"},
		},
	}
	f := New(mock)

	g, err := f.GetTaskGroup(context.Background(), "org", "p", "tg", "2.*")
	require.NoError(t, err)
	assert.Equal(t, "v2", g.Name)

	g, err = f.GetTaskGroup(context.Background(), "org", "p", "tg", "1.*")
	require.NoError(t, err)
	assert.Equal(t, "v1", g.Name)
	assert.Equal(t, 2, mock.Calls("GetTaskGroup"))
}
