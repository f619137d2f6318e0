package azdo_http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davarch/pipeline-lineage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const classicDefinition = `{
  "id": 12,
  "name": "build-a",
  "path": "\\folder2",
  "project": {"id": "p-1", "name": "ProjectA"},
  "process": {
    "type": 1,
    "phases": [{
      "name": "Agent job 1",
      "steps": [{
        "displayName": "Download",
        "enabled": true,
        "task": {"id": "a433f589-fce1-4460-9ee6-44a624aeb1fb", "versionSpec": "0.*", "definitionType": "task"},
        "inputs": {"buildType": "specific", "definition": "34", "project": "p-2"}
      }]
    }]
  },
  "triggers": [
    {"triggerType": "buildCompletion", "definition": {"id": 7, "project": {"id": "p-1"}}},
    {"triggerType": "continuousIntegration"}
  ],
  "repository": {"id": "r-1", "name": "repo-a", "type": "TfsGit", "url": "https://dev.azure.com/org/ProjectA/_git/repo-a"}
}`

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL+"/", "pat", 5*time.Second, 10)
	c.retryMaxElapsed = 2 * time.Second
	return c
}

func TestGetPipelineDefinition_MapsClassicDefinition(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/org/ProjectA/_apis/build/definitions/12", r.URL.Path)
		assert.Equal(t, apiVersion, r.URL.Query().Get("api-version"))
		_, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "pat", pass)
		_, _ = w.Write([]byte(classicDefinition))
	}))

	p, err := c.GetPipelineDefinition(context.Background(), "org", "ProjectA", "12")
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, "12", p.ID)
	assert.Equal(t, domain.ProcessClassic, p.Kind)
	assert.Equal(t, `\folder2`, p.Path)
	assert.Equal(t, "p-1", p.Project.ID)
	require.Len(t, p.Triggers, 2)
	assert.Equal(t, domain.TriggerBuildCompletion, p.Triggers[0].Type)
	assert.Equal(t, "7", p.Triggers[0].Definition.ID)
	require.Len(t, p.Phases, 1)
	require.Len(t, p.Phases[0].Steps, 1)
	assert.Equal(t, "34", p.Phases[0].Steps[0].Inputs["definition"])
	require.NotNil(t, p.Repository)
	assert.Equal(t, domain.RepositoryTypeGit, p.Repository.Type)
}

func TestGetPipelineDefinition_NotFoundIsNil(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	p, err := c.GetPipelineDefinition(context.Background(), "org", "ProjectA", "99")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestGetPipelineDefinition_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(classicDefinition))
	}))

	p, err := c.GetPipelineDefinition(context.Background(), "org", "ProjectA", "12")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetPipelineDefinition_ForbiddenIsPermanent(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := c.GetPipelineDefinition(context.Background(), "org", "ProjectA", "12")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetRenderedYaml(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/org/ProjectA/_apis/pipelines/1/preview":
			assert.Equal(t, http.MethodPost, r.Method)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, true, body["previewRun"])
			_, _ = w.Write([]byte(`{"finalYaml": "steps:\n- checkout: self\n"}`))
		case "/org/ProjectA/_apis/pipelines/2/preview":
			w.WriteHeader(http.StatusBadRequest)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	y, err := c.GetRenderedYaml(context.Background(), "org", "ProjectA", "1")
	require.NoError(t, err)
	assert.Contains(t, y, "checkout: self")

	y, err = c.GetRenderedYaml(context.Background(), "org", "ProjectA", "2")
	require.NoError(t, err)
	assert.Empty(t, y)

	y, err = c.GetRenderedYaml(context.Background(), "org", "ProjectA", "3")
	require.NoError(t, err)
	assert.Empty(t, y)
}

func TestListPipelines_FollowsContinuationToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("includeAllProperties"))
		switch r.URL.Query().Get("continuationToken") {
		case "":
			w.Header().Set("x-ms-continuationtoken", "next")
			_, _ = w.Write([]byte(`{"count":1,"value":[{"id":1,"name":"a","path":"\\","process":{"type":2}}]}`))
		case "next":
			_, _ = w.Write([]byte(`{"count":1,"value":[{"id":2,"name":"b","path":"\\f","process":{"type":1}}]}`))
		}
	}))

	ps, err := c.ListPipelines(context.Background(), "org", "ProjectA")
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, domain.ProcessYaml, ps[0].Kind)
	assert.Equal(t, "2", ps[1].ID)
}

func TestGetRepository(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/org/ProjectB/_apis/git/repositories/Repo2" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id":"r-2","name":"Repo2","remoteUrl":"https://org@dev.azure.com/org/ProjectB/_git/Repo2","project":{"id":"p-2","name":"ProjectB"}}`))
	}))

	r, err := c.GetRepository(context.Background(), "org", "ProjectB", "Repo2")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "r-2", r.ID)
	assert.Equal(t, "ProjectB", r.Project.Name)

	r, err = c.GetRepository(context.Background(), "org", "ProjectB", "missing")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestGetTaskGroup(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":1,"value":[{"id":"tg-1","name":"group","tasks":[
			{"enabled":true,"task":{"id":"61f2a582-95ae-4948-b34d-a1b3c4f6a737","definitionType":"task"},
			 "inputs":{"source":"specific","pipeline":12,"preferTriggeringPipeline":false}}]}]}`))
	}))

	g, err := c.GetTaskGroup(context.Background(), "org", "ProjectA", "tg-1", "")
	require.NoError(t, err)
	require.NotNil(t, g)
	require.Len(t, g.Steps, 1)
	assert.Equal(t, "12", g.Steps[0].Inputs["pipeline"])
	assert.Equal(t, "false", g.Steps[0].Inputs["preferTriggeringPipeline"])
}

func TestGetTaskGroup_SelectsMajorVersion(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":3,"value":[
			{"id":"tg-1","name":"v1","version":{"major":1,"minor":4,"patch":0},"tasks":[]},
			{"id":"tg-1","name":"v2-old","version":{"major":2,"minor":0,"patch":1},"tasks":[]},
			{"id":"tg-1","name":"v2","version":{"major":2,"minor":1,"patch":0},"tasks":[]}]}`))
	}))

	tests := []struct {
		pinned string
		want   string
	}{
		{"1.*", "v1"},
		{"2.*", "v2"},
		{"", "v2"},
		{"*", "v2"},
	}
	for _, tt := range tests {
		t.Run(tt.pinned, func(t *testing.T) {
			g, err := c.GetTaskGroup(context.Background(), "org", "ProjectA", "tg-1", tt.pinned)
			require.NoError(t, err)
			require.NotNil(t, g)
			assert.Equal(t, tt.want, g.Name)
		})
	}

	g, err := c.GetTaskGroup(context.Background(), "org", "ProjectA", "tg-1", "3.*")
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestGetProject(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/org/_apis/projects/ProjectB":
			assert.Equal(t, apiVersion, r.URL.Query().Get("api-version"))
			_, _ = w.Write([]byte(`{"id":"pb","name":"ProjectB","state":"wellFormed"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	p, err := c.GetProject(context.Background(), "org", "ProjectB")
	require.NoError(t, err)
	assert.Equal(t, &domain.ProjectRef{ID: "pb", Name: "ProjectB"}, p)

	p, err = c.GetProject(context.Background(), "org", "Ghost")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestClient_BoundsConcurrentRequests(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL, "pat", 5*time.Second, 2)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetRepository(context.Background(), "org", "p", "r")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, 2)
}
