package cache_mem

import (
	"context"
	"strings"
	"sync"

	"github.com/davarch/pipeline-lineage/internal/domain"
)

// Fetcher memoizes a DefinitionFetcher for the lifetime of one scan. Create
// one per scan and drop it when the scan ends.
//
// Project-scoped entries are keyed by project id whichever way the caller
// names the project, so a project reached by name and by id is listed once.
type Fetcher struct {
	next domain.DefinitionFetcher

	projects     *Memo[*domain.ProjectRef]
	definitions  *Memo[*domain.PipelineDefinition]
	renders      *Memo[string]
	listings     *Memo[[]domain.PipelineDefinition]
	repositories *Memo[*domain.RepositoryDefinition]
	taskGroups   *Memo[*domain.TaskGroup]

	mu  sync.RWMutex
	ids map[string]string
}

var _ domain.DefinitionFetcher = (*Fetcher)(nil)

func New(next domain.DefinitionFetcher) *Fetcher {
	return &Fetcher{
		next:         next,
		projects:     NewMemo[*domain.ProjectRef]("project"),
		definitions:  NewMemo[*domain.PipelineDefinition]("definition"),
		renders:      NewMemo[string]("rendered_yaml"),
		listings:     NewMemo[[]domain.PipelineDefinition]("listing"),
		repositories: NewMemo[*domain.RepositoryDefinition]("repository"),
		taskGroups:   NewMemo[*domain.TaskGroup]("task_group"),
		ids:          make(map[string]string),
	}
}

func (f *Fetcher) GetProject(ctx context.Context, org, nameOrID string) (*domain.ProjectRef, error) {
	p, err := f.projects.GetOrFetch(ctx, key(org, nameOrID), func(ctx context.Context) (*domain.ProjectRef, error) {
		return f.next.GetProject(ctx, org, nameOrID)
	})
	if p != nil {
		f.learn(org, *p)
	}
	return p, err
}

func (f *Fetcher) GetPipelineDefinition(ctx context.Context, org, project, id string) (*domain.PipelineDefinition, error) {
	pk, err := f.projectKey(ctx, org, project)
	if err != nil {
		return nil, err
	}
	p, err := f.definitions.GetOrFetch(ctx, key(org, pk, id), func(ctx context.Context) (*domain.PipelineDefinition, error) {
		return f.next.GetPipelineDefinition(ctx, org, project, id)
	})
	if p != nil {
		f.learn(org, p.Project)
	}
	return p, err
}

func (f *Fetcher) GetRenderedYaml(ctx context.Context, org, project, pipelineID string) (string, error) {
	pk, err := f.projectKey(ctx, org, project)
	if err != nil {
		return "", err
	}
	return f.renders.GetOrFetch(ctx, key(org, pk, pipelineID), func(ctx context.Context) (string, error) {
		return f.next.GetRenderedYaml(ctx, org, project, pipelineID)
	})
}

func (f *Fetcher) ListPipelines(ctx context.Context, org, project string) ([]domain.PipelineDefinition, error) {
	pk, err := f.projectKey(ctx, org, project)
	if err != nil {
		return nil, err
	}
	ps, err := f.listings.GetOrFetch(ctx, key(org, pk), func(ctx context.Context) ([]domain.PipelineDefinition, error) {
		return f.next.ListPipelines(ctx, org, project)
	})
	for _, p := range ps {
		f.learn(org, p.Project)
	}
	return ps, err
}

func (f *Fetcher) GetRepository(ctx context.Context, org, project, nameOrID string) (*domain.RepositoryDefinition, error) {
	pk, err := f.projectKey(ctx, org, project)
	if err != nil {
		return nil, err
	}
	r, err := f.repositories.GetOrFetch(ctx, key(org, pk, nameOrID), func(ctx context.Context) (*domain.RepositoryDefinition, error) {
		return f.next.GetRepository(ctx, org, project, nameOrID)
	})
	if r != nil {
		f.learn(org, r.Project)
	}
	return r, err
}

func (f *Fetcher) GetTaskGroup(ctx context.Context, org, project, id, versionSpec string) (*domain.TaskGroup, error) {
	pk, err := f.projectKey(ctx, org, project)
	if err != nil {
		return nil, err
	}
	return f.taskGroups.GetOrFetch(ctx, key(org, pk, id, versionSpec), func(ctx context.Context) (*domain.TaskGroup, error) {
		return f.next.GetTaskGroup(ctx, org, project, id, versionSpec)
	})
}

// projectKey maps a project name or id to the project's id. A project the
// service does not know keeps the string it was named by.
func (f *Fetcher) projectKey(ctx context.Context, org, project string) (string, error) {
	if id, ok := f.knownID(org, project); ok {
		return id, nil
	}
	p, err := f.GetProject(ctx, org, project)
	if err != nil {
		return "", err
	}
	if p == nil || p.ID == "" {
		return strings.ToLower(project), nil
	}
	return strings.ToLower(p.ID), nil
}

func (f *Fetcher) knownID(org, project string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	id, ok := f.ids[key(org, project)]
	return id, ok
}

func (f *Fetcher) learn(org string, p domain.ProjectRef) {
	if p.ID == "" {
		return
	}
	id := strings.ToLower(p.ID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[key(org, p.ID)] = id
	if p.Name != "" {
		f.ids[key(org, p.Name)] = id
	}
}
