package domain

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockFetcher is an in-memory DefinitionFetcher. Rendered YAML is keyed by
// pipeline id. Errs injects an error for an operation by method name.
// Projects are those named by Projects, Pipelines and Repositories.
type MockFetcher struct {
	Projects     []ProjectRef
	Pipelines    []PipelineDefinition
	Yaml         map[string]string
	Repositories []RepositoryDefinition
	TaskGroups   []TaskGroup
	Errs         map[string]error
	Delay        time.Duration

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockFetcher) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockFetcher) enter(ctx context.Context, op string) error {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
	err := m.Errs[op]
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *MockFetcher) GetProject(ctx context.Context, _, nameOrID string) (*ProjectRef, error) {
	if err := m.enter(ctx, "GetProject"); err != nil {
		return nil, err
	}
	known := append([]ProjectRef{}, m.Projects...)
	for _, p := range m.Pipelines {
		known = append(known, p.Project)
	}
	for _, r := range m.Repositories {
		known = append(known, r.Project)
	}
	for _, p := range known {
		if p.Matches(nameOrID) {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *MockFetcher) GetPipelineDefinition(ctx context.Context, _, project, id string) (*PipelineDefinition, error) {
	if err := m.enter(ctx, "GetPipelineDefinition"); err != nil {
		return nil, err
	}
	for _, p := range m.Pipelines {
		if p.ID == id && p.Project.Matches(project) {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *MockFetcher) GetRenderedYaml(ctx context.Context, _, _, pipelineID string) (string, error) {
	if err := m.enter(ctx, "GetRenderedYaml"); err != nil {
		return "", err
	}
	return m.Yaml[pipelineID], nil
}

func (m *MockFetcher) ListPipelines(ctx context.Context, _, project string) ([]PipelineDefinition, error) {
	if err := m.enter(ctx, "ListPipelines"); err != nil {
		return nil, err
	}
	var out []PipelineDefinition
	for _, p := range m.Pipelines {
		if p.Project.Matches(project) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockFetcher) GetRepository(ctx context.Context, _, project, nameOrID string) (*RepositoryDefinition, error) {
	if err := m.enter(ctx, "GetRepository"); err != nil {
		return nil, err
	}
	for _, r := range m.Repositories {
		if !r.Project.Matches(project) {
			continue
		}
		if strings.EqualFold(r.ID, nameOrID) || strings.EqualFold(r.Name, nameOrID) {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *MockFetcher) GetTaskGroup(ctx context.Context, _, _, id, versionSpec string) (*TaskGroup, error) {
	if err := m.enter(ctx, "GetTaskGroup"); err != nil {
		return nil, err
	}
	want, pinned := MajorVersion(versionSpec)
	for _, g := range m.TaskGroups {
		if g.ID != id {
			continue
		}
		if have, ok := MajorVersion(g.Version); pinned && ok && have != want {
			continue
		}
		return &g, nil
	}
	return nil, nil
}

type MockNotifier struct {
	mu       sync.Mutex
	Messages []string
	Err      error
}

func (n *MockNotifier) Notify(ctx context.Context, title, body, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Messages = append(n.Messages, title+"|"+body+"|"+url)
	return n.Err
}

type MockReportWriter struct {
	mu      sync.Mutex
	Reports []ScanReport
	Err     error
}

func (w *MockReportWriter) Write(ctx context.Context, r ScanReport) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return w.Err
	}
	w.Reports = append(w.Reports, r)
	return nil
}
