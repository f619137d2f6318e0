package application

import (
	"github.com/davarch/pipeline-lineage/internal/domain"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/cache_mem"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/pipeline_yaml"
	"go.uber.org/zap"
)

var (
	projA = domain.ProjectRef{ID: "pa", Name: "ProjectA"}
	projB = domain.ProjectRef{ID: "pb", Name: "ProjectB"}
)

func newTestResolver(m *domain.MockFetcher) *Resolver {
	return NewResolver(cache_mem.New(m), pipeline_yaml.Parser{}, zap.NewNop())
}

func scanCache(f domain.DefinitionFetcher) domain.DefinitionFetcher { return cache_mem.New(f) }

func newTestScanUseCase(m *domain.MockFetcher, reports domain.ReportWriter, note domain.Notifier, parallelism int) *ScanUseCase {
	return NewScanUseCase(m, scanCache, pipeline_yaml.Parser{}, reports, note, zap.NewNop(), "org", parallelism)
}

func classicPipeline(project domain.ProjectRef, id string, triggeredBy ...string) domain.PipelineDefinition {
	p := domain.PipelineDefinition{
		ID:      id,
		Name:    "classic-" + id,
		Project: project,
		Kind:    domain.ProcessClassic,
		Path:    `\`,
	}
	for _, up := range triggeredBy {
		var t domain.Trigger
		t.Type = domain.TriggerBuildCompletion
		t.Definition.ID = up
		p.Triggers = append(p.Triggers, t)
	}
	return p
}

func yamlPipeline(project domain.ProjectRef, id, name, path string) domain.PipelineDefinition {
	return domain.PipelineDefinition{
		ID:      id,
		Name:    name,
		Project: project,
		Kind:    domain.ProcessYaml,
		Path:    path,
	}
}

func withSteps(p domain.PipelineDefinition, steps ...domain.Step) domain.PipelineDefinition {
	p.Phases = append(p.Phases, domain.Phase{Name: "Agent job 1", Steps: steps})
	return p
}

func downloadStep(taskID string, enabled bool, inputs map[string]string) domain.Step {
	return domain.Step{
		DisplayName: "Download artifacts",
		Enabled:     enabled,
		Task:        domain.TaskRef{ID: taskID, DefinitionType: domain.TaskDefinitionTask},
		Inputs:      inputs,
	}
}

func taskGroupStep(groupID string, enabled bool) domain.Step {
	return domain.Step{
		DisplayName: "Task group",
		Enabled:     enabled,
		Task:        domain.TaskRef{ID: groupID, DefinitionType: domain.TaskDefinitionMetaTask},
	}
}

func pipelineIDs(ps []domain.PipelineDefinition) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func repositoryNames(rs []domain.RepositoryDefinition) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Name)
	}
	return out
}
