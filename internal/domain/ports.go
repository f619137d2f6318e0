package domain

import "context"

// DefinitionFetcher reads definitions from the pipeline-hosting service.
// Lookups of things that do not exist return a nil value and a nil error;
// GetRenderedYaml returns "" when the pipeline cannot be rendered.
type DefinitionFetcher interface {
	GetProject(ctx context.Context, org, nameOrID string) (*ProjectRef, error)
	GetPipelineDefinition(ctx context.Context, org, project, id string) (*PipelineDefinition, error)
	GetRenderedYaml(ctx context.Context, org, project, pipelineID string) (string, error)
	ListPipelines(ctx context.Context, org, project string) ([]PipelineDefinition, error)
	GetRepository(ctx context.Context, org, project, nameOrID string) (*RepositoryDefinition, error)
	GetTaskGroup(ctx context.Context, org, project, id, versionSpec string) (*TaskGroup, error)
}

// ReferenceParser extracts pipeline and repository references from rendered
// pipeline YAML.
type ReferenceParser interface {
	Parse(text string) (YamlReferences, error)
}

type ResolutionObserver interface {
	ObserveResolution(err error)
}

type Notifier interface {
	Notify(ctx context.Context, title, body, url string) error
}

type ReportWriter interface {
	Write(ctx context.Context, r ScanReport) error
}
