package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/davarch/pipeline-lineage/internal/domain"
)

// Well-known ids of the tasks that download artifacts of another pipeline.
const (
	downloadBuildArtifactsTaskID   = "a433f589-fce1-4460-9ee6-44a624aeb1fb"
	downloadPipelineArtifactTaskID = "61f2a582-95ae-4948-b34d-a1b3c4f6a737"
)

// ArtifactSource is the pipeline an artifact-download step reads from. An
// empty Project means the project of the pipeline holding the step.
type ArtifactSource struct {
	Project    string
	PipelineID string
}

// ClassicInspector finds artifact-download steps in classic pipelines.
type ClassicInspector struct {
	fetcher domain.DefinitionFetcher
}

func NewClassicInspector(f domain.DefinitionFetcher) *ClassicInspector {
	return &ClassicInspector{fetcher: f}
}

// ArtifactSources returns the "specific" sources of every enabled download
// step in p. Task group steps are expanded one level; groups nested inside a
// group are not.
func (ci *ClassicInspector) ArtifactSources(ctx context.Context, org string, p domain.PipelineDefinition) ([]ArtifactSource, error) {
	var out []ArtifactSource
	for _, ph := range p.Phases {
		for _, s := range ph.Steps {
			if !s.Enabled {
				continue
			}

			if !strings.EqualFold(s.Task.DefinitionType, domain.TaskDefinitionMetaTask) {
				if src, ok := artifactSource(s); ok {
					out = append(out, src)
				}
				continue
			}

			g, err := ci.fetcher.GetTaskGroup(ctx, org, projectArg(p.Project), s.Task.ID, s.Task.Version)
			if err != nil {
				return nil, fmt.Errorf("task group %s: %w", s.Task.ID, err)
			}
			if g == nil {
				continue
			}
			for _, gs := range g.Steps {
				if src, ok := artifactSource(gs); ok {
					out = append(out, src)
				}
			}
		}
	}
	return out, nil
}

func artifactSource(s domain.Step) (ArtifactSource, bool) {
	if !s.Enabled || !isDownloadTask(s.Task.ID) {
		return ArtifactSource{}, false
	}
	if !strings.EqualFold(firstInput(s.Inputs, "buildType", "source"), "specific") {
		return ArtifactSource{}, false
	}
	def := firstInput(s.Inputs, "definition", "pipeline")
	if def == "" {
		return ArtifactSource{}, false
	}
	return ArtifactSource{Project: strings.TrimSpace(s.Inputs["project"]), PipelineID: def}, true
}

func isDownloadTask(id string) bool {
	return strings.EqualFold(id, downloadBuildArtifactsTaskID) ||
		strings.EqualFold(id, downloadPipelineArtifactTaskID)
}

func firstInput(in map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(in[k]); v != "" {
			return v
		}
	}
	return ""
}

func projectArg(p domain.ProjectRef) string {
	if p.ID != "" {
		return p.ID
	}
	return p.Name
}
