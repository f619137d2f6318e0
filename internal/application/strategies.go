package application

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/davarch/pipeline-lineage/internal/domain"
	"go.uber.org/zap"
)

// upstreamStrategy returns the pipelines that directly feed p. Each process
// kind has its own; the resolver handles traversal and merging.
type upstreamStrategy interface {
	upstreams(ctx context.Context, org string, p domain.PipelineDefinition) ([]domain.PipelineDefinition, error)
}

type classicStrategy struct {
	fetcher   domain.DefinitionFetcher
	inspector *ClassicInspector
	log       *zap.Logger
}

func (s *classicStrategy) upstreams(ctx context.Context, org string, p domain.PipelineDefinition) ([]domain.PipelineDefinition, error) {
	var out []domain.PipelineDefinition

	add := func(project, id string) error {
		if project == "" {
			project = projectArg(p.Project)
		}
		d, err := s.fetcher.GetPipelineDefinition(ctx, org, project, id)
		if err != nil {
			return err
		}
		if d == nil {
			s.log.Debug("upstream pipeline not found",
				zap.String("pipeline", p.ID),
				zap.String("project", project),
				zap.String("upstream", id),
			)
			return nil
		}
		out = append(out, *d)
		return nil
	}

	for _, t := range p.Triggers {
		if t.Type != domain.TriggerBuildCompletion || t.Definition.ID == "" {
			continue
		}
		if err := add(t.Definition.ProjectID, t.Definition.ID); err != nil {
			return nil, fmt.Errorf("trigger %s: %w", t.Definition.ID, err)
		}
	}

	sources, err := s.inspector.ArtifactSources(ctx, org, p)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		if err := add(src.Project, src.PipelineID); err != nil {
			return nil, fmt.Errorf("artifact source %s: %w", src.PipelineID, err)
		}
	}

	return out, nil
}

type yamlStrategy struct {
	fetcher domain.DefinitionFetcher
	parser  domain.ReferenceParser
	log     *zap.Logger
}

func (s *yamlStrategy) upstreams(ctx context.Context, org string, p domain.PipelineDefinition) ([]domain.PipelineDefinition, error) {
	doc, err := renderedReferences(ctx, s.fetcher, s.parser, s.log, org, p)
	if err != nil {
		return nil, err
	}

	var out []domain.PipelineDefinition
	for _, res := range doc.Pipelines {
		d, err := s.resolve(ctx, org, p.Project, res)
		if err != nil {
			return nil, fmt.Errorf("pipeline resource %q: %w", res.Alias, err)
		}
		if d == nil {
			s.log.Debug("pipeline resource not resolved",
				zap.String("pipeline", p.ID),
				zap.String("source", res.Source),
				zap.String("project", res.Project),
			)
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (s *yamlStrategy) resolve(ctx context.Context, org string, current domain.ProjectRef, res domain.PipelineResource) (*domain.PipelineDefinition, error) {
	project := res.Project
	if project == "" || current.Matches(project) {
		project = projectArg(current)
	}

	source := strings.TrimSpace(res.Source)
	if source == "" {
		return nil, nil
	}
	if _, err := strconv.ParseUint(source, 10, 64); err == nil {
		return s.fetcher.GetPipelineDefinition(ctx, org, project, source)
	}

	list, err := s.fetcher.ListPipelines(ctx, org, project)
	if err != nil {
		return nil, err
	}
	return matchPipeline(list, source), nil
}

// matchPipeline finds the pipeline a resource source names. A source is
// "name" or "folder/.../name"; folder and name compare case-insensitively.
// A source without a folder prefers the root folder and otherwise accepts a
// single pipeline with that name in any folder.
func matchPipeline(list []domain.PipelineDefinition, source string) *domain.PipelineDefinition {
	folder, name := splitSource(source)

	for i := range list {
		if strings.EqualFold(list[i].Name, name) && normalizeFolder(list[i].Path) == folder {
			return &list[i]
		}
	}
	if folder != "" {
		return nil
	}

	var match *domain.PipelineDefinition
	for i := range list {
		if !strings.EqualFold(list[i].Name, name) {
			continue
		}
		if match != nil {
			return nil
		}
		match = &list[i]
	}
	return match
}

func splitSource(source string) (folder, name string) {
	s := strings.Trim(strings.ReplaceAll(source, `\`, "/"), "/")
	i := strings.LastIndex(s, "/")
	if i < 0 {
		return "", s
	}
	return normalizeFolder(s[:i]), s[i+1:]
}

func normalizeFolder(path string) string {
	return strings.ToLower(strings.Trim(strings.ReplaceAll(path, `\`, "/"), "/"))
}

// renderedReferences fetches and parses the rendered YAML of p. A pipeline
// that does not render, or renders to something unparseable, has no
// references.
func renderedReferences(ctx context.Context, f domain.DefinitionFetcher, parser domain.ReferenceParser, log *zap.Logger, org string, p domain.PipelineDefinition) (domain.YamlReferences, error) {
	text, err := f.GetRenderedYaml(ctx, org, projectArg(p.Project), p.ID)
	if err != nil {
		return domain.YamlReferences{}, fmt.Errorf("render yaml: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		log.Debug("pipeline has no rendered yaml", zap.String("pipeline", p.ID), zap.String("project", p.Project.Name))
		return domain.YamlReferences{}, nil
	}

	refs, err := parser.Parse(text)
	if err != nil {
		log.Debug("rendered yaml not parseable", zap.String("pipeline", p.ID), zap.Error(err))
		return domain.YamlReferences{}, nil
	}
	return refs, nil
}
