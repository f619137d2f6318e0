package application

import (
	"context"
	"fmt"

	"github.com/davarch/pipeline-lineage/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Resolver discovers the pipelines and repositories that feed a pipeline.
// Build one per scan on top of that scan's cache.
type Resolver struct {
	fetcher    domain.DefinitionFetcher
	parser     domain.ReferenceParser
	log        *zap.Logger
	strategies map[domain.ProcessKind]upstreamStrategy
}

func NewResolver(f domain.DefinitionFetcher, parser domain.ReferenceParser, log *zap.Logger) *Resolver {
	return &Resolver{
		fetcher: f,
		parser:  parser,
		log:     log,
		strategies: map[domain.ProcessKind]upstreamStrategy{
			domain.ProcessClassic: &classicStrategy{fetcher: f, inspector: NewClassicInspector(f), log: log},
			domain.ProcessYaml:    &yamlStrategy{fetcher: f, parser: parser, log: log},
		},
	}
}

// ResolveLinkedPipelines returns every pipeline upstream of root, following
// trigger chains, artifact downloads and YAML pipeline resources
// transitively. root itself is never part of the result. Each pipeline is
// expanded at most once, so cycles terminate.
func (r *Resolver) ResolveLinkedPipelines(ctx context.Context, org string, root domain.PipelineDefinition) ([]domain.PipelineDefinition, error) {
	visited := map[domain.PipelineKey]struct{}{root.Key(): {}}
	found := []domain.PipelineDefinition{}

	frontier := []domain.PipelineDefinition{root}
	for depth := 0; len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		discovered, err := r.expand(ctx, org, frontier)
		if err != nil {
			return nil, err
		}

		var next []domain.PipelineDefinition
		for _, p := range discovered {
			k := p.Key()
			if _, ok := visited[k]; ok {
				continue
			}
			visited[k] = struct{}{}
			found = append(found, p)
			next = append(next, p)
		}

		r.log.Debug("resolution level expanded",
			zap.String("pipeline", root.ID),
			zap.Int("depth", depth),
			zap.Int("frontier", len(frontier)),
			zap.Int("new", len(next)),
		)
		frontier = next
	}

	domain.SortPipelines(found)
	return found, nil
}

// expand computes the direct upstreams of every pipeline in the frontier
// concurrently. The result keeps frontier order so merging is deterministic.
func (r *Resolver) expand(ctx context.Context, org string, frontier []domain.PipelineDefinition) ([]domain.PipelineDefinition, error) {
	ups := make([][]domain.PipelineDefinition, len(frontier))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range frontier {
		s, ok := r.strategies[p.Kind]
		if !ok {
			r.log.Debug("no resolution strategy for pipeline kind",
				zap.String("pipeline", p.ID),
				zap.Stringer("kind", p.Kind),
			)
			continue
		}
		g.Go(func() error {
			list, err := s.upstreams(gctx, org, p)
			if err != nil {
				return fmt.Errorf("pipeline %s (%s): %w", p.ID, p.Project.Name, err)
			}
			ups[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.PipelineDefinition
	for _, l := range ups {
		out = append(out, l...)
	}
	return out, nil
}
