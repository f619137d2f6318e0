package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/davarch/pipeline-lineage/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// repoRef names a repository to fetch. Lookup is the id when known and the
// name otherwise.
type repoRef struct {
	Project string
	Name    string
	Lookup  string
}

func (r repoRef) key() string {
	return strings.ToLower(r.Project) + "/" + strings.ToLower(r.Name)
}

// ResolveLinkedRepositories returns the repositories the given pipelines
// take code from. Classic pipelines contribute their own repository; YAML
// pipelines contribute git repository resources and checkout steps. A git://
// checkout expression that cannot be parsed fails the whole call.
func (r *Resolver) ResolveLinkedRepositories(ctx context.Context, org string, pipelines []domain.PipelineDefinition) ([]domain.RepositoryDefinition, error) {
	perPipeline := make([][]repoRef, len(pipelines))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range pipelines {
		g.Go(func() error {
			refs, err := r.repositoryRefs(gctx, org, p)
			if err != nil {
				return fmt.Errorf("pipeline %s (%s): %w", p.ID, p.Project.Name, err)
			}
			perPipeline[i] = refs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var refs []repoRef
	for _, l := range perPipeline {
		for _, ref := range l {
			if _, ok := seen[ref.key()]; ok {
				continue
			}
			seen[ref.key()] = struct{}{}
			refs = append(refs, ref)
		}
	}

	repos := make([]*domain.RepositoryDefinition, len(refs))
	g, gctx = errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			repo, err := r.fetcher.GetRepository(gctx, org, ref.Project, ref.Lookup)
			if err != nil {
				return fmt.Errorf("repository %s/%s: %w", ref.Project, ref.Name, err)
			}
			if repo == nil {
				r.log.Debug("repository not found", zap.String("project", ref.Project), zap.String("repository", ref.Name))
			}
			repos[i] = repo
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byKey := make(map[string]struct{})
	out := []domain.RepositoryDefinition{}
	for _, repo := range repos {
		if repo == nil {
			continue
		}
		if _, ok := byKey[repo.Key()]; ok {
			continue
		}
		byKey[repo.Key()] = struct{}{}
		out = append(out, *repo)
	}

	domain.SortRepositories(out)
	return out, nil
}

func (r *Resolver) repositoryRefs(ctx context.Context, org string, p domain.PipelineDefinition) ([]repoRef, error) {
	current := projectArg(p.Project)
	projectOf := func(name string) string {
		if name == "" || p.Project.Matches(name) {
			return current
		}
		return name
	}

	if p.Kind != domain.ProcessYaml {
		repo := p.Repository
		if repo == nil || !strings.EqualFold(repo.Type, domain.RepositoryTypeGit) {
			return nil, nil
		}
		lookup := repo.ID
		if lookup == "" {
			lookup = repo.Name
		}
		return []repoRef{{Project: current, Name: repo.Name, Lookup: lookup}}, nil
	}

	doc, err := renderedReferences(ctx, r.fetcher, r.parser, r.log, org, p)
	if err != nil {
		return nil, err
	}

	var refs []repoRef
	for _, rr := range doc.Repositories {
		if !rr.IsGit() {
			continue
		}
		project, name := "", rr.Name
		if before, after, ok := strings.Cut(rr.Name, "/"); ok {
			project, name = before, after
		}
		if name == "" {
			continue
		}
		refs = append(refs, repoRef{Project: projectOf(project), Name: name, Lookup: name})
	}

	for _, c := range doc.Checkouts {
		ref, ok, err := domain.ParseGitRef(c.Repository)
		if err != nil {
			return nil, err
		}
		if !ok || !c.Enabled {
			continue
		}
		refs = append(refs, repoRef{Project: projectOf(ref.Project), Name: ref.Repository, Lookup: ref.Repository})
	}
	return refs, nil
}
