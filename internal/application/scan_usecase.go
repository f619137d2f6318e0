package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/davarch/pipeline-lineage/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrPipelineNotFound = errors.New("pipeline not found")

type CacheFactory func(domain.DefinitionFetcher) domain.DefinitionFetcher

// ScanUseCase resolves the dependencies of every targeted pipeline. Each
// scan gets a fresh resolution cache that is dropped when the scan ends.
type ScanUseCase struct {
	client      domain.DefinitionFetcher
	newCache    CacheFactory
	parser      domain.ReferenceParser
	reports     domain.ReportWriter
	note        domain.Notifier
	observer    domain.ResolutionObserver
	log         *zap.Logger
	org         string
	parallelism int
}

func NewScanUseCase(client domain.DefinitionFetcher, newCache CacheFactory, parser domain.ReferenceParser, reports domain.ReportWriter, note domain.Notifier, log *zap.Logger, org string, parallelism int) *ScanUseCase {
	if parallelism <= 0 {
		parallelism = 16
	}
	if newCache == nil {
		newCache = func(f domain.DefinitionFetcher) domain.DefinitionFetcher { return f }
	}
	return &ScanUseCase{
		client: client, newCache: newCache, parser: parser, reports: reports, note: note, log: log,
		org: org, parallelism: parallelism,
	}
}

func (uc *ScanUseCase) WithObserver(o domain.ResolutionObserver) *ScanUseCase {
	uc.observer = o
	return uc
}

// Scan resolves all targets. A pipeline that fails to resolve is recorded in
// the report and does not stop the others; only cancellation of ctx makes
// Scan itself fail.
func (uc *ScanUseCase) Scan(ctx context.Context, targets []domain.ScanTarget) (domain.ScanReport, error) {
	report := domain.ScanReport{
		ScanID:       uuid.NewString(),
		Organization: uc.org,
		StartedAt:    time.Now().UTC(),
	}
	log := uc.log.With(zap.String("scan_id", report.ScanID))

	fetcher := uc.newCache(uc.client)
	res := NewResolver(fetcher, uc.parser, log)

	pipelines, failures := uc.expandTargets(ctx, fetcher, targets)
	report.Failures = append(report.Failures, failures...)

	results := make([]*domain.Resolution, len(pipelines))
	errs := make([]error, len(pipelines))

	var g errgroup.Group
	g.SetLimit(uc.parallelism)
	for i, p := range pipelines {
		g.Go(func() error {
			r, err := uc.resolve(ctx, res, p)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	for i, p := range pipelines {
		if errs[i] != nil {
			log.Warn("resolution failed",
				zap.String("project", p.Project.Name),
				zap.String("pipeline", p.ID),
				zap.Error(errs[i]),
			)
			report.Failures = append(report.Failures, domain.ScanFailure{
				Project: p.Project.Name, PipelineID: p.ID, Error: errs[i].Error(),
			})
			continue
		}
		report.Results = append(report.Results, *results[i])
	}
	report.FinishedAt = time.Now().UTC()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if uc.reports != nil {
		if err := uc.reports.Write(ctx, report); err != nil {
			log.Warn("report write failed", zap.Error(err))
		}
	}
	if uc.note != nil {
		_ = uc.note.Notify(ctx, titleFor(report), summaryOf(report), "")
	}

	log.Info("scan finished",
		zap.Int("pipelines", len(report.Results)),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (uc *ScanUseCase) ResolvePipeline(ctx context.Context, project, id string) (domain.Resolution, error) {
	fetcher := uc.newCache(uc.client)
	p, err := fetcher.GetPipelineDefinition(ctx, uc.org, project, id)
	if err != nil {
		return domain.Resolution{}, err
	}
	if p == nil {
		return domain.Resolution{}, fmt.Errorf("%s/%s: %w", project, id, ErrPipelineNotFound)
	}
	return uc.resolve(ctx, NewResolver(fetcher, uc.parser, uc.log), *p)
}

func (uc *ScanUseCase) resolve(ctx context.Context, res *Resolver, p domain.PipelineDefinition) (r domain.Resolution, err error) {
	if uc.observer != nil {
		defer func() { uc.observer.ObserveResolution(err) }()
	}

	linked, err := res.ResolveLinkedPipelines(ctx, uc.org, p)
	if err != nil {
		return domain.Resolution{}, err
	}

	all := append([]domain.PipelineDefinition{p}, linked...)
	repos, err := res.ResolveLinkedRepositories(ctx, uc.org, all)
	if err != nil {
		return domain.Resolution{}, err
	}

	return domain.Resolution{Pipeline: p, Pipelines: linked, Repositories: repos}, nil
}

// expandTargets turns targets into pipeline definitions. A target without a
// pipeline id stands for every pipeline in its project.
func (uc *ScanUseCase) expandTargets(ctx context.Context, f domain.DefinitionFetcher, targets []domain.ScanTarget) ([]domain.PipelineDefinition, []domain.ScanFailure) {
	lists := make([][]domain.PipelineDefinition, len(targets))
	errs := make([]error, len(targets))

	var g errgroup.Group
	g.SetLimit(uc.parallelism)
	for i, t := range targets {
		g.Go(func() error {
			if t.PipelineID == "" {
				ps, err := f.ListPipelines(ctx, uc.org, t.Project)
				if err != nil {
					errs[i] = err
					return nil
				}
				lists[i] = ps
				return nil
			}

			p, err := f.GetPipelineDefinition(ctx, uc.org, t.Project, t.PipelineID)
			if err != nil {
				errs[i] = err
				return nil
			}
			if p == nil {
				errs[i] = ErrPipelineNotFound
				return nil
			}
			lists[i] = []domain.PipelineDefinition{*p}
			return nil
		})
	}
	_ = g.Wait()

	var (
		out      []domain.PipelineDefinition
		failures []domain.ScanFailure
		seen     = make(map[domain.PipelineKey]struct{})
	)
	for i, l := range lists {
		if errs[i] != nil {
			t := targets[i]
			failures = append(failures, domain.ScanFailure{Project: t.Project, PipelineID: t.PipelineID, Error: errs[i].Error()})
			continue
		}
		for _, p := range l {
			if _, ok := seen[p.Key()]; ok {
				continue
			}
			seen[p.Key()] = struct{}{}
			out = append(out, p)
		}
	}
	return out, failures
}

func titleFor(r domain.ScanReport) string {
	if len(r.Failures) > 0 {
		return "❌ Lineage scan: " + strconv.Itoa(len(r.Failures)) + " failed"
	}
	return "✅ Lineage scan: ok"
}

func summaryOf(r domain.ScanReport) string {
	return strconv.Itoa(len(r.Results)) + " pipelines resolved in " + r.Organization
}
