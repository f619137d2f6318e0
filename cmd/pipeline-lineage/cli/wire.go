package cli

import (
	"github.com/davarch/pipeline-lineage/internal/application"
	"github.com/davarch/pipeline-lineage/internal/domain"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/azdo_http"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/cache_mem"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/config"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/metrics"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/notify_libnotify"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/pipeline_yaml"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/report_fs"
	"go.uber.org/zap"
)

func newScanUseCase(cfg config.Config, log *zap.Logger, notify bool) *application.ScanUseCase {
	az := azdo_http.New(cfg.AzureDevOps.BaseURL, cfg.AzureDevOps.Token, cfg.AzureDevOps.Timeout, cfg.API.MaxConcurrency)

	var note domain.Notifier
	if notify {
		note = notify_libnotify.NewSoft().WithOptions(notify_libnotify.Options{
			Urgency: cfg.Notify.Urgency,
			Expire:  cfg.Notify.Expire,
		})
	}

	perScan := func(f domain.DefinitionFetcher) domain.DefinitionFetcher { return cache_mem.New(f) }

	return application.NewScanUseCase(
		az, perScan, pipeline_yaml.Parser{},
		report_fs.New(cfg.Report.Path), note, log,
		cfg.AzureDevOps.Organization, cfg.Scan.Parallelism,
	).WithObserver(metrics.ResolutionCounter{})
}
