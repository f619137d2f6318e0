package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/davarch/pipeline-lineage/internal/domain"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/config"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	scanNotify bool
	scanJSON   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Resolve every enabled target once and write the report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.New()
		defer func() { _ = log.Sync() }()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		targets := cfg.EnabledTargets()
		if len(targets) == 0 {
			return fmt.Errorf("no enabled targets")
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		uc := newScanUseCase(cfg, log, scanNotify)
		report, err := uc.Scan(ctx, targets)
		if err != nil {
			return err
		}
		log.Debug("report written", zap.String("path", cfg.Report.Path))

		if scanJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(report)
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanNotify, "notify", false, "send a desktop notification when done")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the report as JSON")

	rootCmd.AddCommand(scanCmd)
}

func printReport(r domain.ScanReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROJECT\tPIPELINE\tNAME\tKIND\tPIPELINES\tREPOSITORIES")
	for _, res := range r.Results {
		p := res.Pipeline
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			p.Project.Name, p.ID, p.Name, p.Kind, len(res.Pipelines), len(res.Repositories))
	}
	_ = w.Flush()

	if len(r.Failures) == 0 {
		return
	}
	_, _ = fmt.Fprintln(os.Stdout)
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROJECT\tPIPELINE\tERROR")
	for _, f := range r.Failures {
		id := f.PipelineID
		if id == "" {
			id = "(all)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", f.Project, id, f.Error)
	}
	_ = w.Flush()
}
