package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/davarch/pipeline-lineage/internal/infrastructure/config"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/report_fs"
	"github.com/spf13/cobra"
)

var reportJSON bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the report of the last scan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		rep, err := report_fs.Read(cfg.Report.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("no report at %s yet, run a scan first", cfg.Report.Path)
		}
		if err != nil {
			return err
		}

		if reportJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}

		fmt.Printf("scan %s (%s) finished %s\n\n", rep.ScanID, rep.Organization, rep.FinishedAt.Local().Format("2006-01-02 15:04:05"))
		printReport(rep)
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print JSON")

	rootCmd.AddCommand(reportCmd)
}
