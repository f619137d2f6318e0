package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/davarch/pipeline-lineage/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var (
	listOnlyEnabled  bool
	listOnlyDisabled bool
	listJSON         bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List scan targets from config.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		items := make([]config.Target, 0, len(cfg.Scan.Targets))
		for _, t := range cfg.Scan.Targets {
			if listOnlyEnabled && !t.Enabled {
				continue
			}
			if listOnlyDisabled && t.Enabled {
				continue
			}
			items = append(items, t)
		}

		if listJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tPROJECT\tPIPELINE_ID\tENABLED")
		for _, t := range items {
			name := t.Name
			if name == "" {
				name = "(unnamed)"
			}
			id := t.PipelineID
			if id == "" {
				id = "(all)"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", name, t.Project, id, t.Enabled)
		}
		_ = w.Flush()
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listOnlyEnabled, "enabled", false, "show only enabled targets")
	listCmd.Flags().BoolVar(&listOnlyDisabled, "disabled", false, "show only disabled targets")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON")

	listCmd.MarkFlagsMutuallyExclusive("enabled", "disabled")

	rootCmd.AddCommand(listCmd)
}
