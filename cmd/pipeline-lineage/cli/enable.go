package cli

import (
	"fmt"
	"strings"

	"github.com/davarch/pipeline-lineage/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var enableCmd = &cobra.Command{
	Use:   "enable <target_name>",
	Short: "Enable a scan target by name in config.yaml",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(args[0], true)
	},
}

func init() {
	enableCmd.ValidArgsFunction = completeTargetNames
	rootCmd.AddCommand(enableCmd)
}

func setEnabled(name string, enabled bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	verb := "disabled"
	if enabled {
		verb = "enabled"
	}

	changed := false
	for i := range cfg.Scan.Targets {
		t := &cfg.Scan.Targets[i]
		if t.Name == name && t.Enabled != enabled {
			t.Enabled = enabled
			changed = true
		}
	}

	if !changed {
		fmt.Printf("no change (target %q already %s or not found)\n", name, verb)
		return nil
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}

	fmt.Printf("%s: %s\n", verb, name)
	return nil
}

func completeTargetNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	out := make([]string, 0, len(cfg.Scan.Targets))
	for _, t := range cfg.Scan.Targets {
		if t.Name != "" && strings.HasPrefix(t.Name, toComplete) {
			out = append(out, t.Name)
		}
	}

	return out, cobra.ShellCompDirectiveNoFileComp
}
