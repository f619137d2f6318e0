package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/davarch/pipeline-lineage/internal/domain"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/config"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/logging"
	"github.com/spf13/cobra"
)

var resolveJSON bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <project> <pipeline-id>",
	Short: "Resolve the upstream pipelines and repositories of one pipeline",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.New()
		defer func() { _ = log.Sync() }()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		res, err := newScanUseCase(cfg, log, false).ResolvePipeline(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		if resolveJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printResolution(res)
		return nil
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "print JSON")

	rootCmd.AddCommand(resolveCmd)
}

func printResolution(r domain.Resolution) {
	fmt.Printf("%s/%s %s (%s)\n", r.Pipeline.Project.Name, r.Pipeline.ID, r.Pipeline.Name, r.Pipeline.Kind)

	fmt.Println("pipelines:")
	for _, p := range r.Pipelines {
		fmt.Printf("  %s/%s %s (%s)\n", p.Project.Name, p.ID, p.Name, p.Kind)
	}
	fmt.Println("repositories:")
	for _, repo := range r.Repositories {
		fmt.Printf("  %s/%s\n", repo.Project.Name, repo.Name)
	}
}
