package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/cragrank/internal/model"
	"github.com/ppiankov/cragrank/internal/pipeline"
)

// rateCmd represents the rate command
var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Rate the routes of a catalog",
	Long: `Rate loads the catalog and prints the weighted rating of every route with
at least --min-votes ratings, grouped by grade.

Example:
  cragrank rate
  cragrank rate --catalog boulders.json --min-votes 3 --format table
  cragrank rate --sort wr --export ranking.csv`,
	Args: cobra.NoArgs,
	RunE: runRate,
}

func init() {
	rootCmd.AddCommand(rateCmd)
}

func runRate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Output.Verbose)

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}
	return rateAndRender(cmd, p, cfg)
}

func rateAndRender(cmd *cobra.Command, p *pipeline.Pipeline, cfg *model.Config) error {
	report, err := p.Rate()
	if err != nil {
		return err
	}

	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "✓ Loaded %d routes from %s\n", report.Routes, cfg.Output.Catalog)
		fmt.Fprintf(os.Stderr, "✓ Rated %d routes with at least %d votes (C=%.3f, m=%d, prior=%s)\n",
			report.Rated(), report.MinVotes, report.GlobalMean, report.PriorVotes, report.Prior)
		fmt.Fprintln(os.Stderr)
	}

	return p.RenderReport(cmd.OutOrStdout(), report)
}
