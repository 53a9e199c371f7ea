package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time
var Version = "0.1.0"

var (
	cfgFile string
	verbose bool

	// initErr holds a failure to read an explicitly named config file
	initErr error
)

// rootCmd rates the catalog when run without a subcommand
var rootCmd = &cobra.Command{
	Use:   "cragrank",
	Short: "cragrank - popularity-adjusted ratings for 27crags routes",
	Long: `cragrank collects climbing routes and their public ascents from 27crags.com
into a JSON catalog, and ranks them with a Bayesian weighted rating per grade:

  WR = v/(v+m) * R + m/(v+m) * C

where R is a route's mean star rating, v its number of ratings, m the prior
vote count and C the mean rating over the whole catalog. A route with few
ratings is pulled towards C; a route with many keeps its own mean.

Run without a subcommand, cragrank rates the catalog. Collection only runs
with 'cragrank collect'.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runRate,
}

// Execute runs the root command. Interrupts cancel the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cragrank v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.cragrank/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.String("catalog", "", "catalog file (default: all_boulders_test.json)")

	// Rating and output flags apply to the default command, rate and collect --rate
	flags.Int("min-votes", 0, "minimum ratings for a route to be listed (default: 5)")
	flags.Int("prior-votes", 0, "prior vote count m of the weighted rating (default: 5)")
	flags.String("prior", "", "prior mean: global or grade (default: global)")
	flags.String("format", "", "report format: text, table, csv, json (default: text)")
	flags.String("sort", "", "route order within a grade: name or wr (default: name)")
	flags.String("export", "", "also write the report to this .csv or .json file")

	bindFlags(flags.Lookup, map[string]string{
		"verbose":     "output.verbose",
		"catalog":     "output.catalog",
		"min-votes":   "rating.min_votes",
		"prior-votes": "rating.prior_votes",
		"prior":       "rating.prior",
		"format":      "output.format",
		"sort":        "output.sort",
		"export":      "output.export",
	})

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	initErr = nil
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".cragrank"))
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match CRAGRANK_*
	viper.SetEnvPrefix("CRAGRANK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if cfgFile != "" {
			initErr = fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		return
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}
