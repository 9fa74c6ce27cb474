package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/landuse-cli/internal/config"
)

var (
	cfg *config.Config

	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "landuse-cli",
	Short: "Landuse accessibility pipeline",
	Long: "Fetches categorized landuse features from OpenStreetMap, aggregates them per region " +
		"and scores street network nodes by how many landuses they reach.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// setup loads configuration and installs the global logger. Subcommands
// with their own PersistentPreRunE call it first.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.LoadFrom(configPath)
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if err := config.InitLogger(c.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}
	cfg = c
	zap.L().Debug("config loaded",
		zap.String("command", cmd.Name()),
		zap.Int("crs", cfg.CRS),
		zap.String("store", cfg.Store.Driver),
	)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
