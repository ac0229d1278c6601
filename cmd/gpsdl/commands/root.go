package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "gpsdl",
	Short: "Download GPS traces and merge them into map layers",
	Long: `Downloads public GPS trackpoints by bounding box or GPX traces by URL,
and merges them into a persistent set of track and marker layers.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogger,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("sqlite-path", ".artifacts/session.db", "SQLite session database path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm.db", "FSM BoltDB path")
	rootCmd.PersistentFlags().String("api-url", "https://api.openstreetmap.org/api/0.6", "OSM API base URL")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region for s3:// sources")
	rootCmd.PersistentFlags().String("http-timeout", "60s", "Timeout for a single HTTP request")
	rootCmd.PersistentFlags().Int64("max-download-size", 64*1024*1024, "Max download size in bytes (0 for unlimited)")
	rootCmd.PersistentFlags().Int("workers", 1, "Number of download workers")
	rootCmd.PersistentFlags().Int("fsm-max-retries", 5, "Max retries per FSM state")
	rootCmd.PersistentFlags().String("log-file", "", "Write JSON logs to this rotating file instead of stdout")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	for _, name := range []string{
		"sqlite-path", "fsm-db-path", "api-url", "s3-region", "http-timeout",
		"max-download-size", "workers", "fsm-max-retries", "log-file", "log-level",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}
