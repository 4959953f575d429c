package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sentiradar",
		Short:         "Track Reddit sentiment per community and day",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(refreshCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(runsCmd())
	root.AddCommand(aggregatesCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func refreshCmd() *cobra.Command {
	var (
		timeframe  string
		keyword    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh and wait for it to finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(timeframe, keyword, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&timeframe, "timeframe", "24h", "window to refresh (24h, 7d, 30d)")
	cmd.Flags().StringVar(&keyword, "keyword", "", "only keep items mentioning this keyword")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func statusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show one refresh run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func runsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent refresh runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to show")
	return cmd
}

func aggregatesCmd() *cobra.Command {
	var (
		timeframe  string
		community  string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "aggregates",
		Short: "Show daily sentiment counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregates(timeframe, community, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&timeframe, "timeframe", "", "only this timeframe (24h, 7d, 30d)")
	cmd.Flags().StringVar(&community, "community", "", "only this subreddit")
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
