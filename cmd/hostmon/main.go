package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"hostmon/internal/app"
)

const (
	exitCodeFailure = 1
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type rootOptions struct {
	configPath string
	logLevel   string
	dryRun     bool
	watch      bool
}

// newRootCommand builds the hostmon command tree.
// Params: none.
// Returns: root cobra command.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "hostmon",
		Short:         "Host resource metrics collector",
		Long:          "hostmon polls CPU, memory, disk and network metrics, persists them, evaluates threshold alerts and serves a query API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logLevel != "" {
				if err := os.Setenv("LOG_LEVEL", opts.logLevel); err != nil {
					return fmt.Errorf("set log level: %w", err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollector(cmd.Context(), opts)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to TOML config file or directory (empty: defaults plus environment)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.Flags().BoolVar(&opts.dryRun, "dry-run", false, "log snapshots instead of persisting them")
	root.Flags().BoolVar(&opts.watch, "watch", false, "reload when the config file changes")

	root.AddCommand(newQueryCommand(opts), newVersionCommand())
	return root
}

// newVersionCommand prints build information.
// Params: none.
// Returns: version command.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hostmon version=%s commit=%s date=%s\n", version, commit, date)
		},
	}
}

// runCollector starts the collector and wires SIGHUP to config reload.
// Params: ctx signal-aware lifecycle context; opts root flags.
// Returns: runtime error.
func runCollector(ctx context.Context, opts *rootOptions) error {
	reloadSignal := make(chan os.Signal, 1)
	signal.Notify(reloadSignal, syscall.SIGHUP)
	defer signal.Stop(reloadSignal)

	reload := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reloadSignal:
				select {
				case reload <- struct{}{}:
				default:
				}
			}
		}
	}()

	return app.Run(ctx, app.Runtime{
		ConfigPath:  opts.configPath,
		Reload:      reload,
		WatchConfig: opts.watch,
		DryRun:      opts.dryRun,
		Version:     version,
	})
}

// run executes the command tree.
// Params: none.
// Returns: process exit code.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCodeFailure
	}
	return 0
}

func main() {
	os.Exit(run())
}
