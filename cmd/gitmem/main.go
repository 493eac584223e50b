// Command gitmem captures and searches project memories that travel with the
// repository in git notes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	workdir    string
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "gitmem",
		Short: "Semantic memory for a git repository",
		Long: `gitmem stores short, searchable memories about a project. Each capture is
scrubbed of secrets, embedded into a local vector index and recorded as a git
note on HEAD, so a fresh clone can rebuild the index with "gitmem sync".`,
		Version: version,
		// Usage is printed for unknown commands and bad flags only.
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cmd.SilenceUsage = true
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("gitmem %s (commit %s, built %s)\n", version, gitCommit, buildDate))

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.workdir, "workdir", "C", ".", "run as if gitmem was started in this directory")
	flags.StringVar(&opts.configPath, "config", "", "config file (default <repo>/.memory/config.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(
		newCaptureCmd(opts),
		newSearchCmd(opts),
		newSyncCmd(opts),
		newGetCmd(opts),
		newStatsCmd(opts),
		newScrubCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
	)
	return cmd
}
