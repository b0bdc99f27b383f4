package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root, cleanup := newRootCmd(nil)
	err := root.ExecuteContext(ctx)
	cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}

// newRootCmd monta a CLI. logger nil cria um logger de produção (JSON em stderr).
// cleanup fecha o que os comandos abriram e deve rodar mesmo quando Execute falha.
func newRootCmd(logger *zap.Logger) (root *cobra.Command, cleanup func()) {
	a := &app{logger: logger}

	root = &cobra.Command{
		Use:   "sfbulk",
		Short: "Salesforce Bulk API 2.0 from the command line",
		Long: `sfbulk runs Bulk API 2.0 query and ingest jobs against a Salesforce org.

Credentials come from a YAML settings file (--settings or SF_SETTINGS) or from
SF_* environment variables (SF_AUTH_METHOD, SF_USERNAME, SF_CLIENT_ID, ...).
Throttling, concurrency, Redis call stats and the local job history are tuned
with SF_RATE_*, SF_CONCURRENCY_*, SF_STATS_* and SF_HISTORY_DB.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&a.settingsPath, "settings", "", "YAML settings file (default: SF_SETTINGS or SF_* env)")

	root.AddCommand(
		newCheckCmd(a),
		newSOQLCmd(a),
		newQueryCmd(a),
		newIngestCmd(a),
		newJobsCmd(a),
	)
	return root, a.close
}
