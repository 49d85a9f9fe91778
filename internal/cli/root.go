package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/pitch-coach-go/internal/analyzer"
	"github.com/kapu/pitch-coach-go/internal/app"
	"github.com/kapu/pitch-coach-go/internal/config"
	"github.com/kapu/pitch-coach-go/internal/persona"
	"github.com/kapu/pitch-coach-go/internal/util"
)

var Version = "dev"

var flagVerbose bool

// NewRootCommand builds a fresh command tree so tests never share flag state.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pitchctl",
		Short:         "Offline tools for the sales pitch coach",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug output to stdout")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "pitchctl %s\n", Version)
			},
		},
		&cobra.Command{
			Use:   "analyze <message>",
			Short: "Score a salesperson message and print the analysis as JSON",
			Args:  cobra.MinimumNArgs(1),
			RunE:  runAnalyze,
		},
		&cobra.Command{
			Use:   "personas",
			Short: "List the prospect personas",
			RunE:  runPersonas,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the pitch history schema on the configured backend",
			RunE:  runMigrate,
		},
		newSimulateCommand(),
	)
	return root
}

func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

func newLogger() (*zap.Logger, error) {
	if !flagVerbose {
		return zap.NewNop(), nil
	}
	return util.NewLogger("debug", "")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(analyzer.Analyze(strings.Join(args, " ")))
}

func runPersonas(cmd *cobra.Command, _ []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTITLE\tDIFFICULTY")
	for _, p := range persona.All() {
		fmt.Fprintf(w, "%s\t%s\t%d\n", p.Key, p.Title, p.Difficulty)
	}
	return w.Flush()
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.LoadHistory()
	if err != nil {
		return err
	}
	if cfg.Driver == config.HistoryNone {
		return fmt.Errorf("HISTORY_DRIVER is none; nothing to migrate")
	}

	repo, closeFn, err := app.OpenHistory(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	if repo != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "pitch_history ready on %s\n", cfg.Driver)
	}
	return nil
}
