package cli

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/kapu/pitch-coach-go/internal/adapter"
	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/orchestrator"
	"github.com/kapu/pitch-coach-go/internal/persona"
	"github.com/kapu/pitch-coach-go/internal/report"
	"github.com/kapu/pitch-coach-go/internal/service/llm"
	"github.com/kapu/pitch-coach-go/internal/session"
	"github.com/kapu/pitch-coach-go/internal/util"
)

func newSimulateCommand() *cobra.Command {
	var (
		personaKey string
		seed       uint64
	)

	cmd := &cobra.Command{
		Use:   "simulate <message>...",
		Short: "Run an offline roleplay with canned prospect replies",
		Long: "Each argument is one salesperson turn. The prospect answers from its canned\n" +
			"pool only, so no completion credentials are needed. The transcript and the\n" +
			"training report are printed when the turns run out or the prospect ends the call.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}
			orch := orchestrator.New(
				session.NewMemoryStore(1, time.Hour),
				session.NewMemoryLocker(),
				llm.OfflineProvider{},
				logger,
				orchestrator.WithRand(rand.New(rand.NewPCG(seed, seed))),
				orchestrator.WithReportDelay(0),
			)

			ctx := cmd.Context()
			start, err := orch.Start(ctx, "", personaKey, "")
			if err != nil {
				return err
			}

			state := start.State
			for _, msg := range args {
				res, err := orch.HandleTurn(ctx, state.ID, msg)
				if err != nil {
					return err
				}
				state = res.State
				if state.Phase == domain.PhaseEnded {
					break
				}
			}

			orch.Wait()
			if state, err = orch.Get(ctx, state.ID); err != nil {
				return err
			}
			if state.Report == nil {
				rep := report.Summarize(state.Transcript, state, persona.Get(state.PersonaKey))
				rep.GeneratedAt = util.NowUTC()
				state.Report = &rep
			}

			text, err := adapter.NewExportFormatter().FormatSession(state)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&personaKey, "persona", "p", persona.KeyNew, "Prospect persona key")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for reply selection (0 picks one from the clock)")
	return cmd
}
