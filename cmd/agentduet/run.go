package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentduet"
	"github.com/hupe1980/agentduet/agent"
	"github.com/hupe1980/agentduet/core"
)

// interruptSignals is replaced by tests.
var interruptSignals = []os.Signal{os.Interrupt}

func newRunCommand(a *app) *cobra.Command {
	var (
		flags      dialogueFlags
		exportPath string
		format     string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a conversation and print it as it happens",
		Long: `Run a conversation between two agents and print every turn.

Press Ctrl+C once to stop after the turn in progress. The finished
conversation is archived in the history folder and can also be exported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			settings, err := a.buildSettings(ctx, flags)
			if err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, interruptSignals...)
			defer signal.Stop(stop)

			tr, err := runHeadless(ctx, a.newDuet(), settings, cmd.OutOrStdout(), stop)
			if err != nil {
				return err
			}
			if exportPath != "" {
				if err := exportTranscript(exportPath, format, tr); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported to %s\n", exportPath)
			}
			if tr.State == core.RunFailed {
				return fmt.Errorf("conversation failed (%s)", tr.ErrorKind)
			}
			return nil
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&exportPath, "export", "", "write the finished conversation to this file")
	cmd.Flags().StringVar(&format, "format", "", "export format: txt, csv, md, json, xlsx or docx (default from extension)")
	return cmd
}

// runHeadless starts a run and drains the engine every poll interval until the
// run's terminal event, writing text to out. A value on stop requests a
// cooperative stop.
func runHeadless(
	ctx context.Context,
	duet *agentduet.AgentDuet,
	settings agent.Settings,
	out io.Writer,
	stop <-chan os.Signal,
) (core.Transcript, error) {
	eng := duet.Engine()
	runID, _, err := eng.Start(ctx, settings)
	if err != nil {
		return core.Transcript{}, err
	}

	ticker := time.NewTicker(eng.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			id, ok := eng.ActiveRunID()
			if ok && id == runID && eng.RequestStop() == nil {
				fmt.Fprintf(out, "\n[stopping run %s after the current turn]\n", id)
			}
		case <-ticker.C:
			for _, ev := range eng.Poll(0) {
				if ev.RunID != runID || !ev.IsText() {
					continue
				}
				fmt.Fprint(out, ev.Text)
				if ev.IsTerminal() {
					tr, _ := eng.Result(runID)
					return tr, nil
				}
			}
		}
	}
}
