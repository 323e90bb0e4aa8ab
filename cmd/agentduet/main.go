// Command agentduet runs a two-agent dialogue on a topic and manages the
// personas, styles and history it uses.
//
// Usage:
//
//	agentduet run --topic "Remote work" --rounds 3 --backend1 ollama --backend2 openai
//	agentduet tui --topic "Remote work"
//	agentduet history list
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentduet/config"
)

// exitFunc is the function used by main to exit; tests replace it.
var exitFunc = os.Exit

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		exitFunc(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "agentduet",
		Short:         "Let two language models talk to each other",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Name() == "tui")
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.cfgPath, "config", config.DefaultPath, "path to the YAML configuration file")

	root.AddCommand(
		newRunCommand(a),
		newTUICommand(a),
		newModelsCommand(a),
		newPersonasCommand(a),
		newStylesCommand(a),
		newHistoryCommand(a),
	)
	return root
}
