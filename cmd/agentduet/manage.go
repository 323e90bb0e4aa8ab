package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/export"
)

func newModelsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "models <backend>",
		Short:     "List the models a backend offers",
		Args:      cobra.ExactArgs(1),
		ValidArgs: backendNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			backend, err := newBackend(ctx, a.cfg, args[0], "Agent")
			if err != nil {
				return err
			}

			duet := a.newDuet()
			duet.RefreshModels(ctx, 1, backend)
			select {
			case ev := <-duet.Engine().Events():
				for _, m := range ev.Models {
					fmt.Fprintln(cmd.OutOrStdout(), m)
				}
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

func newPersonasCommand(a *app) *cobra.Command {
	root := &cobra.Command{Use: "personas", Short: "Manage personas"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List default and user personas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.personas()
			if err != nil {
				return err
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			for _, p := range store.All() {
				fmt.Fprintln(cmd.OutOrStdout(), p.Name)
				if verbose {
					fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", strings.ReplaceAll(p.Prompt, "\n", "\n    "))
				}
			}
			return nil
		},
	}
	list.Flags().BoolP("verbose", "v", false, "also print prompts")

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a user persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := promptFromFlags(cmd)
			if err != nil {
				return err
			}
			store, err := a.personas()
			if err != nil {
				return err
			}
			if err := store.Add(core.Persona{Name: args[0], Prompt: prompt}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added persona %q\n", args[0])
			return nil
		},
	}
	addPromptFlags(add)

	update := &cobra.Command{
		Use:   "update <name>",
		Short: "Replace the prompt of a user persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := promptFromFlags(cmd)
			if err != nil {
				return err
			}
			store, err := a.personas()
			if err != nil {
				return err
			}
			return store.Update(args[0], prompt)
		},
	}
	addPromptFlags(update)

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a user persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.personas()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted persona %q\n", args[0])
			return nil
		},
	}

	var replacePersonas bool
	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Import user personas from a JSON backup",
		Long: `Import user personas from a JSON backup.

By default only personas whose name is free are added. With --replace the
user personas become exactly the backup's entries; defaults are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.personas()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			if replacePersonas {
				n, err := store.Replace(f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "replaced user personas with %d persona(s)\n", n)
				return nil
			}
			n, err := store.Import(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d persona(s)\n", n)
			return nil
		},
	}
	imp.Flags().BoolVar(&replacePersonas, "replace", false, "replace the user personas instead of merging")

	exp := &cobra.Command{
		Use:   "export <file>",
		Short: "Export user personas as a JSON backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.personas()
			if err != nil {
				return err
			}
			return writeBackup(args[0], store.Export)
		},
	}

	root.AddCommand(list, add, update, del, imp, exp)
	return root
}

// writeBackup creates path and fills it with encode.
func writeBackup(path string, encode func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func newStylesCommand(a *app) *cobra.Command {
	root := &cobra.Command{Use: "styles", Short: "Manage conversation styles"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved styles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			styles, err := a.styles()
			if err != nil {
				return err
			}
			for _, st := range styles.All() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", st.Name, st.Prompt)
			}
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Save a style directive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := promptFromFlags(cmd)
			if err != nil {
				return err
			}
			styles, err := a.styles()
			if err != nil {
				return err
			}
			return styles.Add(core.Style{Name: args[0], Prompt: prompt})
		},
	}
	addPromptFlags(add)

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved style",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			styles, err := a.styles()
			if err != nil {
				return err
			}
			return styles.Delete(args[0])
		},
	}

	var replaceStyles bool
	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Import styles from a JSON backup",
		Long: `Import styles from a JSON backup.

By default only styles whose name is free are added. With --replace the saved
styles become exactly the backup's entries.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			styles, err := a.styles()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			if replaceStyles {
				n, err := styles.Replace(f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "replaced styles with %d style(s)\n", n)
				return nil
			}
			n, err := styles.Import(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d style(s)\n", n)
			return nil
		},
	}
	imp.Flags().BoolVar(&replaceStyles, "replace", false, "replace the saved styles instead of merging")

	exp := &cobra.Command{
		Use:   "export <file>",
		Short: "Export styles as a JSON backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			styles, err := a.styles()
			if err != nil {
				return err
			}
			return writeBackup(args[0], styles.Export)
		},
	}

	root.AddCommand(list, add, del, imp, exp)
	return root
}

func newHistoryCommand(a *app) *cobra.Command {
	root := &cobra.Command{Use: "history", Short: "Browse archived conversations"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List archived conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			summaries, err := a.history().List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tFINISHED\tSTATE\tTOPIC")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.RunID, s.FinishedAt.Local().Format(time.DateTime), s.State, s.Topic)
			}
			return tw.Flush()
		},
	}

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print an archived conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := a.history().Get(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), export.Text(tr.Entries))
			return err
		},
	}

	del := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete an archived conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.history().Delete(args[0])
		},
	}

	exp := &cobra.Command{
		Use:   "export <run-id> <file>",
		Short: "Export an archived conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := a.history().Get(args[0])
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			return exportTranscript(args[1], format, tr)
		},
	}
	exp.Flags().String("format", "", "export format: txt, csv, md, json, xlsx or docx (default from extension)")

	root.AddCommand(list, show, del, exp)
	return root
}

func addPromptFlags(cmd *cobra.Command) {
	cmd.Flags().String("prompt", "", "prompt text")
	cmd.Flags().String("prompt-file", "", "read the prompt from a file")
}

func promptFromFlags(cmd *cobra.Command) (string, error) {
	prompt, _ := cmd.Flags().GetString("prompt")
	file, _ := cmd.Flags().GetString("prompt-file")
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		prompt = string(data)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("a prompt is required (--prompt or --prompt-file)")
	}
	return prompt, nil
}
