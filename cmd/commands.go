package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/brainless/shellargs/internal/argtok"
	"github.com/brainless/shellargs/internal/config"
	"github.com/brainless/shellargs/internal/console"
	"github.com/brainless/shellargs/internal/history"
	"github.com/brainless/shellargs/internal/log"
	"github.com/brainless/shellargs/internal/runner"
	"github.com/brainless/shellargs/internal/tracker"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// lineFromArgs joins positional arguments into one command line, reading
// stdin when there are none.
func lineFromArgs(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// commandLine rebuilds the line to run from positional arguments. A single
// argument is the line itself. Several arguments were already split by the
// calling shell, so each is quoted to survive tokenizing again.
func commandLine(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return argtok.Join(args)
}

func newTokenizeCmd() *cobra.Command {
	tokenizeCmd := &cobra.Command{
		Use:   "tokenize [line...]",
		Short: "Split a command line into arguments",
		Long: `Split a command line into arguments, honoring single quotes, double quotes
and backslash escapes. Several arguments are joined with single spaces into
one line first. With no arguments the line is read from stdin.`,
		Example: `  shellargs tokenize 'git commit -m "first commit"'
  echo 'a "b c" d\ e' | shellargs tokenize --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stringify, _ := cmd.Flags().GetBool("stringify")
			output, _ := cmd.Flags().GetString("output")

			line, err := lineFromArgs(cmd, args)
			if err != nil {
				return err
			}

			tokens := argtok.TokenizeStringify(line, stringify)
			log.Logger.WithField("count", len(tokens)).Debug("Tokenized input")
			return writeTokens(cmd.OutOrStdout(), tokens, output)
		},
	}

	tokenizeCmd.Flags().Bool("stringify", false, "Escape and double-quote every argument")
	tokenizeCmd.Flags().StringP("output", "o", "lines", "Output format (lines, json, yaml)")

	return tokenizeCmd
}

func writeTokens(w io.Writer, tokens []string, format string) error {
	switch format {
	case "lines":
		for _, tok := range tokens {
			fmt.Fprintln(w, tok)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tokens)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(tokens)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func newEscapeCmd() *cobra.Command {
	escapeCmd := &cobra.Command{
		Use:   "escape [text...]",
		Short: "Escape quotes, backslashes and control characters",
		RunE: func(cmd *cobra.Command, args []string) error {
			reverse, _ := cmd.Flags().GetBool("reverse")

			text, err := lineFromArgs(cmd, args)
			if err != nil {
				return err
			}

			if reverse {
				fmt.Fprintln(cmd.OutOrStdout(), argtok.Unescape(text))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), argtok.EscapeQuotesAndBackslashes(text))
			}
			return nil
		},
	}

	escapeCmd.Flags().Bool("reverse", false, "Undo escaping instead")

	return escapeCmd
}

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [flags] line...",
		Short: "Run a command line without a shell",
		Long: `Tokenize a command line and run the program it names directly, capturing
stdout and stderr. The exit status of the program becomes the exit status of
shellargs.

A single argument is tokenized as a complete command line. Several arguments
are taken as the argument vector your shell already produced and are passed
through unchanged.`,
		Example: `  shellargs run 'ls -la "My Documents"'
  shellargs run -- ls -la "My Documents"
  shellargs run --dir /tmp --merge -- make test`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}

			dir, _ := cmd.Flags().GetString("dir")
			outFile, _ := cmd.Flags().GetString("out")
			errFile, _ := cmd.Flags().GetString("err")
			merge, _ := cmd.Flags().GetBool("merge")
			noHistory, _ := cmd.Flags().GetBool("no-history")

			if dir == "" {
				dir = config.AppConfig.Runner.WorkingDir
			}
			opts := runner.Options{
				WorkingDir:            dir,
				OutputFile:            outFile,
				ErrorFile:             errFile,
				RedirectErrorToOutput: merge,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := runner.NewExecRunner().Run(ctx, commandLine(args), opts)
			if res != nil && config.AppConfig.History.Enabled && !noHistory {
				recordRun(ctx, res)
			}
			if err != nil {
				return err
			}

			if res.Stdout != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Stdout)
			}
			if res.Stderr != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), res.Stderr)
			}
			if res.StatusCode != 0 {
				return &exitCodeError{code: res.StatusCode}
			}
			return nil
		},
	}

	runCmd.Flags().SetInterspersed(false)
	runCmd.Flags().String("dir", "", "Working directory (default from config)")
	runCmd.Flags().String("out", "", "Also write stdout to this file")
	runCmd.Flags().String("err", "", "Also write stderr to this file")
	runCmd.Flags().Bool("merge", false, "Send stderr to stdout")
	runCmd.Flags().Bool("no-history", false, "Do not record this run")

	return runCmd
}

func recordRun(ctx context.Context, res *runner.Result) {
	store, err := history.Open(config.AppConfig.DataPath)
	if err != nil {
		log.Logger.Warnf("Failed to open history: %v", err)
		return
	}
	defer store.Close()

	if err := store.Record(context.WithoutCancel(ctx), res); err != nil {
		log.Logger.Warnf("Failed to record run: %v", err)
	}
}

// newTrackerClient builds a client from config; a non-empty field
// overrides the configured custom field.
func newTrackerClient(field string) *tracker.Client {
	c := config.AppConfig.Tracker
	if field == "" {
		field = c.Field
	}
	return tracker.NewClient(tracker.Config{
		Field:         field,
		Timeout:       c.Timeout,
		RatePerSecond: c.RatePerSecond,
	})
}

func newIssueCmd() *cobra.Command {
	issueCmd := &cobra.Command{
		Use:   "issue [url]",
		Short: "Resolve the issue linked from a tracker issue",
		Long: `Fetch a tracker issue as JSON and print the last path segment of its
linked-issue custom field.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}

			field, _ := cmd.Flags().GetString("field")
			all, _ := cmd.Flags().GetBool("all")

			client := newTrackerClient(field)

			if all {
				fields, err := client.CustomFields(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				names := make([]string, 0, len(fields))
				for name := range fields {
					names = append(names, name)
				}
				sort.Strings(names)

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				for _, name := range names {
					fmt.Fprintf(w, "%s\t%s\n", name, fields[name])
				}
				return w.Flush()
			}

			linked, err := client.LookupLinkedIssue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), linked)
			return nil
		},
	}

	issueCmd.Flags().String("field", "", "Custom field holding the linked issue (default from config)")
	issueCmd.Flags().Bool("all", false, "Print every custom field instead")

	return issueCmd
}

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}

			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")

			store, err := history.Open(config.AppConfig.DataPath)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tEXIT\tDURATION\tCOMMAND")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", e.ID[:min(8, len(e.ID))], e.StartedAt.Format("2006-01-02 15:04:05"), e.StatusCode, e.Duration, e.Command)
			}
			return w.Flush()
		},
	}

	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to show (0 for all)")
	historyCmd.Flags().Bool("json", false, "Print entries as JSON")

	return historyCmd
}

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Start an interactive console",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}

			opts := console.Options{
				Runner:      runner.NewExecRunner(),
				Tracker:     newTrackerClient(""),
				WorkingDir:  config.AppConfig.Runner.WorkingDir,
				HistoryFile: filepath.Join(config.AppConfig.DataPath, "console_history"),
				Out:         cmd.OutOrStdout(),
			}

			if config.AppConfig.History.Enabled {
				store, err := history.Open(config.AppConfig.DataPath)
				if err != nil {
					log.Logger.Warnf("History disabled: %v", err)
				} else {
					defer store.Close()
					opts.History = store
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			return console.New(opts).Run(ctx, cmd.InOrStdin())
		},
	}
}
