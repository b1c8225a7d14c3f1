package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/brainless/shellargs/internal/config"
	"github.com/brainless/shellargs/internal/log"
	"github.com/spf13/cobra"
)

var version = "dev"

// exitCodeError carries a child process status out through cobra
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shellargs",
		Short: "Split, quote and run shell-style command lines",
		Long: `shellargs splits command lines into arguments the way a POSIX-ish shell
does for quoting and escaping, without globbing, variables or pipes.

It can show the resulting argument vector, re-quote arguments so they
survive another round of splitting, run the command directly without a
shell, and look up linked issues in an issue tracker.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			log.InitLogger(verbose)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (default is $HOME/.shellargs/config.json)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(newTokenizeCmd())
	rootCmd.AddCommand(newEscapeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newIssueCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConsoleCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// loadConfig reads configuration for commands that need it
func loadConfig(cmd *cobra.Command) error {
	file, _ := cmd.Flags().GetString("config")
	if err := config.InitConfig(file); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}
			c := config.AppConfig
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Current configuration:")
			fmt.Fprintf(out, "Data path:          %s\n", c.DataPath)
			fmt.Fprintf(out, "Tracker field:      %s\n", c.Tracker.Field)
			fmt.Fprintf(out, "Tracker timeout:    %s\n", c.Tracker.Timeout)
			fmt.Fprintf(out, "Tracker rate (r/s): %d\n", c.Tracker.RatePerSecond)
			fmt.Fprintf(out, "Working dir:        %s\n", c.Runner.WorkingDir)
			fmt.Fprintf(out, "History enabled:    %t\n", c.History.Enabled)
			return nil
		},
	}

	setDataCmd := &cobra.Command{
		Use:   "set-data-path [path]",
		Short: "Set the directory for history and console state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}
			if err := config.SetDataPath(args[0]); err != nil {
				return fmt.Errorf("failed to save data path: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Data path set to: %s\n", args[0])
			return nil
		},
	}

	configCmd.AddCommand(showCmd, setDataCmd)
	return configCmd
}
