package console

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/brainless/shellargs/internal/argtok"
	"github.com/brainless/shellargs/internal/runner"
)

// CommandContext is handed to a command handler for one input line
type CommandContext struct {
	Context context.Context
	Console *Console
	// Args are the tokens after the command word
	Args []string
	// Rest is the raw text after the command word
	Rest string
	Out  io.Writer
}

// Command is a built-in console command
type Command struct {
	Name        string
	Usage       string
	Description string
	Run         func(cc *CommandContext) error
}

// Registry holds the console's commands by name
type Registry struct {
	commands map[string]*Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// Register adds a command, rejecting duplicate names
func (r *Registry) Register(cmd *Command) error {
	if cmd.Name == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	if _, exists := r.commands[cmd.Name]; exists {
		return fmt.Errorf("command %s already registered", cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	return nil
}

func (r *Registry) Get(name string) (*Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Names returns the registered command names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Completions returns command names starting with partial
func (r *Registry) Completions(partial string) []string {
	var out []string
	for _, name := range r.Names() {
		if strings.HasPrefix(name, partial) {
			out = append(out, name)
		}
	}
	return out
}

func builtinCommands() []*Command {
	return []*Command{
		{
			Name:        "tokens",
			Usage:       "tokens <line>",
			Description: "Show how a line splits into arguments",
			Run:         runTokens,
		},
		{
			Name:        "quote",
			Usage:       "quote <line>",
			Description: "Re-serialize a line with every argument quoted",
			Run:         runQuote,
		},
		{
			Name:        "run",
			Usage:       "run <line>",
			Description: "Run a command line and print its output",
			Run:         runRun,
		},
		{
			Name:        "history",
			Usage:       "history [limit]",
			Description: "List recorded runs",
			Run:         runHistory,
		},
		{
			Name:        "issue",
			Usage:       "issue <url>",
			Description: "Resolve the linked issue of a tracker issue",
			Run:         runIssue,
		},
		{
			Name:        "help",
			Usage:       "help",
			Description: "Show available commands",
			Run:         runHelp,
		},
		{
			Name:        "exit",
			Usage:       "exit",
			Description: "Leave the console",
			Run:         func(*CommandContext) error { return errExit },
		},
	}
}

func runTokens(cc *CommandContext) error {
	for i, arg := range argtok.TokenizeStringify(cc.Rest, true) {
		fmt.Fprintf(cc.Out, "%d: %s\n", i, arg)
	}
	return nil
}

func runQuote(cc *CommandContext) error {
	fmt.Fprintln(cc.Out, argtok.Join(argtok.Tokenize(cc.Rest)))
	return nil
}

func runRun(cc *CommandContext) error {
	c := cc.Console
	if c.runner == nil {
		return fmt.Errorf("no runner configured")
	}
	if len(cc.Args) == 0 {
		return fmt.Errorf("usage: run <line>")
	}

	res, err := c.runner.Run(cc.Context, cc.Rest, runner.Options{WorkingDir: c.workingDir})
	if res != nil && c.history != nil {
		if recErr := c.history.Record(cc.Context, res); recErr != nil {
			fmt.Fprintf(cc.Out, "warning: %v\n", recErr)
		}
	}
	if err != nil {
		return err
	}

	if res.Stdout != "" {
		fmt.Fprintln(cc.Out, res.Stdout)
	}
	if res.Stderr != "" {
		fmt.Fprintln(cc.Out, res.Stderr)
	}
	fmt.Fprintf(cc.Out, "[exit %d in %s]\n", res.StatusCode, res.Duration.Round(time.Millisecond))
	return nil
}

func runHistory(cc *CommandContext) error {
	c := cc.Console
	if c.history == nil {
		return fmt.Errorf("history is disabled")
	}

	limit := 20
	if len(cc.Args) > 0 {
		n, err := strconv.Atoi(cc.Args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid limit %q", cc.Args[0])
		}
		limit = n
	}

	entries, err := c.history.List(cc.Context, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cc.Out, "No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(cc.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tEXIT\tCOMMAND")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\n", e.StartedAt.Format("2006-01-02 15:04:05"), e.StatusCode, e.Command)
	}
	return w.Flush()
}

func runIssue(cc *CommandContext) error {
	c := cc.Console
	if c.tracker == nil {
		return fmt.Errorf("no tracker configured")
	}
	if len(cc.Args) != 1 {
		return fmt.Errorf("usage: issue <url>")
	}

	linked, err := c.tracker.LookupLinkedIssue(cc.Context, cc.Args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cc.Out, linked)
	return nil
}

func runHelp(cc *CommandContext) error {
	reg := cc.Console.registry
	w := tabwriter.NewWriter(cc.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Available commands:")
	for _, name := range reg.Names() {
		cmd, _ := reg.Get(name)
		fmt.Fprintf(w, "  %s\t%s\n", cmd.Usage, cmd.Description)
	}
	return w.Flush()
}
