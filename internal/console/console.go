package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/brainless/shellargs/internal/argtok"
	"github.com/brainless/shellargs/internal/history"
	"github.com/brainless/shellargs/internal/log"
	"github.com/brainless/shellargs/internal/runner"
	"github.com/chzyer/readline"
	"golang.org/x/term"
)

var errExit = errors.New("exit")

// HistoryStore records and lists runs
type HistoryStore interface {
	Record(ctx context.Context, res *runner.Result) error
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

// IssueResolver resolves the issue linked from a tracker issue
type IssueResolver interface {
	LookupLinkedIssue(ctx context.Context, issueURL string) (string, error)
}

// Options wires the console's collaborators. Nil collaborators disable the
// commands that need them.
type Options struct {
	Runner      runner.Runner
	History     HistoryStore
	Tracker     IssueResolver
	WorkingDir  string
	HistoryFile string
	Prompt      string
	Out         io.Writer
}

// Console is an interactive prompt whose lines are split with the argument
// tokenizer and dispatched to built-in commands.
type Console struct {
	registry    *Registry
	runner      runner.Runner
	history     HistoryStore
	tracker     IssueResolver
	workingDir  string
	historyFile string
	prompt      string
	out         io.Writer
}

// lineReader is satisfied by *readline.Instance and scannerReader
type lineReader interface {
	Readline() (string, error)
	Close() error
}

func New(opts Options) *Console {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Prompt == "" {
		opts.Prompt = "> "
	}

	c := &Console{
		registry:    NewRegistry(),
		runner:      opts.Runner,
		history:     opts.History,
		tracker:     opts.Tracker,
		workingDir:  opts.WorkingDir,
		historyFile: opts.HistoryFile,
		prompt:      opts.Prompt,
		out:         opts.Out,
	}
	for _, cmd := range builtinCommands() {
		if err := c.registry.Register(cmd); err != nil {
			log.Logger.Warnf("Failed to register command: %v", err)
		}
	}
	return c
}

// Run reads lines from in until EOF, exit or context cancellation. A
// terminal gets line editing, completion and persistent history.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	reader, err := c.newLineReader(in)
	if err != nil {
		return fmt.Errorf("failed to initialize line reader: %w", err)
	}
	defer reader.Close()

	fmt.Fprintln(c.out, "shellargs console")
	fmt.Fprintln(c.out, "Type 'help' for available commands or 'exit' to quit")

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := reader.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					return nil
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		if err := c.Execute(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

// Execute dispatches a single input line
func (c *Console) Execute(ctx context.Context, line string) error {
	tokens := argtok.Tokenize(line)
	if len(tokens) == 0 {
		return nil
	}

	name := tokens[0]
	if name == "quit" {
		name = "exit"
	}
	cmd, ok := c.registry.Get(name)
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help')", tokens[0])
	}

	log.Logger.WithField("tokens", tokens).Debug("Dispatching console command")

	return cmd.Run(&CommandContext{
		Context: ctx,
		Console: c,
		Args:    tokens[1:],
		Rest:    restOfLine(line, tokens),
		Out:     c.out,
	})
}

// restOfLine returns the raw text after the command word. When the command
// word was written with quotes or escapes the remaining tokens are
// re-serialized instead.
func restOfLine(line string, tokens []string) string {
	trimmed := strings.TrimLeftFunc(line, argtok.IsWhitespace)
	if strings.HasPrefix(trimmed, tokens[0]) {
		rest := trimmed[len(tokens[0]):]
		if first, _ := utf8.DecodeRuneInString(rest); rest == "" || argtok.IsWhitespace(first) {
			return strings.TrimFunc(rest, argtok.IsWhitespace)
		}
	}
	return argtok.Join(tokens[1:])
}

func (c *Console) newLineReader(in io.Reader) (lineReader, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:            c.prompt,
			HistoryFile:       c.historyFile,
			AutoComplete:      c.completer(),
			InterruptPrompt:   "^C",
			EOFPrompt:         "exit",
			HistorySearchFold: true,
			Stdin:             f,
			Stdout:            c.out,
		})
		if err != nil {
			return nil, err
		}
		return rl, nil
	}
	return &scannerReader{scanner: bufio.NewScanner(in)}, nil
}

func (c *Console) completer() readline.AutoCompleter {
	return &commandCompleter{registry: c.registry}
}

// commandCompleter completes the command name in the first word. Arguments
// are free text and get no candidates.
type commandCompleter struct {
	registry *Registry
}

// Do returns the untyped remainder of each matching command name, as
// readline expects, along with the length of the typed prefix.
func (cc *commandCompleter) Do(line []rune, pos int) (newLine [][]rune, length int) {
	typed := strings.TrimLeft(string(line[:pos]), " \t")
	if strings.ContainsAny(typed, " \t") {
		return nil, 0
	}

	for _, name := range cc.registry.Completions(typed) {
		newLine = append(newLine, []rune(name[len(typed):]+" "))
	}
	return newLine, len([]rune(typed))
}

// scannerReader reads plain lines when input is not a terminal
type scannerReader struct {
	scanner *bufio.Scanner
}

func (s *scannerReader) Readline() (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *scannerReader) Close() error {
	return nil
}
