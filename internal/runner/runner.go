package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/brainless/shellargs/internal/argtok"
	"github.com/brainless/shellargs/internal/log"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyCommand        = errors.New("command line contains no arguments")
	ErrConflictingRedirect = errors.New("cannot redirect stderr to stdout when a stderr file is given")
)

// exit status reported when the program could not be started at all
const notStartedStatus = 127

// how long output copying may outlive a killed process
const waitDelay = 2 * time.Second

// Options controls where a command runs and where its output goes
type Options struct {
	WorkingDir            string
	OutputFile            string
	ErrorFile             string
	RedirectErrorToOutput bool
}

// Validate rejects option combinations that cannot be honored
func (o Options) Validate() error {
	if strings.TrimSpace(o.ErrorFile) != "" && o.RedirectErrorToOutput {
		return ErrConflictingRedirect
	}
	return nil
}

// Result is the outcome of one command execution
type Result struct {
	ID         string        `json:"id"`
	Command    string        `json:"command"`
	Args       []string      `json:"args"`
	WorkingDir string        `json:"working_dir"`
	StatusCode int           `json:"status_code"`
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// Runner executes a command line
type Runner interface {
	Run(ctx context.Context, command string, opts Options) (*Result, error)
}

// ExecRunner tokenizes command lines and runs them as local processes.
// A non-zero exit status is reported in Result.StatusCode, not as an error.
type ExecRunner struct{}

// NewExecRunner creates a runner backed by os/exec
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, command string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	args := argtok.Tokenize(command)
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}

	result := &Result{
		ID:         uuid.New().String(),
		Command:    command,
		Args:       args,
		WorkingDir: opts.WorkingDir,
		StartedAt:  time.Now(),
	}
	logger := log.Logger.WithFields(logrus.Fields{
		"run_id": result.ID,
		"argv":   args,
	})

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = opts.WorkingDir
	cmd.WaitDelay = waitDelay

	stdout, err := newCapture(opts.OutputFile)
	if err != nil {
		return nil, err
	}
	defer stdout.closeFile()

	stderr := stdout
	if !opts.RedirectErrorToOutput {
		stderr, err = newCapture(opts.ErrorFile)
		if err != nil {
			return nil, err
		}
		defer stderr.closeFile()
	}

	cmd.Stdout = stdout.writer
	cmd.Stderr = stderr.writer

	var g errgroup.Group
	g.Go(stdout.consume)
	if stderr != stdout {
		g.Go(stderr.consume)
	}

	logger.Debug("Starting process")
	runErr := cmd.Run()

	stdout.writer.Close()
	stderr.writer.Close()
	captureErr := g.Wait()

	result.Duration = time.Since(result.StartedAt)
	result.Stdout = stdout.String()
	if stderr != stdout {
		result.Stderr = stderr.String()
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			result.StatusCode = -1
			return result, fmt.Errorf("command %q interrupted: %w", args[0], ctx.Err())
		case errors.As(runErr, &exitErr):
			result.StatusCode = exitErr.ExitCode()
		default:
			result.StatusCode = notStartedStatus
			logger.WithError(runErr).Debug("Process failed to start")
			return result, fmt.Errorf("failed to start %q: %w", args[0], runErr)
		}
	}

	if captureErr != nil {
		return result, fmt.Errorf("failed to capture output: %w", captureErr)
	}

	logger.WithFields(logrus.Fields{
		"status":   result.StatusCode,
		"duration": result.Duration,
	}).Debug("Process finished")

	return result, nil
}

// capture collects one output stream line by line and optionally copies
// each line into a file.
type capture struct {
	writer *io.PipeWriter
	reader *io.PipeReader
	file   *os.File

	mu    sync.Mutex
	lines []string
}

func newCapture(path string) (*capture, error) {
	pr, pw := io.Pipe()
	c := &capture{writer: pw, reader: pr}

	if strings.TrimSpace(path) != "" {
		f, err := os.Create(path)
		if err != nil {
			pw.Close()
			return nil, fmt.Errorf("failed to open output file: %w", err)
		}
		c.file = f
	}
	return c, nil
}

// consume reads lines of any length until the writer side closes. The
// line terminator, and a carriage return before it, are dropped.
func (c *capture) consume() error {
	reader := bufio.NewReader(c.reader)

	var fileErr error
	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			// Unblock the process side of the pipe.
			c.reader.CloseWithError(err)
			return err
		}
		if line == "" && err == io.EOF {
			return fileErr
		}

		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		c.mu.Lock()
		c.lines = append(c.lines, line)
		c.mu.Unlock()

		if c.file != nil && fileErr == nil {
			_, fileErr = c.file.WriteString(line + "\n")
		}
		if err == io.EOF {
			return fileErr
		}
	}
}

func (c *capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.lines, "\n")
}

func (c *capture) closeFile() {
	if c.file != nil {
		c.file.Close()
	}
}
