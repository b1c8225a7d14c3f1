package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/brainless/shellargs/internal/argtok"
	"github.com/brainless/shellargs/internal/history"
	"github.com/brainless/shellargs/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	lines []string
	opts  []runner.Options
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, command string, opts runner.Options) (*runner.Result, error) {
	f.lines = append(f.lines, command)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &runner.Result{
		ID:         "r1",
		Command:    command,
		Args:       argtok.Tokenize(command),
		StatusCode: 0,
		Stdout:     "ran: " + command,
		StartedAt:  time.Now(),
	}, nil
}

type fakeHistory struct {
	recorded []*runner.Result
}

func (f *fakeHistory) Record(ctx context.Context, res *runner.Result) error {
	f.recorded = append(f.recorded, res)
	return nil
}

func (f *fakeHistory) List(ctx context.Context, limit int) ([]history.Entry, error) {
	var out []history.Entry
	for i := len(f.recorded) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		r := f.recorded[i]
		out = append(out, history.Entry{ID: r.ID, Command: r.Command, Args: r.Args, StatusCode: r.StatusCode, StartedAt: r.StartedAt})
	}
	return out, nil
}

type fakeTracker struct {
	urls []string
}

func (f *fakeTracker) LookupLinkedIssue(ctx context.Context, issueURL string) (string, error) {
	f.urls = append(f.urls, issueURL)
	if strings.Contains(issueURL, "missing") {
		return "", errors.New("issue not found")
	}
	return "1234", nil
}

func newTestConsole() (*Console, *bytes.Buffer, *fakeRunner, *fakeHistory, *fakeTracker) {
	out := &bytes.Buffer{}
	r := &fakeRunner{}
	h := &fakeHistory{}
	tr := &fakeTracker{}
	c := New(Options{
		Runner:     r,
		History:    h,
		Tracker:    tr,
		WorkingDir: "/work",
		Out:        out,
	})
	return c, out, r, h, tr
}

func TestConsole_Tokens(t *testing.T) {
	c, out, _, _, _ := newTestConsole()

	require.NoError(t, c.Execute(context.Background(), `tokens echo "a b" it\'s`))
	assert.Equal(t, "0: \"echo\"\n1: \"a b\"\n2: \"it's\"\n", out.String())
}

func TestConsole_Quote(t *testing.T) {
	c, out, _, _, _ := newTestConsole()

	require.NoError(t, c.Execute(context.Background(), `quote say 'he said "hi"'`))
	assert.Equal(t, `"say" "he said \"hi\""`+"\n", out.String())
}

func TestConsole_RunPassesRawLine(t *testing.T) {
	c, out, r, h, _ := newTestConsole()

	require.NoError(t, c.Execute(context.Background(), `  run   grep -e "a  b" file.txt  `))
	require.Len(t, r.lines, 1)
	assert.Equal(t, `grep -e "a  b" file.txt`, r.lines[0])
	assert.Equal(t, "/work", r.opts[0].WorkingDir)
	assert.Len(t, h.recorded, 1)
	assert.Contains(t, out.String(), "ran: grep")
	assert.Contains(t, out.String(), "[exit 0 in")
}

func TestConsole_RunQuotedCommandWord(t *testing.T) {
	c, _, r, _, _ := newTestConsole()

	require.NoError(t, c.Execute(context.Background(), `"run" echo "x y"`))
	require.Len(t, r.lines, 1)
	assert.Equal(t, []string{"echo", "x y"}, argtok.Tokenize(r.lines[0]))
}

func TestConsole_RunWithoutArgs(t *testing.T) {
	c, _, r, _, _ := newTestConsole()

	assert.Error(t, c.Execute(context.Background(), "run"))
	assert.Empty(t, r.lines)
}

func TestConsole_RunError(t *testing.T) {
	c, _, r, h, _ := newTestConsole()
	r.err = errors.New("boom")

	err := c.Execute(context.Background(), "run false")
	assert.EqualError(t, err, "boom")
	assert.Empty(t, h.recorded)
}

func TestConsole_History(t *testing.T) {
	c, out, _, _, _ := newTestConsole()
	ctx := context.Background()

	require.NoError(t, c.Execute(ctx, "history"))
	assert.Contains(t, out.String(), "No runs recorded")

	require.NoError(t, c.Execute(ctx, "run echo one"))
	require.NoError(t, c.Execute(ctx, "run echo two"))
	out.Reset()

	require.NoError(t, c.Execute(ctx, "history 1"))
	assert.Contains(t, out.String(), "echo two")
	assert.NotContains(t, out.String(), "echo one")

	assert.Error(t, c.Execute(ctx, "history abc"))
}

func TestConsole_Issue(t *testing.T) {
	c, out, _, _, tr := newTestConsole()
	ctx := context.Background()

	require.NoError(t, c.Execute(ctx, `issue "http://tracker/issues.json?issue_id=1"`))
	assert.Equal(t, "1234\n", out.String())
	assert.Equal(t, []string{"http://tracker/issues.json?issue_id=1"}, tr.urls)

	assert.Error(t, c.Execute(ctx, "issue http://tracker/missing"))
	assert.Error(t, c.Execute(ctx, "issue"))
}

func TestConsole_DisabledCollaborators(t *testing.T) {
	c := New(Options{Out: &bytes.Buffer{}})
	ctx := context.Background()

	assert.Error(t, c.Execute(ctx, "run echo"))
	assert.Error(t, c.Execute(ctx, "history"))
	assert.Error(t, c.Execute(ctx, "issue http://x"))
}

func TestConsole_UnknownCommand(t *testing.T) {
	c, _, _, _, _ := newTestConsole()

	err := c.Execute(context.Background(), "frobnicate now")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: frobnicate")
	assert.NoError(t, c.Execute(context.Background(), "   "))
}

func TestConsole_RunLoop(t *testing.T) {
	c, out, r, _, _ := newTestConsole()

	input := strings.NewReader("help\n\ntokens a b\nbogus\nrun ls -la\nexit\nrun never\n")
	require.NoError(t, c.Run(context.Background(), input))

	text := out.String()
	assert.Contains(t, text, "Available commands:")
	assert.Contains(t, text, "tokens <line>")
	assert.Contains(t, text, "0: \"a\"\n1: \"b\"\n")
	assert.Contains(t, text, "error: unknown command: bogus")
	assert.Equal(t, []string{"ls -la"}, r.lines)
}

func TestConsole_RunLoopEOFAndQuit(t *testing.T) {
	c, _, r, _, _ := newTestConsole()
	require.NoError(t, c.Run(context.Background(), strings.NewReader("run a")))
	assert.Equal(t, []string{"a"}, r.lines)

	c, _, r, _, _ = newTestConsole()
	require.NoError(t, c.Run(context.Background(), strings.NewReader("quit\nrun b\n")))
	assert.Empty(t, r.lines)
}

func TestConsole_RunLoopCancelled(t *testing.T) {
	c, _, r, _, _ := newTestConsole()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, c.Run(ctx, strings.NewReader("run a\n")))
	assert.Empty(t, r.lines)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Command{Name: "tokens"}))
	require.NoError(t, reg.Register(&Command{Name: "token-count"}))
	require.NoError(t, reg.Register(&Command{Name: "run"}))

	assert.Error(t, reg.Register(&Command{Name: "run"}))
	assert.Error(t, reg.Register(&Command{}))

	assert.Equal(t, []string{"run", "token-count", "tokens"}, reg.Names())
	assert.Equal(t, []string{"token-count", "tokens"}, reg.Completions("tok"))
	assert.Empty(t, reg.Completions("zzz"))
}

func TestConsole_Completer(t *testing.T) {
	c, _, _, _, _ := newTestConsole()
	comp := c.completer()

	complete := func(line string) ([]string, int) {
		candidates, length := comp.Do([]rune(line), len([]rune(line)))
		var out []string
		for _, cand := range candidates {
			out = append(out, string(cand))
		}
		return out, length
	}

	got, length := complete("h")
	assert.Equal(t, []string{"elp ", "istory "}, got)
	assert.Equal(t, 1, length)

	got, length = complete("  ru")
	assert.Equal(t, []string{"n "}, got)
	assert.Equal(t, 2, length)

	got, length = complete("")
	assert.Len(t, got, len(c.registry.Names()))
	assert.Equal(t, 0, length)

	got, length = complete("run a")
	assert.Empty(t, got)
	assert.Equal(t, 0, length)

	got, _ = complete("zzz")
	assert.Empty(t, got)
}

func TestRestOfLine(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{line: "run a b", want: "a b"},
		{line: "  run\t'a b'  c ", want: "'a b'  c"},
		{line: "run", want: ""},
		{line: `"run" a b`, want: `"a" "b"`},
		{line: `run\ x y`, want: `"y"`},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, restOfLine(tt.line, argtok.Tokenize(tt.line)))
		})
	}
}
