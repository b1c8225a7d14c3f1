package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SHELLARGS_CONFIG_PATH", t.TempDir())
	viper.Reset()

	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenizeCmd_Lines(t *testing.T) {
	out, err := execute(t, "", "tokenize", `a "b c" d\ e`)
	require.NoError(t, err)
	assert.Equal(t, "a\nb c\nd e\n", out)
}

func TestTokenizeCmd_Stdin(t *testing.T) {
	out, err := execute(t, "echo 'x  y'\n", "tokenize")
	require.NoError(t, err)
	assert.Equal(t, "echo\nx  y\n", out)
}

func TestTokenizeCmd_JSON(t *testing.T) {
	out, err := execute(t, "", "tokenize", "--output", "json", `say "hi there"`)
	require.NoError(t, err)

	var tokens []string
	require.NoError(t, json.Unmarshal([]byte(out), &tokens))
	assert.Equal(t, []string{"say", "hi there"}, tokens)
}

func TestTokenizeCmd_EmptyJSON(t *testing.T) {
	out, err := execute(t, "   ", "tokenize", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestTokenizeCmd_YAML(t *testing.T) {
	out, err := execute(t, "", "tokenize", "-o", "yaml", `it\'s 'a b'`)
	require.NoError(t, err)

	var tokens []string
	require.NoError(t, yaml.Unmarshal([]byte(out), &tokens))
	assert.Equal(t, []string{"it's", "a b"}, tokens)
}

func TestTokenizeCmd_Stringify(t *testing.T) {
	out, err := execute(t, "", "tokenize", "--stringify", `'say "hi"'`)
	require.NoError(t, err)
	assert.Equal(t, `"say \"hi\""`+"\n", out)
}

func TestTokenizeCmd_BadFormat(t *testing.T) {
	_, err := execute(t, "", "tokenize", "-o", "xml", "a")
	assert.Error(t, err)
}

func TestEscapeCmd(t *testing.T) {
	out, err := execute(t, "", "escape", `c:\dir "x"`)
	require.NoError(t, err)
	assert.Equal(t, `c:\\dir \"x\"`+"\n", out)

	out, err = execute(t, "", "escape", "--reverse", `c:\\dir \"x\"`)
	require.NoError(t, err)
	assert.Equal(t, `c:\dir "x"`+"\n", out)
}

func TestIssueCmd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"issues":[{"custom_fields":[{"name":"RepoMos","value":"https://repo/issues/55"},{"name":"Team","value":"core"}]}]}`))
	}))
	defer server.Close()

	out, err := execute(t, "", "issue", server.URL)
	require.NoError(t, err)
	assert.Equal(t, "55\n", out)

	out, err = execute(t, "", "issue", "--field", "Team", server.URL)
	require.NoError(t, err)
	assert.Equal(t, "core\n", out)

	out, err = execute(t, "", "issue", "--all", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "RepoMos")
	assert.Contains(t, out, "Team")
}

func TestRunCmd_EmptyLine(t *testing.T) {
	_, err := execute(t, "", "run", "  ")
	assert.Error(t, err)
}

func TestCommandLine(t *testing.T) {
	assert.Equal(t, `ls -la "My Documents"`, commandLine([]string{`ls -la "My Documents"`}))
	assert.Equal(t, `"ls" "-la" "My Documents"`, commandLine([]string{"ls", "-la", "My Documents"}))
	assert.Equal(t, `"echo" "it's" "a \"b\""`, commandLine([]string{"echo", "it's", `a "b"`}))
}

func TestRunCmd_SeparateArgumentsKeepSpaces(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	out, err := execute(t, "", "run", "--no-history", "--", "sh", "-c", `printf "%s|" "$@"`, "_", "My Documents", `c"d`)
	require.NoError(t, err)
	assert.Equal(t, "My Documents|c\"d|\n", out)
}
