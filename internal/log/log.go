package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger. It is usable before InitLogger is
// called so that packages can log from tests.
var Logger = newLogger(os.Stderr, false)

// InitLogger configures the shared logger. Logs go to stderr because stdout
// carries tokenizer and child process output.
func InitLogger(verbose bool) {
	Logger = newLogger(os.Stderr, verbose)
}

func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
