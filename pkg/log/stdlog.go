package log

import (
	"bytes"
	stdlog "log"
)

// RedirectStdLog sends output of the standard library logger through l at
// info level, one entry per line.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(stdWriter{l: l.With(Component("stdlog"))})
}

type stdWriter struct{ l Logger }

func (w stdWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(line) > 0 {
			w.l.Info(string(line))
		}
	}
	return len(p), nil
}
