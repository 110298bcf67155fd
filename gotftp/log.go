package gotftp

import (
	"log"
	"os"
)

// NewStdLogger returns a ServerConfig.Logger that writes each drained
// line to os.Stdout, preceded only by prefix. It adds no timestamp of
// its own: lines passed to it already carry one (see
// logBuffer.append/timestampLine), so prefix is typically left empty.
func NewStdLogger(prefix string) func(string) {
	l := log.New(os.Stdout, prefix, 0)
	return func(s string) {
		l.Print(s)
	}
}
