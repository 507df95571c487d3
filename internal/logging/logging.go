// Package logging configures Kestrel's charmbracelet/log loggers.
//
// All log output goes to stderr. `kestrel review --json` and `kestrel
// version --json` write machine-readable output to stdout, so nothing else
// may.
//
// Usage:
//
//	// Once, in the root command's PersistentPreRunE:
//	logging.Setup(verbose, quiet, logging.JSONFromEnv(os.LookupEnv))
//
//	// Per component:
//	logger := logging.New("webhook")
//	logger.Info("review queued", "repo", "acme/widgets", "pr", 7)
//
// Setup must run before New. charmbracelet/log copies the default logger's
// settings into a child when it is created, so loggers built earlier keep
// the old level and formatter.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// EnvLogFormat selects the log formatter. "json" switches to NDJSON, which
// suits a daemon whose stderr is collected by a log shipper.
const EnvLogFormat = "KESTREL_LOG_FORMAT"

// Level aliases so callers do not import charmbracelet/log for them.
const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
	LevelFatal = log.FatalLevel
)

// Setup configures the default logger. verbose selects Debug, quiet selects
// Error, and quiet wins when both are set. jsonFormat selects the JSON
// formatter.
func Setup(verbose, quiet, jsonFormat bool) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	if quiet {
		level = log.ErrorLevel
	}

	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(true)

	if jsonFormat {
		log.SetFormatter(log.JSONFormatter)
	} else {
		log.SetFormatter(log.TextFormatter)
	}
}

// JSONFromEnv reports whether EnvLogFormat asks for JSON output. lookup is
// usually os.LookupEnv.
func JSONFromEnv(lookup func(string) (string, bool)) bool {
	v, ok := lookup(EnvLogFormat)
	return ok && strings.EqualFold(strings.TrimSpace(v), "json")
}

// New returns a logger prefixed with component. An empty component gives a
// logger without a prefix.
func New(component string) *log.Logger {
	return log.WithPrefix(component)
}

// SetOutput redirects the default logger, typically to a buffer in tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}
