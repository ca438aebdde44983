// Package logger writes ragctx's diagnostic output to stderr.
//
// Debug, Info, Warn, Section and Since only print once --verbose has called
// SetVerbose(true); they trace the ingestion and retrieval pipelines. Error
// always prints, since background ingestion has no caller to return to.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose turns verbose output on or off.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose reports whether verbose output is on.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput redirects all log output. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// emit writes one formatted line. Unless always is set it is dropped when
// verbose output is off. Writes hold the exclusive lock so lines from
// concurrent workers never interleave.
func emit(always bool, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if always || verbose {
		fmt.Fprintf(output, format, args...)
	}
}

// Debug traces a pipeline step.
func Debug(format string, args ...any) {
	emit(false, "[DEBUG] "+format+"\n", args...)
}

// Info reports a notable event such as a server starting to listen.
func Info(format string, args ...any) {
	emit(false, "[INFO] "+format+"\n", args...)
}

// Warn reports a degraded but recoverable condition.
func Warn(format string, args ...any) {
	emit(false, "[WARN] "+format+"\n", args...)
}

// Error reports a failure regardless of verbose mode.
func Error(format string, args ...any) {
	emit(true, "[ERROR] "+format+"\n", args...)
}

// Section prints a header that groups the lines of one pipeline stage.
func Section(name string) {
	emit(false, "\n=== %s ===\n", name)
}

// Since reports how long step has taken since start.
func Since(step string, start time.Time) {
	emit(false, "[DEBUG] %s took %s\n", step, time.Since(start).Round(time.Microsecond))
}
