package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const defaultLogFile = "chatterm.log"

// sink is the single append-only log file shared by error lines and trace
// entries. Background tasks write to it concurrently.
type sink struct {
	mu    sync.Mutex
	path  string
	trace bool

	// held for the whole open-write-close so lines never interleave
	write sync.Mutex
}

var out = &sink{path: defaultLogFile}

func (s *sink) settings() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path, s.trace
}

func (s *sink) append(data []byte) error {
	path, _ := s.settings()
	s.write.Lock()
	defer s.write.Unlock()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *sink) emit(data []byte, what string) {
	if err := s.append(data); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", what, err)
	}
}

// Error appends a timestamped line for err. Nil errors are ignored.
func Error(err error) {
	if err == nil {
		return
	}
	stamp := time.Now().Format("2006/01/02 15:04:05")
	out.emit([]byte(stamp+" "+err.Error()+"\n"), "logging")
}

// Errorf logs a formatted error.
func Errorf(format string, args ...interface{}) {
	Error(fmt.Errorf(format, args...))
}

// SetTraceEnabled turns structured trace entries on or off.
func SetTraceEnabled(enabled bool) {
	out.mu.Lock()
	out.trace = enabled
	out.mu.Unlock()
}

// TraceEnabled reports whether trace entries are written.
func TraceEnabled() bool {
	_, on := out.settings()
	return on
}

type traceEntry struct {
	Time    time.Time   `json:"time"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// Trace writes one JSON line for event when tracing is on.
func Trace(event string, payload interface{}) {
	if !TraceEnabled() {
		return
	}
	data, err := json.Marshal(traceEntry{Time: time.Now().UTC(), Event: event, Payload: payload})
	if err != nil {
		fmt.Fprintf(os.Stderr, "trace encoding failed: %v\n", err)
		return
	}
	out.emit(append(data, '\n'), "trace logging")
}

// Path returns the log file in use.
func Path() string {
	path, _ := out.settings()
	return path
}

// Configure points the log at path, creating its directory. A blank path, or
// one whose directory cannot be created, selects the default file.
func Configure(path string) {
	target := defaultLogFile
	if strings.TrimSpace(path) != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "unable to create log directory: %v\n", err)
		} else {
			target = path
		}
	}
	out.mu.Lock()
	out.path = target
	out.mu.Unlock()
}
