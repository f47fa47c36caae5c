package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type LogLevel int

const (
	TRACE LogLevel = 5
	DEBUG LogLevel = 10
	INFO  LogLevel = 20
	WARN  LogLevel = 30
	ERROR LogLevel = 40
)

var levelNames = map[LogLevel]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

func ParseLevel(value string) (LogLevel, error) {
	switch strings.ToLower(value) {
	case "trace":
		return TRACE, nil
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "err", "error":
		return ERROR, nil
	}
	return 0, fmt.Errorf("%s: invalid log level", value)
}

var (
	mu       sync.RWMutex
	outputs  map[LogLevel]*log.Logger
	minLevel LogLevel = TRACE
	// file is closed on the next Init unless it is stdout/stderr
	file io.Closer
)

// Init redirects all log output to w. Messages below level are dropped. A
// nil writer disables logging entirely.
func Init(w io.Writer, level LogLevel) error {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		if err := file.Close(); err != nil {
			return err
		}
		file = nil
	}
	outputs = nil
	minLevel = level
	if w == nil {
		return nil
	}
	if f, ok := w.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		file = f
	}

	flags := log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	outputs = make(map[LogLevel]*log.Logger, len(levelNames))
	for lvl, name := range levelNames {
		outputs[lvl] = log.New(w, fmt.Sprintf("%-5s ", name), flags)
	}
	return nil
}

// ErrorLogger is suitable for libraries that want a *log.Logger for their
// internal errors (e.g. the go-imap client).
func ErrorLogger() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if l, ok := outputs[ERROR]; ok {
		return l
	}
	return log.New(io.Discard, "", log.LstdFlags)
}

type Logger interface {
	Tracef(string, ...any)
	Debugf(string, ...any)
	Infof(string, ...any)
	Warnf(string, ...any)
	Errorf(string, ...any)
}

type logger struct {
	name      string
	calldepth int
}

// NewLogger returns a Logger that prefixes every message with [name].
// Account backends use the account display name.
func NewLogger(name string, calldepth int) Logger {
	return &logger{name: name, calldepth: calldepth}
}

func (l *logger) output(level LogLevel, message string, args ...any) {
	mu.RLock()
	out := outputs[level]
	skip := out == nil || minLevel > level
	mu.RUnlock()
	if skip {
		return
	}
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	if l.name != "" {
		message = fmt.Sprintf("[%s] %s", l.name, message)
	}
	out.Output(l.calldepth+1, message) //nolint:errcheck // we can't do anything with what we log
}

func (l *logger) Tracef(message string, args ...any) {
	l.output(TRACE, message, args...)
}

func (l *logger) Debugf(message string, args ...any) {
	l.output(DEBUG, message, args...)
}

func (l *logger) Infof(message string, args ...any) {
	l.output(INFO, message, args...)
}

func (l *logger) Warnf(message string, args ...any) {
	l.output(WARN, message, args...)
}

func (l *logger) Errorf(message string, args ...any) {
	l.output(ERROR, message, args...)
}

var root = logger{calldepth: 3}

func Tracef(message string, args ...any) {
	root.Tracef(message, args...)
}

func Debugf(message string, args ...any) {
	root.Debugf(message, args...)
}

func Infof(message string, args ...any) {
	root.Infof(message, args...)
}

func Warnf(message string, args ...any) {
	root.Warnf(message, args...)
}

func Errorf(message string, args ...any) {
	root.Errorf(message, args...)
}
