// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sylog

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

type messageLevel int

const (
	// FatalLevel messages always print and exit the process.
	FatalLevel messageLevel = iota - 4
	// ErrorLevel messages always print.
	ErrorLevel
	// WarnLevel messages print unless --quiet/-q is set.
	WarnLevel
	// LogLevel is the threshold below which output is fully suppressed.
	LogLevel
	// InfoLevel is the default level.
	InfoLevel
	// VerboseLevel messages print with --verbose.
	VerboseLevel
	// DebugLevel messages print with -d/--debug.
	DebugLevel
)

func (l messageLevel) String() string {
	switch l {
	case FatalLevel:
		return "FATAL"
	case ErrorLevel:
		return "ERROR"
	case WarnLevel:
		return "WARNING"
	case InfoLevel:
		return "INFO"
	case VerboseLevel:
		return "VERBOSE"
	case DebugLevel:
		return "DEBUG"
	default:
		return "LOG"
	}
}

// EnvVar is the environment variable Rex reads its initial log level from;
// GetEnvVar formats the current level as an assignment to it.
const EnvVar = "REX_MESSAGELEVEL"

var messageColors = map[messageLevel]*color.Color{
	FatalLevel: color.New(color.FgRed, color.Bold),
	ErrorLevel: color.New(color.FgRed),
	WarnLevel:  color.New(color.FgYellow),
	InfoLevel:  color.New(color.FgBlue),
}

var (
	loggerLevel = InfoLevel
	logWriter   = io.Writer(os.Stderr)
	useColor    = true
)

func init() {
	if l, err := strconv.Atoi(os.Getenv(EnvVar)); err == nil {
		loggerLevel = messageLevel(l)
	}
}

func prefix(msgLevel messageLevel) string {
	label := fmt.Sprintf("%-8s", msgLevel.String()+":")
	c, ok := messageColors[msgLevel]
	if !ok || !useColor {
		return label + " "
	}
	return c.Sprint(label) + " "
}

func writef(msgLevel messageLevel, format string, a ...interface{}) {
	if loggerLevel < msgLevel {
		return
	}
	message := strings.TrimRight(fmt.Sprintf(format, a...), "\n")
	fmt.Fprintf(logWriter, "%s%s\n", prefix(msgLevel), message)
}

// Fatalf logs at FatalLevel and exits the process with status 255. Code
// that may be imported by other projects should not call Fatalf directly.
func Fatalf(format string, a ...interface{}) {
	writef(FatalLevel, format, a...)
	os.Exit(255)
}

// Errorf logs an ERROR level message without exiting.
func Errorf(format string, a ...interface{}) { writef(ErrorLevel, format, a...) }

// Warningf logs a WARNING level message.
func Warningf(format string, a ...interface{}) { writef(WarnLevel, format, a...) }

// Infof logs an INFO level message. Printed by default.
func Infof(format string, a ...interface{}) { writef(InfoLevel, format, a...) }

// Verbosef logs a VERBOSE level message.
func Verbosef(format string, a ...interface{}) { writef(VerboseLevel, format, a...) }

// Debugf logs a DEBUG level message.
func Debugf(format string, a ...interface{}) { writef(DebugLevel, format, a...) }

// SetLevel sets the logger's verbosity and whether to color output.
func SetLevel(l int, enableColor bool) {
	loggerLevel = messageLevel(l)
	useColor = enableColor
}

// GetLevel returns the current log level as an integer.
func GetLevel() int { return int(loggerLevel) }

// GetEnvVar formats the current level for propagation to a child process'
// environment.
func GetEnvVar() string {
	return fmt.Sprintf("%s=%d", EnvVar, loggerLevel)
}

// Writer returns the underlying io.Writer, or io.Discard when the level is
// at or below LogLevel (--quiet).
func Writer() io.Writer {
	if loggerLevel <= LogLevel {
		return io.Discard
	}
	return logWriter
}

// SetWriter installs a new writer (used by tests to capture output) and
// returns the previous one.
func SetWriter(w io.Writer) io.Writer {
	old := logWriter
	if w != nil {
		logWriter = w
	}
	return old
}
