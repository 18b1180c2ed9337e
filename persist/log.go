package persist

import (
	"log"
	"os"
)

// Logger wraps the standard library's log.Logger, writing timestamped
// lines to a file and marking its own startup and shutdown so that a
// restart is visible just by reading the file.
type Logger struct {
	*log.Logger
	file *os.File
}

// NewLogger returns a Logger that appends to the file at filename,
// creating it if necessary, and writes a STARTUP line immediately.
func NewLogger(filename string) (*Logger, error) {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0660)
	if err != nil {
		return nil, err
	}
	logger := &Logger{
		Logger: log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile|log.LUTC),
		file:   file,
	}
	logger.Println("STARTUP: Logging has started.")
	return logger, nil
}

// Debugln prints a line to the log prefixed with [DEBUG] if debug logging
// has been enabled with SetDebug, and is a no-op otherwise. It is grouped here rather than in build
// to keep the formatting rules for a log line in one place.
func (l *Logger) Debugln(v ...interface{}) {
	if debugEnabled {
		l.Println(append([]interface{}{"[DEBUG]"}, v...)...)
	}
}

// debugEnabled is false until SetDebug turns it on.
var debugEnabled bool

// SetDebug controls whether Debugln actually writes to the log. The daemon
// calls it once at startup with the value of its --debug flag.
func SetDebug(enabled bool) {
	debugEnabled = enabled
}

// Close logs a SHUTDOWN line and closes the underlying file. Close can
// safely be deferred from the goroutine that created the Logger.
func (l *Logger) Close() error {
	l.Println("SHUTDOWN: Logging has terminated.")
	return l.file.Close()
}
