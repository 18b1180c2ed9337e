// Package cliutil fans status events out to a colored console writer and
// the file logger at once, the way the Python original's status_func
// callback reached both a human CLI and a JSON event stream from a single
// call site.
package cliutil

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/lanscatter/masterd/persist"
)

var (
	infoColor  = color.New(color.FgCyan)
	debugColor = color.New(color.FgHiBlack)
	errorColor = color.New(color.FgRed, color.Bold)
)

// Progress describes a directory-scan's completion so far.
type Progress struct {
	Done, Total int
}

// Event is one status report. Exactly one field is normally set; Reporter
// treats Error as taking priority over Info, Debug, then Progress.
type Event struct {
	Info     string
	Debug    string
	Error    string
	Progress *Progress
}

// StatusFunc matches the shape of the Python original's status_func:
// a single callback taking a loosely-typed bag of optional fields.
type StatusFunc func(Event)

// Reporter binds a StatusFunc to a console writer and a persist.Logger.
// Debug lines only reach the console when debug is true; they always
// reach the logger, which applies its own gate (persist.SetDebug).
type Reporter struct {
	logger *persist.Logger
	out    io.Writer
	debug  bool
}

// NewReporter returns a Reporter that writes colored lines to os.Stdout
// and plain lines to logger.
func NewReporter(logger *persist.Logger, debug bool) *Reporter {
	return &Reporter{logger: logger, out: os.Stdout, debug: debug}
}

// Func returns the StatusFunc bound to this Reporter, for call sites that
// only want a callback rather than the Reporter's convenience methods.
func (r *Reporter) Func() StatusFunc {
	return r.report
}

func (r *Reporter) report(e Event) {
	switch {
	case e.Error != "":
		errorColor.Fprintln(r.out, "ERROR:", e.Error)
		r.logger.Println("ERROR:", e.Error)
	case e.Info != "":
		infoColor.Fprintln(r.out, e.Info)
		r.logger.Println("INFO:", e.Info)
	case e.Debug != "":
		if r.debug {
			debugColor.Fprintln(r.out, e.Debug)
		}
		r.logger.Debugln(e.Debug)
	case e.Progress != nil:
		pct := 0.0
		if e.Progress.Total > 0 {
			pct = 100 * float64(e.Progress.Done) / float64(e.Progress.Total)
		}
		infoColor.Fprintf(r.out, "scanning: %d/%d (%.0f%%)\n", e.Progress.Done, e.Progress.Total, pct)
	}
}

// Info, Debugln and Errorln mirror the Println(args...) call-site style
// used elsewhere in the module.
func (r *Reporter) Info(args ...interface{}) {
	r.report(Event{Info: fmt.Sprint(args...)})
}

func (r *Reporter) Debugln(args ...interface{}) {
	r.report(Event{Debug: fmt.Sprint(args...)})
}

func (r *Reporter) Errorln(args ...interface{}) {
	r.report(Event{Error: fmt.Sprint(args...)})
}

// Progressln reports scan progress, done out of total chunks hashed so
// far.
func (r *Reporter) Progressln(done, total int) {
	r.report(Event{Progress: &Progress{Done: done, Total: total}})
}
