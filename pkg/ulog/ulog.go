// Package ulog is the ambient structured-logging layer every other package
// in this module reports through (SPEC_FULL.md §1 "Logging"). It fans a
// single log/slog.Logger out to a stderr text handler and a handler that
// only flips a flag, the Go-native shape of spec.md §7's "non-fatal issues
// ... set a global test status observable to the test harness".
package ulog

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	"go.uber.org/atomic"
)

// warningSeen is the one process-global mutable flag spec.md §5 calls out
// besides the PC-base-resolved flag (see pkg/uprintfstate): "the warning flag,
// and the 'has the PC-base question been answered yet' flag from §4.I".
var warningSeen = atomic.NewBool(false)

var logger = slog.New(slogmulti.Fanout(
	slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
	flagHandler{},
))

// flagHandler is a minimal slog.Handler that never writes anything; it only
// exists to flip warningSeen whenever a Warn-or-above record passes
// through the fanout, regardless of which other handlers are attached.
type flagHandler struct{}

func (flagHandler) Enabled(context.Context, slog.Level) bool { return true }
func (flagHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		warningSeen.Store(true)
	}
	return nil
}
func (h flagHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h flagHandler) WithGroup(string) slog.Handler      { return h }

// Warn logs a spec.md §7 "Warning" (degrade-and-continue) condition.
func Warn(format string, args ...any) {
	logger.Warn(sprintf(format, args...))
}

// Error logs a spec.md §7 "Fatal" condition just before the caller aborts
// the current call.
func Error(format string, args ...any) {
	logger.Error(sprintf(format, args...))
}

// Info logs routine, non-error progress (e.g. init timing, CLI output).
func Info(format string, args ...any) {
	logger.Info(sprintf(format, args...))
}

// WarningSeen reports whether any Warn (or Error) has been logged since the
// process started, or since the last Reset. Exposed for the test harness
// spec.md §7 describes ("a global test status observable to the test
// harness").
func WarningSeen() bool { return warningSeen.Load() }

// ResetWarningSeen clears the flag; used between test cases.
func ResetWarningSeen() { warningSeen.Store(false) }

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
