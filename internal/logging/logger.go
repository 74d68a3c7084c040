// Package logging provides categorized structured logging for caseflow.
// Each subsystem logs under its own category so runs can be traced per
// concern. The backend is zap; categories map to named child loggers.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot         Category = "boot"         // startup/initialization
	CategoryOrchestrator Category = "orchestrator" // state machine transitions
	CategoryPrivacy      Category = "privacy"      // boundary decisions
	CategoryMemory       Category = "memory"       // tiered store operations
	CategorySelector     Category = "selector"     // selection queries
	CategoryStages       Category = "stages"       // routing and stage lifecycle
	CategoryAggregate    Category = "aggregate"    // merge and compression
	CategoryAudit        Category = "audit"        // audit trail sink
)

var (
	rootMu   sync.RWMutex
	root     *zap.Logger
	sugared  map[Category]*zap.SugaredLogger
	initOnce sync.Once
)

// Init installs the root logger. Safe to call more than once; later calls
// replace the backend (used by tests to capture output).
func Init(logger *zap.Logger) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root = logger
	sugared = make(map[Category]*zap.SugaredLogger)
}

// ensureRoot lazily falls back to a no-op logger so library use never panics.
func ensureRoot() {
	initOnce.Do(func() {
		rootMu.Lock()
		defer rootMu.Unlock()
		if root == nil {
			root = zap.NewNop()
			sugared = make(map[Category]*zap.SugaredLogger)
		}
	})
}

// Get returns the logger for a category.
func Get(cat Category) *zap.SugaredLogger {
	ensureRoot()
	rootMu.Lock()
	defer rootMu.Unlock()
	if l, ok := sugared[cat]; ok {
		return l
	}
	l := root.Named(string(cat)).Sugar()
	sugared[cat] = l
	return l
}

// Convenience helpers, printf-style, one per high-traffic category.

// Orchestrator logs to the orchestrator category at info level.
func Orchestrator(format string, args ...any) {
	Get(CategoryOrchestrator).Infof(format, args...)
}

// Privacy logs to the privacy category at info level.
func Privacy(format string, args ...any) {
	Get(CategoryPrivacy).Infof(format, args...)
}

// MemoryDebug logs to the memory category at debug level.
func MemoryDebug(format string, args ...any) {
	Get(CategoryMemory).Debugf(format, args...)
}

// SelectorDebug logs to the selector category at debug level.
func SelectorDebug(format string, args ...any) {
	Get(CategorySelector).Debugf(format, args...)
}

// Stages logs to the stages category at info level.
func Stages(format string, args ...any) {
	Get(CategoryStages).Infof(format, args...)
}

// =============================================================================
// TIMERS
// =============================================================================

// slowThreshold marks operations worth surfacing at warn level.
const slowThreshold = 2 * time.Second

// Timer measures an operation's duration for a category.
type Timer struct {
	cat   Category
	op    string
	start time.Time
}

// StartTimer begins timing an operation.
func StartTimer(cat Category, op string) *Timer {
	return &Timer{cat: cat, op: op, start: time.Now()}
}

// Stop logs the elapsed time, at warn level if the operation was slow.
func (t *Timer) Stop() {
	elapsed := time.Since(t.start)
	msg := fmt.Sprintf("%s took %s", t.op, elapsed)
	if elapsed > slowThreshold {
		Get(t.cat).Warn(msg)
		return
	}
	Get(t.cat).Debug(msg)
}

// NewDevelopmentLogger builds a console logger for CLI use.
func NewDevelopmentLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}
