package debug

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (session state, uploads)
	LevelLive    = 2 // Live info (shots taken, flash cycles)
	LevelVerbose = 3 // Verbose (config details, collaborator calls)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	mu     sync.RWMutex
	level  int
	out    io.Writer = os.Stdout
	logger *zap.SugaredLogger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (session state, uploads)
// 2 = live info (shots, flash)
// 3 = verbose (config, collaborator calls)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	rebuild()
}

// SetOutput redirects debug output to w. Init must still be called to enable it.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

// rebuild recreates the zap logger; callers hold mu.
func rebuild() {
	if logger != nil {
		_ = logger.Sync()
	}
	if level <= LevelOff {
		logger = nil
		return
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "t"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(out),
		zapcore.DebugLevel,
	)
	logger = zap.New(core).Named("DualCap").Sugar()
}

// Sync flushes buffered output.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if logger != nil {
		_ = logger.Sync()
	}
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

func emit(minLevel int, fn func(l *zap.SugaredLogger)) {
	mu.RLock()
	l := logger
	cur := level
	mu.RUnlock()
	if cur >= minLevel && l != nil {
		fn(l)
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	emit(LevelInfo, func(l *zap.SugaredLogger) { l.Infof(format, args...) })
}

// Warn prints a level 1 warning.
func Warn(format string, args ...interface{}) {
	emit(LevelInfo, func(l *zap.SugaredLogger) { l.Warnf(format, args...) })
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	emit(LevelInfo, func(l *zap.SugaredLogger) {
		l.Info("═══════════════════════════════════════")
		l.Infof("  %s", title)
		l.Info("═══════════════════════════════════════")
	})
}

// State prints a sequencer state change (level 1).
func State(from, to string) {
	emit(LevelInfo, func(l *zap.SugaredLogger) {
		l.Infow("session state", "from", from, "to", to)
	})
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	emit(LevelLive, func(l *zap.SugaredLogger) { l.Debugf("[LIVE] "+format, args...) })
}

// Shot prints a photo capture (level 2).
func Shot(facing string, uri string, size int) {
	emit(LevelLive, func(l *zap.SugaredLogger) {
		l.Debugw("[LIVE] photo taken", "facing", facing, "uri", uri, "bytes", size)
	})
}

// Flash prints a flash cycle step (level 2).
func Flash(phase string, brightness float64) {
	emit(LevelLive, func(l *zap.SugaredLogger) {
		l.Debugw("[LIVE] flash", "phase", phase, "brightness", brightness)
	})
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	emit(LevelVerbose, func(l *zap.SugaredLogger) { l.Debugf("[VERBOSE] "+format, args...) })
}

// Print prints a level 3 message (alias for Verbose).
func Print(format string, args ...interface{}) {
	Verbose(format, args...)
}

// Printf is an alias for Print.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	emit(LevelVerbose, func(l *zap.SugaredLogger) { l.Debugf("[VERBOSE] %s: %+v", name, v) })
}

// Section prints a section separator (level 3).
func Section(name string) {
	emit(LevelVerbose, func(l *zap.SugaredLogger) {
		l.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		l.Debugf("  %s", name)
		l.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	})
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	emit(LevelVerbose, func(l *zap.SugaredLogger) { l.Debugf("[VERBOSE] Step %d: %s", num, description) })
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	emit(LevelInfo, func(l *zap.SugaredLogger) { l.Infof("  %s = %v", name, value) })
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	emit(LevelTrace, func(l *zap.SugaredLogger) { l.Debugf("[TRACE] "+format, args...) })
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	emit(LevelTrace, func(l *zap.SugaredLogger) {
		l.Debugw("[GPIO] "+operation, "pin", pin, "value", value)
	})
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	emit(LevelInfo, func(l *zap.SugaredLogger) { l.Errorw(err.Error()) })
}

// Fmt returns a formatted string only if debug is enabled
// (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if Level() > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
