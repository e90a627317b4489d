package debug

import (
	"io"
	"log"
	"os"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (homing result, mode changes)
	LevelLive    = 2 // Live info (axis engage/stop, button presses)
	LevelVerbose = 3 // Verbose (configuration, per-phase homing details)
	LevelTrace   = 4 // Trace (current samples, GPIO, I2C, very low level)
)

var (
	level  int
	logger *log.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (homing done, preset and group changes)
// 2 = live info (axis engage/stop, button edges)
// 3 = verbose (config details, homing phases)
// 4 = trace (current samples, GPIO, I2C)
func Init(debugLevel int) {
	level = debugLevel
	if level > LevelOff {
		logger = log.New(os.Stdout, "[StaGo] ", log.LstdFlags|log.Lmicroseconds)
	} else {
		logger = nil
	}
}

// SetOutput redirects debug output, e.g. to tee it into the status monitor.
func SetOutput(w io.Writer) {
	if logger != nil {
		logger.SetOutput(w)
	}
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO] "+format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("═══════════════════════════════════════")
		logger.Printf("  %s", title)
		logger.Printf("═══════════════════════════════════════")
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] "+format, args...)
	}
}

// Motion prints an axis decision that changed the motor command (level 2).
func Motion(axis string, direction string, outcome string, throttle float64) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] Axis %s%s: %s (throttle=%+.3f)", axis, direction, outcome, throttle)
	}
}

// Button prints a button edge (level 2).
func Button(name string, pressed bool) {
	if level >= LevelLive && logger != nil {
		edge := "released"
		if pressed {
			edge = "pressed"
		}
		logger.Printf("[LIVE] Button %s %s", name, edge)
	}
}

// Homing prints a homing phase transition (level 2).
func Homing(axis string, phase string) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] Homing %s: %s", axis, phase)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] "+format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] %s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Printf("  %s", name)
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] Step %d: %s", num, description)
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO]   %s = %v", name, value)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace).
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[TRACE] "+format, args...)
	}
}

// Currents prints a current-sense snapshot (level 4).
func Currents(sample [4]float64) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[CURRENT] C1=%.4f, C2=%.4f, C3=%.4f, C4=%.4f", sample[0], sample[1], sample[2], sample[3])
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[GPIO] %s pin=%d value=%v", operation, pin, value)
	}
}

// I2C prints an I2C transaction (level 4).
func I2C(device string, w, r []byte) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[I2C] %s w=% x r=% x", device, w, r)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[ERROR] %v", err)
	}
}
