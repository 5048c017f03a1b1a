// Package observability collects hsm.Observer implementations: a plain
// logging observer, a Prometheus-backed metrics observer, and an
// OpenTelemetry tracing observer.
package observability

import (
	"fmt"
	"log"
	"sync"

	"github.com/latticehsm/hsm"
)

// LogLevel mirrors the teacher's observer log levels.
type LogLevel int

const (
	LogError LogLevel = iota
	LogWarning
	LogInfo
	LogDebug
)

// LoggingObserver logs every engine lifecycle notification through the
// standard log package, gated by level.
type LoggingObserver struct {
	mu     sync.RWMutex
	level  LogLevel
	logger *log.Logger
}

// NewLoggingObserver creates a LoggingObserver writing through logger at
// or below level. A nil logger uses log.Default().
func NewLoggingObserver(level LogLevel, logger *log.Logger) *LoggingObserver {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingObserver{level: level, logger: logger}
}

func (o *LoggingObserver) log(level LogLevel, format string, args ...interface{}) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if level > o.level {
		return
	}
	tag := "INFO"
	switch level {
	case LogError:
		tag = "ERROR"
	case LogWarning:
		tag = "WARN"
	case LogDebug:
		tag = "DEBUG"
	}
	o.logger.Printf("[%s] %s", tag, fmt.Sprintf(format, args...))
}

func (o *LoggingObserver) OnStateEnter(state hsm.StateID) {
	o.log(LogInfo, "entering state %d", state)
}

func (o *LoggingObserver) OnStateExit(state hsm.StateID) {
	o.log(LogInfo, "exiting state %d", state)
}

func (o *LoggingObserver) OnTransition(from, to hsm.StateID, event hsm.EventID, failed bool) {
	if failed {
		o.log(LogWarning, "transition %d -> %d on event %d failed", from, to, event)
		return
	}
	o.log(LogInfo, "transition %d -> %d on event %d", from, to, event)
}

func (o *LoggingObserver) OnEventProcessed(event hsm.EventID, status hsm.EventStatus) {
	o.log(LogDebug, "event %d processed: %s", event, status)
}

func (o *LoggingObserver) OnTimerStart(timer hsm.TimerID) {
	o.log(LogDebug, "timer %d started", timer)
}

func (o *LoggingObserver) OnTimerFire(timer hsm.TimerID) {
	o.log(LogDebug, "timer %d fired", timer)
}

func (o *LoggingObserver) OnError(err error) {
	o.log(LogError, "%v", err)
}
