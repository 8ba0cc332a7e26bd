package monitoring

import (
	"fmt"
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a non-fatal condition through Logf with a WARNING prefix.
func Warnf(format string, v ...interface{}) {
	Logf("WARNING: "+format, v...)
}

// Collector records warning messages so callers can inspect them after a
// build-up phase. The zero value is ready to use and safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	warnings []string
}

// Warnf formats a warning, stores it and forwards it to the package logger.
func (c *Collector) Warnf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	c.mu.Lock()
	c.warnings = append(c.warnings, msg)
	c.mu.Unlock()
	Warnf("%s", msg)
}

// Warnings returns a copy of the recorded warnings.
func (c *Collector) Warnings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Len returns the number of recorded warnings.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.warnings)
}
