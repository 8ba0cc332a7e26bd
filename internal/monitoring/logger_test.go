package monitoring

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestWarnf_Prefix(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Warnf("index %d not valid", 3)
	if got != "WARNING: index 3 not valid" {
		t.Errorf("unexpected warning line %q", got)
	}
}

func TestCollector(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	var mu sync.Mutex
	SetLogger(func(format string, v ...interface{}) {
		mu.Lock()
		lines = append(lines, fmt.Sprintf(format, v...))
		mu.Unlock()
	})

	var c Collector
	c.Warnf("first %s", "warning")
	c.Warnf("second")

	if c.Len() != 2 {
		t.Fatalf("expected 2 warnings, got %d", c.Len())
	}
	w := c.Warnings()
	if w[0] != "first warning" || w[1] != "second" {
		t.Errorf("unexpected warnings %v", w)
	}

	// Returned slice is a copy
	w[0] = "mutated"
	if c.Warnings()[0] != "first warning" {
		t.Error("Warnings should return a copy")
	}

	if len(lines) != 2 || !strings.HasPrefix(lines[0], "WARNING: ") {
		t.Errorf("warnings were not forwarded to Logf: %v", lines)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()
	SetLogger(nil)

	var c Collector
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Warnf("w%d", i)
		}(i)
	}
	wg.Wait()

	if c.Len() != 50 {
		t.Errorf("expected 50 warnings, got %d", c.Len())
	}
}
