package utils

import (
	"runtime"
	"strings"
	"testing"
	"time"
)

// GoroutineLeakDetector fails a test whose goroutine count grows past an
// allowance, for example a transport whose read pump survives Close.
//
//	detector := utils.NewGoroutineLeakDetector(t).SetAllowedGrowth(1)
//	detector.Start()
//	... open and close a transport ...
//	detector.Check()
type GoroutineLeakDetector struct {
	t             testing.TB
	baseline      int
	allowedGrowth int
	settle        time.Duration
	poll          time.Duration
}

// NewGoroutineLeakDetector creates a detector allowing no growth
func NewGoroutineLeakDetector(t testing.TB) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		t:      t,
		settle: 200 * time.Millisecond,
		poll:   20 * time.Millisecond,
	}
}

// SetAllowedGrowth permits n goroutines more than the baseline
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// SetStabilizeDelay bounds how long Start and Check wait for goroutines that
// are still starting or unwinding
func (d *GoroutineLeakDetector) SetStabilizeDelay(delay time.Duration) *GoroutineLeakDetector {
	d.settle = delay
	return d
}

// Start records the baseline once goroutines from earlier tests are gone
func (d *GoroutineLeakDetector) Start() {
	time.Sleep(d.settle)
	d.baseline = runtime.NumGoroutine()
	d.t.Logf("Goroutine baseline: %d", d.baseline)
}

// Check polls until the count is back within the allowance or the settle
// delay expires, then reports the leak with the surviving stacks
func (d *GoroutineLeakDetector) Check() {
	d.t.Helper()

	limit := d.baseline + d.allowedGrowth
	deadline := time.Now().Add(d.settle)
	count := runtime.NumGoroutine()
	for count > limit && time.Now().Before(deadline) {
		time.Sleep(d.poll)
		count = runtime.NumGoroutine()
	}

	if count <= limit {
		d.t.Logf("No goroutine leak: baseline %d, now %d", d.baseline, count)
		return
	}
	d.t.Errorf("Goroutine leak detected: baseline %d, now %d (leaked: %d, allowed: %d)",
		d.baseline, count, count-d.baseline, d.allowedGrowth)
	d.t.Logf("Goroutines outside the test runner:\n%s", stacks())
}

// stacks dumps every goroutine not parked inside the testing package
func stacks() string {
	buf := make([]byte, 1<<20)
	buf = buf[:runtime.Stack(buf, true)]

	var kept []string
	for _, g := range strings.Split(string(buf), "\n\n") {
		lines := strings.SplitN(g, "\n", 3)
		if len(lines) > 1 && strings.HasPrefix(lines[1], "testing.") {
			continue
		}
		kept = append(kept, g)
	}
	return strings.Join(kept, "\n\n")
}
