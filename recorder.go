package migcheck

import (
	"fmt"
	"sync"
)

type failNowSignal struct{}

// Recorder is a TestContext for running checks outside of go test.
// FailNow aborts the running check, the driver turns that into ErrAssertionFailed.
type Recorder struct {
	mu       sync.Mutex
	failures []string
	failed   bool
}

var _ TestContext = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Errorf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failures = append(r.failures, fmt.Sprintf(format, args...))
	r.failed = true
}

func (r *Recorder) FailNow() {
	r.mu.Lock()
	r.failed = true
	r.mu.Unlock()

	panic(failNowSignal{})
}

func (r *Recorder) Helper() {}

func (r *Recorder) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

func (r *Recorder) Failures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]string, len(r.failures))
	copy(result, r.failures)
	return result
}

// stepContext forwards to the context a step runs with and counts
// the failures reported through it. A shared *testing.T stays failed
// after the first failing check, the count does not leak across steps.
type stepContext struct {
	tc TestContext

	mu    sync.Mutex
	marks int
}

var _ TestContext = (*stepContext)(nil)

func scoped(tc TestContext) *stepContext {
	if sc, ok := tc.(*stepContext); ok {
		return sc
	}

	return &stepContext{tc: tc}
}

func (sc *stepContext) Errorf(format string, args ...interface{}) {
	sc.mark()
	sc.tc.Errorf(format, args...)
}

func (sc *stepContext) FailNow() {
	sc.mark()
	sc.tc.FailNow()
}

func (sc *stepContext) Helper() {
	sc.tc.Helper()
}

func (sc *stepContext) mark() {
	sc.mu.Lock()
	sc.marks++
	sc.mu.Unlock()
}

func (sc *stepContext) failMarks() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.marks
}
