package executor

import (
	"fmt"
	"time"
)

// Outcome is the verdict class of a single run. Exactly one variant is set
// on every VerificationResult: TestsRan, *CompileError or *RuntimeError.
type Outcome interface {
	isOutcome()
}

// TestsRan means the suite built and ran; the verdict is carried by the
// pass/fail counts on the result.
type TestsRan struct{}

func (TestsRan) isOutcome() {}

// CompileError is the first error-level compiler diagnostic of a run.
// Line, Column and File are zero when the diagnostic had no source span.
type CompileError struct {
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	File    string `json:"file,omitempty"`
}

func (*CompileError) isOutcome() {}

func (e *CompileError) String() string {
	if e.File == "" {
		return e.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}

// RuntimeErrorKind tags the RuntimeError variants.
type RuntimeErrorKind string

const (
	RuntimeTimeout     RuntimeErrorKind = "timeout"
	RuntimePanic       RuntimeErrorKind = "panic"
	RuntimeOutOfMemory RuntimeErrorKind = "out_of_memory"
	RuntimeUnknown     RuntimeErrorKind = "unknown"
)

// RuntimeError describes a submission that built but died while running.
// Message is only set for RuntimePanic, Stderr only for RuntimeUnknown.
type RuntimeError struct {
	Kind    RuntimeErrorKind `json:"kind"`
	Message string           `json:"message,omitempty"`
	Stderr  string           `json:"stderr,omitempty"`
}

func (*RuntimeError) isOutcome() {}

func (e *RuntimeError) String() string {
	switch e.Kind {
	case RuntimeTimeout:
		return "execution timed out"
	case RuntimePanic:
		return "panicked: " + e.Message
	case RuntimeOutOfMemory:
		return "ran out of memory"
	default:
		return "runtime error"
	}
}

// ResourceLimit names the sandbox limit a run ran into. The zero value means
// no limit was identified.
type ResourceLimit string

const (
	LimitNone         ResourceLimit = ""
	LimitMemory       ResourceLimit = "memory"
	LimitCPU          ResourceLimit = "cpu"
	LimitDiskSpace    ResourceLimit = "disk_space"
	LimitProcessCount ResourceLimit = "process_count"
)

// VerificationResult is the outcome of one verification run.
type VerificationResult struct {
	Success          bool
	Stdout           string
	Stderr           string
	Duration         time.Duration
	TestsPassed      int
	TestsFailed      int
	TestsTotal       int
	Outcome          Outcome
	ResourceLimitHit ResourceLimit
}

// CompileError returns the compile error of the run, if that is its outcome.
func (r *VerificationResult) CompileError() (*CompileError, bool) {
	ce, ok := r.Outcome.(*CompileError)
	return ce, ok
}

// RuntimeError returns the runtime error of the run, if that is its outcome.
func (r *VerificationResult) RuntimeError() (*RuntimeError, bool) {
	re, ok := r.Outcome.(*RuntimeError)
	return re, ok
}

// OutcomeLabel is a short stable name for the verdict, used for metrics and
// responses.
func (r *VerificationResult) OutcomeLabel() string {
	switch o := r.Outcome.(type) {
	case *CompileError:
		return "compile_error"
	case *RuntimeError:
		return string(o.Kind)
	default:
		if r.Success {
			return "passed"
		}
		return "failed"
	}
}

func testsResult(passed, failed int, built bool, duration time.Duration) *VerificationResult {
	return &VerificationResult{
		Success:     built && failed == 0 && passed > 0,
		Duration:    duration,
		TestsPassed: passed,
		TestsFailed: failed,
		TestsTotal:  passed + failed,
		Outcome:     TestsRan{},
	}
}

func compileErrorResult(ce *CompileError, duration time.Duration) *VerificationResult {
	return &VerificationResult{Duration: duration, Outcome: ce}
}

func runtimeErrorResult(re *RuntimeError, duration time.Duration) *VerificationResult {
	return &VerificationResult{Duration: duration, Outcome: re}
}
