package executor

import (
	"encoding/json"
	"strings"
	"time"
)

const unknownPanic = "Unknown panic"

// Stderr signatures. Matching is case-sensitive substring search, which ties
// detection to toolchain wording.
var (
	panicMarker      = "panicked at"
	timeoutMarkers   = []string{"timeout", "SIGKILL"}
	oomMarkers       = []string{"out of memory", "memory allocation", "Cannot allocate memory"}
	memoryLimitHints = []string{"OOMKilled", "out of memory", "Cannot allocate memory"}
	pidsLimitHints   = []string{"pids limit", "fork: Resource temporarily unavailable"}
)

// toolMessage covers both cargo messages (keyed by "reason") and libtest
// events (keyed by "type"). Message stays raw because libtest reuses the key
// for plain strings.
type toolMessage struct {
	Reason  string          `json:"reason"`
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
	Success *bool           `json:"success"`
	Name    string          `json:"name"`
	Event   string          `json:"event"`
	Passed  *int            `json:"passed"`
	Failed  *int            `json:"failed"`
	Ignored *int            `json:"ignored"`
}

func (m toolMessage) kind() string {
	if m.Reason != "" {
		return m.Reason
	}
	return m.Type
}

type compilerDiagnostic struct {
	Message string           `json:"message"`
	Level   string           `json:"level"`
	Spans   []diagnosticSpan `json:"spans"`
}

type diagnosticSpan struct {
	FileName    string `json:"file_name"`
	LineStart   int    `json:"line_start"`
	ColumnStart int    `json:"column_start"`
}

// outputScan accumulates what one pass over stdout found.
type outputScan struct {
	plain        []string
	compileError *CompileError
	built        bool
	sawSuite     bool
	suitePassed  int
	suiteFailed  int
	testsPassed  int
	testsFailed  int
}

// ParseOutput classifies the output of one `cargo test` run. It is a pure
// function of its arguments.
//
// Precedence: a compile error beats a runtime error found in stderr, which
// beats pass/fail aggregation. The resource-limit hint from stderr is
// attached whatever the verdict.
func ParseOutput(stdout, stderr string, duration time.Duration) *VerificationResult {
	scan := scanStdout(stdout)
	limit := detectResourceLimit(stderr)

	var result *VerificationResult
	if scan.compileError != nil {
		result = compileErrorResult(scan.compileError, duration)
	} else if re := detectRuntimeError(stderr); re != nil {
		result = runtimeErrorResult(re, duration)
	} else {
		passed, failed := scan.testsPassed, scan.testsFailed
		if scan.sawSuite {
			passed, failed = scan.suitePassed, scan.suiteFailed
		}
		result = testsResult(passed, failed, scan.built, duration)
	}

	result.Stdout = strings.Join(scan.plain, "\n")
	result.Stderr = stderr
	result.ResourceLimitHit = limit
	return result
}

func scanStdout(stdout string) outputScan {
	scan := outputScan{built: true}

	for _, raw := range strings.Split(stdout, "\n") {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "{") {
			scan.plain = append(scan.plain, line)
			continue
		}

		var msg toolMessage
		if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
			// truncated or garbled; keep it as diagnostic text
			scan.plain = append(scan.plain, line)
			continue
		}
		scan.apply(msg)
	}
	return scan
}

func (s *outputScan) apply(msg toolMessage) {
	switch msg.kind() {
	case "compiler-message":
		if s.compileError != nil || len(msg.Message) == 0 {
			return
		}
		var diag compilerDiagnostic
		if err := json.Unmarshal(msg.Message, &diag); err != nil {
			return
		}
		if isErrorLevel(diag.Level) {
			s.compileError = diagnosticToCompileError(diag)
		}
	case "build-finished":
		if msg.Success != nil {
			s.built = *msg.Success
		}
	case "test":
		switch msg.Event {
		case "ok":
			s.testsPassed++
		case "failed":
			s.testsFailed++
		}
	case "suite":
		switch msg.Event {
		case "ok", "failed":
			s.sawSuite = true
			if msg.Passed != nil {
				s.suitePassed += *msg.Passed
			}
			if msg.Failed != nil {
				s.suiteFailed += *msg.Failed
			}
		}
	}
}

// isErrorLevel matches "error" and rustc's "error: internal compiler error".
func isErrorLevel(level string) bool {
	return level == "error" || strings.HasPrefix(level, "error:")
}

func diagnosticToCompileError(diag compilerDiagnostic) *CompileError {
	ce := &CompileError{Message: diag.Message}
	if len(diag.Spans) > 0 {
		span := diag.Spans[0]
		ce.File = span.FileName
		ce.Line = span.LineStart
		ce.Column = span.ColumnStart
	}
	return ce
}

func detectRuntimeError(stderr string) *RuntimeError {
	if strings.Contains(stderr, panicMarker) {
		return &RuntimeError{Kind: RuntimePanic, Message: extractPanicMessage(stderr)}
	}
	if containsAny(stderr, timeoutMarkers) {
		return &RuntimeError{Kind: RuntimeTimeout}
	}
	if containsAny(stderr, oomMarkers) {
		return &RuntimeError{Kind: RuntimeOutOfMemory}
	}
	return nil
}

func detectResourceLimit(stderr string) ResourceLimit {
	if containsAny(stderr, memoryLimitHints) {
		return LimitMemory
	}
	if containsAny(stderr, pidsLimitHints) {
		return LimitProcessCount
	}
	return LimitNone
}

// extractPanicMessage pulls the message out of a line such as
//
//	thread 'main' panicked at 'assertion failed: x == 5', src/lib.rs:15:5
//
// preferring the first quoted text after the marker, then whatever follows it.
func extractPanicMessage(stderr string) string {
	for _, line := range strings.Split(stderr, "\n") {
		idx := strings.Index(line, panicMarker)
		if idx < 0 {
			continue
		}
		after := line[idx+len(panicMarker):]
		if open := strings.IndexByte(after, '\''); open >= 0 {
			rest := after[open+1:]
			if end := strings.IndexByte(rest, '\''); end >= 0 {
				return rest[:end]
			}
		}
		if trailing := strings.TrimSpace(after); trailing != "" {
			return trailing
		}
		return unknownPanic
	}
	return unknownPanic
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
