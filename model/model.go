package model

// VerifyRequest asks for a submission to be checked against a challenge's
// test suite. Code is base64 encoded.
type VerifyRequest struct {
	ChallengeID string `json:"challenge_id" binding:"required"`
	Code        string `json:"code" binding:"required"`
	RequestID   string `json:"request_id,omitempty"`
}

// CompileErrorInfo is the first compiler error of a submission.
type CompileErrorInfo struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// RuntimeErrorInfo describes a submission that built but crashed.
type RuntimeErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
	Stderr  string `json:"stderr,omitempty"`
}

// VerificationResponse represents the response structure for a verification
type VerificationResponse struct {
	RequestID        string            `json:"request_id,omitempty"`
	Success          bool              `json:"success"`
	Outcome          string            `json:"outcome"`
	StatusMessage    string            `json:"status_message"`
	Error            string            `json:"error,omitempty"`
	Stdout           string            `json:"stdout,omitempty"`
	Stderr           string            `json:"stderr,omitempty"`
	TestsPassed      int               `json:"tests_passed"`
	TestsFailed      int               `json:"tests_failed"`
	TestsTotal       int               `json:"tests_total"`
	CompileError     *CompileErrorInfo `json:"compile_error,omitempty"`
	RuntimeError     *RuntimeErrorInfo `json:"runtime_error,omitempty"`
	ResourceLimitHit string            `json:"resource_limit_hit,omitempty"`
	ExecutionTime    string            `json:"execution_time,omitempty"`
}
