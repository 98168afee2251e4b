package internal

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

type SanitizationError struct {
	Message string
	Details string
}

func (e *SanitizationError) Error() string {
	return e.Message + ": " + e.Details
}

// Rust constructs that cannot work in the sandbox (no network, no extra
// processes, read-only root) or that would read files outside the workspace.
var (
	processPatterns = []*regexp.Regexp{
		regexp.MustCompile(`std\s*::\s*process\s*::\s*Command`),
		regexp.MustCompile(`use\s+std\s*::\s*process\s*::\s*\{[^}]*\bCommand\b`),
		regexp.MustCompile(`std\s*::\s*os\s*::\s*unix\s*::\s*process`),
		regexp.MustCompile(`\blibc\s*::\s*(fork|exec\w*|system)\b`),
	}
	networkPatterns = []*regexp.Regexp{
		regexp.MustCompile(`std\s*::\s*net\b`),
		regexp.MustCompile(`\b(TcpStream|TcpListener|UdpSocket)\s*::`),
	}
	includePatterns = []*regexp.Regexp{
		regexp.MustCompile(`include_(str|bytes)\s*!\s*\(\s*r?#*"(/|[A-Za-z]:\\|\.\./)`),
	}
)

// SanitizeCode screens a Rust submission before it reaches a container.
func SanitizeCode(code string, maxCodeLength int) error {
	if len(code) > maxCodeLength {
		return &SanitizationError{
			Message: "Code length exceeds maximum limit",
			Details: fmt.Sprintf("Max length allowed is %d", maxCodeLength),
		}
	}
	if strings.TrimSpace(code) == "" {
		return &SanitizationError{
			Message: "Empty submission",
			Details: "Code must not be blank",
		}
	}
	if !utf8.ValidString(code) {
		return &SanitizationError{
			Message: "Invalid encoding",
			Details: "Code must be valid UTF-8",
		}
	}
	if strings.ContainsRune(code, 0) {
		return &SanitizationError{
			Message: "Invalid character",
			Details: "Code must not contain NUL bytes",
		}
	}

	if matchPatterns(processPatterns, code) {
		return &SanitizationError{
			Message: "Prohibited process operation detected",
			Details: "Spawning processes is not allowed",
		}
	}
	if matchPatterns(networkPatterns, code) {
		return &SanitizationError{
			Message: "Prohibited network operation detected",
			Details: "The sandbox has no network access",
		}
	}
	if matchPatterns(includePatterns, code) {
		return &SanitizationError{
			Message: "Prohibited file include detected",
			Details: "Only files inside the challenge may be included",
		}
	}
	return nil
}

func matchPatterns(patterns []*regexp.Regexp, code string) bool {
	for _, re := range patterns {
		if re.MatchString(code) {
			return true
		}
	}
	return false
}
