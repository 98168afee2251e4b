package executor

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ContainerWorkDir is where the workspace is bind-mounted inside the sandbox.
	ContainerWorkDir = "/challenge"
	// SubmissionPath is where the submitted source lands, relative to the workspace.
	SubmissionPath = "src/lib.rs"

	containerLabelKey   = "app"
	containerLabelValue = "challenge-runner"
	warmLabelKey        = "pool"
	warmLabelValue      = "warm"
	containerNamePrefix = "challenge-"

	pidsLimit = 100
	// exitCodeOOMKilled is 128+SIGKILL, what the engine reports after an OOM kill.
	exitCodeOOMKilled = 137

	// StaleAfter is how old a labelled container or workspace must be before
	// the sweep treats it as orphaned.
	StaleAfter = time.Hour
)

// verificationCmd builds the submission and runs its tests with both cargo
// and libtest emitting line-delimited JSON.
var verificationCmd = []string{
	"cargo", "test", "--message-format=json",
	"--", "-Z", "unstable-options", "--format=json",
}

var verificationEnv = []string{
	"RUSTC_BOOTSTRAP=1",
	"CARGO_TERM_COLOR=never",
	"CARGO_TARGET_DIR=" + ContainerWorkDir + "/target",
}

// NetworkMode is the container network policy.
type NetworkMode string

const (
	NetworkNone   NetworkMode = "none"
	NetworkBridge NetworkMode = "bridge"
)

func (m NetworkMode) String() string {
	return string(m)
}

// ParseNetworkMode accepts "none" or "bridge", case-insensitively.
func ParseNetworkMode(s string) (NetworkMode, error) {
	switch NetworkMode(strings.ToLower(strings.TrimSpace(s))) {
	case NetworkNone:
		return NetworkNone, nil
	case NetworkBridge:
		return NetworkBridge, nil
	default:
		return "", fmt.Errorf("unsupported network mode: %q", s)
	}
}

// DockerConfig is the engine invocation policy shared by every run.
type DockerConfig struct {
	Image       string
	MemoryLimit int64 // bytes
	CPULimit    float64
	Timeout     time.Duration
	NetworkMode NetworkMode
	PoolSize    int
}

// DefaultDockerConfig returns the stock sandbox policy.
func DefaultDockerConfig() DockerConfig {
	return DockerConfig{
		Image:       "challenge-sandbox:latest",
		MemoryLimit: 256 * 1024 * 1024,
		CPULimit:    1.0,
		Timeout:     30 * time.Second,
		NetworkMode: NetworkNone,
		PoolSize:    2,
	}
}

// Validate reports the first field that cannot be handed to the engine.
func (c DockerConfig) Validate() error {
	if strings.TrimSpace(c.Image) == "" {
		return fmt.Errorf("image name is required")
	}
	if c.MemoryLimit <= 0 {
		return fmt.Errorf("memory limit must be positive, got %d", c.MemoryLimit)
	}
	if c.CPULimit <= 0 {
		return fmt.Errorf("cpu limit must be positive, got %v", c.CPULimit)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	// the mode is passed to the engine verbatim
	if c.NetworkMode != NetworkNone && c.NetworkMode != NetworkBridge {
		return fmt.Errorf("unsupported network mode: %q", c.NetworkMode)
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("pool size cannot be negative, got %d", c.PoolSize)
	}
	return nil
}

// nanoCPUs converts fractional cores to the engine's CPU quota unit.
func (c DockerConfig) nanoCPUs() int64 {
	return int64(c.CPULimit * 1e9)
}
