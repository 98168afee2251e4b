package executor

import (
	"testing"
	"time"
)

func TestDefaultDockerConfig(t *testing.T) {
	cfg := DefaultDockerConfig()

	if cfg.MemoryLimit != 256*1024*1024 {
		t.Fatalf("expected 256 MiB, got %d", cfg.MemoryLimit)
	}
	if cfg.CPULimit != 1.0 || cfg.nanoCPUs() != 1_000_000_000 {
		t.Fatalf("expected one core, got %v (%d nano)", cfg.CPULimit, cfg.nanoCPUs())
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.Timeout)
	}
	if cfg.NetworkMode != NetworkNone {
		t.Fatalf("expected network none, got %s", cfg.NetworkMode)
	}
	if cfg.PoolSize != 2 {
		t.Fatalf("expected pool size 2, got %d", cfg.PoolSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
}

func TestDockerConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DockerConfig)
	}{
		{"empty image", func(c *DockerConfig) { c.Image = " " }},
		{"zero memory", func(c *DockerConfig) { c.MemoryLimit = 0 }},
		{"negative cpu", func(c *DockerConfig) { c.CPULimit = -1 }},
		{"zero timeout", func(c *DockerConfig) { c.Timeout = 0 }},
		{"bad network", func(c *DockerConfig) { c.NetworkMode = "host" }},
		{"unnormalised network", func(c *DockerConfig) { c.NetworkMode = "NONE" }},
		{"padded network", func(c *DockerConfig) { c.NetworkMode = " bridge" }},
		{"negative pool", func(c *DockerConfig) { c.PoolSize = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDockerConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestParseNetworkMode(t *testing.T) {
	tests := map[string]NetworkMode{
		"none":     NetworkNone,
		" Bridge ": NetworkBridge,
		"NONE":     NetworkNone,
	}
	for in, want := range tests {
		got, err := ParseNetworkMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseNetworkMode(%q): expected %s, got %s (%v)", in, want, got, err)
		}
	}
	if _, err := ParseNetworkMode("host"); err == nil {
		t.Fatalf("expected host networking to be rejected")
	}
}

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		result *VerificationResult
		want   string
	}{
		{testsResult(2, 0, true, 0), "passed"},
		{testsResult(1, 1, true, 0), "failed"},
		{testsResult(0, 0, true, 0), "failed"},
		{testsResult(2, 0, false, 0), "failed"},
		{compileErrorResult(&CompileError{Message: "x"}, 0), "compile_error"},
		{runtimeErrorResult(&RuntimeError{Kind: RuntimeTimeout}, 0), "timeout"},
		{runtimeErrorResult(&RuntimeError{Kind: RuntimeOutOfMemory}, 0), "out_of_memory"},
	}
	for _, tt := range tests {
		if got := tt.result.OutcomeLabel(); got != tt.want {
			t.Fatalf("expected %s, got %s", tt.want, got)
		}
	}
}

func TestRuntimeErrorString(t *testing.T) {
	re := &RuntimeError{Kind: RuntimePanic, Message: "boom"}
	if re.String() != "panicked: boom" {
		t.Fatalf("unexpected string %q", re.String())
	}
	ce := &CompileError{Message: "mismatched types", File: "src/lib.rs", Line: 3, Column: 7}
	if ce.String() != "src/lib.rs:3:7: mismatched types" {
		t.Fatalf("unexpected string %q", ce.String())
	}
}
