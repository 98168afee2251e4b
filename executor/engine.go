package executor

import (
	"context"
	"time"
)

// Engine is the slice of the container engine the runner needs. DockerEngine
// is the production implementation; tests substitute a fake.
type Engine interface {
	Ping(ctx context.Context) error
	ImageExists(ctx context.Context, image string) (bool, error)
	Create(ctx context.Context, name string, spec ContainerSpec) (string, error)
	Start(ctx context.Context, id string) error
	// Wait blocks until the container stops and returns its exit code.
	Wait(ctx context.Context, id string) (int64, error)
	// Logs returns the container's stdout and stderr separately.
	Logs(ctx context.Context, id string) (stdout, stderr string, err error)
	Kill(ctx context.Context, id string) error
	List(ctx context.Context, labelKey, labelValue string) ([]ContainerSummary, error)
	// Remove force-removes a container, running or not.
	Remove(ctx context.Context, id string) error
	Close() error
}

// ContainerSpec is everything that varies between sandbox containers.
type ContainerSpec struct {
	Image       string
	Cmd         []string
	Env         []string
	WorkDir     string
	MountSource string
	MountTarget string
	Labels      map[string]string
	MemoryLimit int64
	NanoCPUs    int64
	PidsLimit   int64
	NetworkMode NetworkMode
}

// ContainerSummary is one entry of Engine.List.
type ContainerSummary struct {
	ID      string
	Name    string
	Created time.Time
	Labels  map[string]string
}

// shortID returns a shortened container ID for logging
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
