package executor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerEngine talks to the local Docker daemon through the Engine API.
// The underlying client is safe for concurrent use by in-flight runs.
type DockerEngine struct {
	cli *client.Client
}

// NewDockerEngine connects using DOCKER_HOST and friends from the environment.
func NewDockerEngine() (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerEngine{cli: cli}, nil
}

func (e *DockerEngine) Ping(ctx context.Context) error {
	if _, err := e.cli.Ping(ctx); err != nil {
		return translateDockerErr(err)
	}
	return nil
}

func (e *DockerEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	_, _, err := e.cli.ImageInspectWithRaw(ctx, image)
	if err == nil {
		return true, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return false, translateDockerErr(err)
}

func (e *DockerEngine) Create(ctx context.Context, name string, spec ContainerSpec) (string, error) {
	pids := spec.PidsLimit
	config := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Cmd,
		Env:        spec.Env,
		WorkingDir: spec.WorkDir,
		Labels:     spec.Labels,
		Tty:        false,
	}
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory:     spec.MemoryLimit,
			MemorySwap: spec.MemoryLimit, // no swap
			NanoCPUs:   spec.NanoCPUs,
			PidsLimit:  &pids,
		},
		NetworkMode:    container.NetworkMode(spec.NetworkMode.String()),
		ReadonlyRootfs: true,
		Mounts: []mount.Mount{
			{
				Type:     mount.TypeBind,
				Source:   spec.MountSource,
				Target:   spec.MountTarget,
				ReadOnly: false, // cargo writes build artifacts here
			},
		},
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=64m",
		},
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
	}

	resp, err := e.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		return "", translateImageErr(err)
	}
	return resp.ID, nil
}

func (e *DockerEngine) Start(ctx context.Context, id string) error {
	return translateDockerErr(e.cli.ContainerStart(ctx, id, container.StartOptions{}))
}

func (e *DockerEngine) Wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := e.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return status.StatusCode, fmt.Errorf("wait %s: %s", shortID(id), status.Error.Message)
		}
		return status.StatusCode, nil
	case err := <-errCh:
		return 0, translateDockerErr(err)
	}
}

func (e *DockerEngine) Logs(ctx context.Context, id string) (string, string, error) {
	rc, err := e.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", translateDockerErr(err)
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("failed to read container logs: %w", err)
	}
	return stdout.String(), stderr.String(), nil
}

func (e *DockerEngine) Kill(ctx context.Context, id string) error {
	return translateDockerErr(e.cli.ContainerKill(ctx, id, "SIGKILL"))
}

func (e *DockerEngine) List(ctx context.Context, labelKey, labelValue string) ([]ContainerSummary, error) {
	containers, err := e.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", labelKey+"="+labelValue)),
	})
	if err != nil {
		return nil, translateDockerErr(err)
	}

	summaries := make([]ContainerSummary, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		summaries = append(summaries, ContainerSummary{
			ID:      c.ID,
			Name:    name,
			Created: time.Unix(c.Created, 0),
			Labels:  c.Labels,
		})
	}
	return summaries, nil
}

func (e *DockerEngine) Remove(ctx context.Context, id string) error {
	return translateDockerErr(e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true}))
}

func (e *DockerEngine) Close() error {
	return e.cli.Close()
}
