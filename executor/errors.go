package executor

import (
	"errors"
	"fmt"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// Infrastructure failures. A failing submission is never one of these; it is
// reported as a VerificationResult.
var (
	ErrDockerNotAvailable      = errors.New("docker is not installed or not running")
	ErrImageNotFound           = errors.New("docker image not found")
	ErrContainerCreationFailed = errors.New("failed to create container")
	ErrExecutionFailed         = errors.New("container execution failed")
	ErrCleanupFailed           = errors.New("failed to cleanup container")
	ErrWorkspace               = errors.New("failed to prepare workspace")
)

// translateDockerErr folds SDK connection errors onto ErrDockerNotAvailable.
func translateDockerErr(err error) error {
	if err == nil {
		return nil
	}
	if client.IsErrConnectionFailed(err) {
		return fmt.Errorf("%w: %w", ErrDockerNotAvailable, err)
	}
	return err
}

// translateImageErr additionally maps a 404 to ErrImageNotFound. Only use it
// for calls whose sole missing object can be the image.
func translateImageErr(err error) error {
	if err != nil && errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrImageNotFound, err)
	}
	return translateDockerErr(err)
}
