package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"challengerunner/metrics"

	logrus "github.com/sirupsen/logrus"
)

const (
	// killTimeout and cleanupTimeout bound engine calls made after the run's
	// own context may already be gone.
	killTimeout    = 10 * time.Second
	cleanupTimeout = 30 * time.Second
	refillTimeout  = time.Minute
)

// Runner executes submissions in sandbox containers, one container and one
// workspace per run. It is safe for concurrent use.
type Runner struct {
	engine        Engine
	config        DockerConfig
	pool          *WarmPool
	logger        *logrus.Logger
	workspaceRoot string
	now           func() time.Time

	mu       sync.Mutex
	closed   bool
	inflight map[string]struct{} // runs and warm handles not in the pool
	refills  sync.WaitGroup
}

type Option func(*Runner)

// WithEngine replaces the Docker engine, mostly for tests.
func WithEngine(e Engine) Option {
	return func(r *Runner) { r.engine = e }
}

func WithLogger(l *logrus.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithWorkspaceRoot sets the host directory that holds per-run workspaces.
// It must be visible to the Docker daemon for the bind mount to work.
func WithWorkspaceRoot(dir string) Option {
	return func(r *Runner) { r.workspaceRoot = dir }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner validates cfg, connects to the engine and checks it answers.
// An unreachable engine is reported as ErrDockerNotAvailable.
func NewRunner(ctx context.Context, cfg DockerConfig, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid docker config: %w", err)
	}

	r := &Runner{config: cfg, inflight: make(map[string]struct{})}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logrus.StandardLogger()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.workspaceRoot == "" {
		r.workspaceRoot = os.TempDir()
	}
	if r.engine == nil {
		engine, err := NewDockerEngine()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDockerNotAvailable, err)
		}
		r.engine = engine
	}

	if err := r.engine.Ping(ctx); err != nil {
		r.engine.Close()
		if errors.Is(err, ErrDockerNotAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDockerNotAvailable, err)
	}

	r.pool = NewWarmPool(cfg.PoolSize)
	r.logger.WithFields(logrus.Fields{
		"image":   cfg.Image,
		"memory":  cfg.MemoryLimit,
		"cpus":    cfg.CPULimit,
		"timeout": cfg.Timeout,
		"network": cfg.NetworkMode,
		"pool":    cfg.PoolSize,
	}).Info("Runner initialized")
	return r, nil
}

func (r *Runner) Config() DockerConfig { return r.config }

func (r *Runner) Pool() *WarmPool { return r.pool }

func (r *Runner) WorkspaceRoot() string { return r.workspaceRoot }

// Ping checks the engine is still reachable.
func (r *Runner) Ping(ctx context.Context) error {
	return r.engine.Ping(ctx)
}

// CheckImage fails with ErrImageNotFound when the sandbox image is not
// present locally.
func (r *Runner) CheckImage(ctx context.Context) error {
	ok, err := r.engine.ImageExists(ctx, r.config.Image)
	if err != nil {
		return fmt.Errorf("failed to inspect image %s: %w", r.config.Image, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrImageNotFound, r.config.Image)
	}
	return nil
}

// RunVerification builds challengeDir plus submission in a fresh workspace,
// runs the test suite in a sandbox container and classifies the output.
//
// A returned error means no verdict could be produced (workspace, engine or
// cancellation failure). Failing, non-compiling, panicking, timed-out and
// OOM-killed submissions all come back as a result with a nil error. The
// container and workspace are removed on every path.
func (r *Runner) RunVerification(ctx context.Context, challengeDir, submission string) (*VerificationResult, error) {
	run, err := r.prepare(ctx, challengeDir, submission)
	defer func() { r.release(run) }()
	if err != nil {
		return nil, err
	}

	start := r.now()
	err = r.engine.Start(ctx, run.id)
	if err != nil && run.warm {
		// the handle may have been swept by another process
		r.logger.WithFields(logrus.Fields{
			"run":   run.name,
			"error": err,
		}).Warn("Warm container failed to start, retrying cold")
		metrics.WarmPoolHits.WithLabelValues("stale").Inc()
		r.release(run)

		run, err = r.prepareCold(ctx, challengeDir, submission)
		if err != nil {
			return nil, err
		}
		start = r.now()
		err = r.engine.Start(ctx, run.id)
	}

	log := r.logger.WithFields(logrus.Fields{
		"run":  run.name,
		"warm": run.warm,
	})
	if err != nil {
		metrics.RunErrorsTotal.WithLabelValues("start").Inc()
		log.WithError(err).Error("Failed to start container")
		return nil, fmt.Errorf("%w: start: %w", ErrExecutionFailed, err)
	}

	exitCode, timedOut, err := r.wait(ctx, run.id)
	if err != nil {
		metrics.RunErrorsTotal.WithLabelValues("wait").Inc()
		log.WithError(err).Error("Failed waiting for container")
		return nil, err
	}
	if timedOut {
		result := runtimeErrorResult(&RuntimeError{Kind: RuntimeTimeout}, r.now().Sub(start))
		log.WithField("timeout", r.config.Timeout).Warn("Execution timeout, container killed")
		r.observe(result)
		return result, nil
	}

	stdout, stderr, err := r.engine.Logs(ctx, run.id)
	if err != nil {
		metrics.RunErrorsTotal.WithLabelValues("logs").Inc()
		log.WithError(err).Error("Failed to collect container logs")
		return nil, fmt.Errorf("%w: logs: %w", ErrExecutionFailed, err)
	}

	result := applyExitCode(ParseOutput(stdout, stderr, r.now().Sub(start)), exitCode)
	log.WithFields(logrus.Fields{
		"exit_code": exitCode,
		"outcome":   result.OutcomeLabel(),
		"passed":    result.TestsPassed,
		"failed":    result.TestsFailed,
		"duration":  result.Duration,
	}).Info("Verification completed")
	r.observe(result)
	return result, nil
}

// applyExitCode lets the container's exit status override the parser. An
// OOM kill leaves no reliable output, and a non-zero exit that produced no
// diagnostics and no tests is still a failure.
func applyExitCode(result *VerificationResult, exitCode int64) *VerificationResult {
	if exitCode == exitCodeOOMKilled {
		oom := runtimeErrorResult(&RuntimeError{Kind: RuntimeOutOfMemory}, result.Duration)
		oom.Stdout, oom.Stderr = result.Stdout, result.Stderr
		oom.ResourceLimitHit = LimitMemory
		return oom
	}
	if _, ran := result.Outcome.(TestsRan); ran && exitCode != 0 && result.TestsTotal == 0 {
		unknown := runtimeErrorResult(&RuntimeError{Kind: RuntimeUnknown, Stderr: result.Stderr}, result.Duration)
		unknown.Stdout, unknown.Stderr = result.Stdout, result.Stderr
		unknown.ResourceLimitHit = result.ResourceLimitHit
		return unknown
	}
	return result
}

func (r *Runner) observe(result *VerificationResult) {
	label := result.OutcomeLabel()
	metrics.VerificationsTotal.WithLabelValues(label).Inc()
	metrics.RunDuration.WithLabelValues(label).Observe(float64(result.Duration.Milliseconds()))
}

// preparedRun is a container ready to start plus its workspace. Fields are
// set as soon as the matching resource exists so a partial failure can still
// be cleaned up.
type preparedRun struct {
	name string
	id   string
	dir  string
	warm bool
}

func (r *Runner) prepare(ctx context.Context, challengeDir, submission string) (preparedRun, error) {
	if run, ok := r.drawWarm(); ok {
		if err := populateWorkspace(run.dir, challengeDir, submission); err != nil {
			metrics.RunErrorsTotal.WithLabelValues("workspace").Inc()
			return run, fmt.Errorf("%w: %w", ErrWorkspace, err)
		}
		return run, nil
	}
	return r.prepareCold(ctx, challengeDir, submission)
}

// drawWarm takes a handle from the pool and marks it in flight. A handle
// whose workspace has disappeared is destroyed and reported as a miss.
func (r *Runner) drawWarm() (preparedRun, bool) {
	r.mu.Lock()
	name, ok := r.pool.Get()
	if ok {
		r.inflight[name] = struct{}{}
	}
	r.mu.Unlock()
	if !ok {
		metrics.WarmPoolHits.WithLabelValues("miss").Inc()
		return preparedRun{}, false
	}
	metrics.WarmPoolIdle.Set(float64(r.pool.Available()))
	r.scheduleRefill()

	// warm containers are addressed by name
	run := preparedRun{name: name, id: name, dir: r.workspacePath(name), warm: true}
	if _, err := os.Stat(run.dir); err != nil {
		r.logger.WithFields(logrus.Fields{
			"run":   name,
			"error": err,
		}).Warn("Warm workspace missing, discarding handle")
		metrics.WarmPoolHits.WithLabelValues("stale").Inc()
		r.release(run)
		return preparedRun{}, false
	}
	metrics.WarmPoolHits.WithLabelValues("hit").Inc()
	return run, true
}

func (r *Runner) prepareCold(ctx context.Context, challengeDir, submission string) (preparedRun, error) {
	run := preparedRun{name: newRunName()}
	r.track(run.name)

	dir, err := createWorkspaceDir(r.workspaceRoot, run.name)
	run.dir = dir
	if err == nil {
		err = populateWorkspace(dir, challengeDir, submission)
	}
	if err != nil {
		metrics.RunErrorsTotal.WithLabelValues("workspace").Inc()
		return run, fmt.Errorf("%w: %w", ErrWorkspace, err)
	}

	run.id, err = r.create(ctx, run.name, dir, false)
	return run, err
}

// release destroys a run's container, then its workspace, and forgets it.
func (r *Runner) release(run preparedRun) {
	if run.id != "" {
		r.removeContainer(run.id)
	}
	if run.dir != "" {
		r.removeWorkspace(run.dir)
	}
	r.untrack(run.name)
}

func (r *Runner) track(name string) {
	r.mu.Lock()
	r.inflight[name] = struct{}{}
	r.mu.Unlock()
}

func (r *Runner) untrack(name string) {
	r.mu.Lock()
	delete(r.inflight, name)
	r.mu.Unlock()
}

// owns reports whether name is a live run or a warm handle of this runner,
// idle or in flight. The sweep and the purge never touch those.
func (r *Runner) owns(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[name]
	return ok || r.pool.Contains(name)
}

func (r *Runner) workspacePath(name string) string {
	return filepath.Join(r.workspaceRoot, name)
}

func (r *Runner) create(ctx context.Context, name, dir string, warm bool) (string, error) {
	labels := map[string]string{containerLabelKey: containerLabelValue}
	if warm {
		labels[warmLabelKey] = warmLabelValue
	}

	began := time.Now()
	id, err := r.engine.Create(ctx, name, r.containerSpec(dir, labels))
	if err != nil {
		metrics.RunErrorsTotal.WithLabelValues("create").Inc()
		r.logger.WithFields(logrus.Fields{
			"run":   name,
			"image": r.config.Image,
			"error": err,
		}).Error("Failed to create container")
		return "", fmt.Errorf("%w: %w", ErrContainerCreationFailed, err)
	}
	metrics.ContainerCreationTime.Observe(float64(time.Since(began).Milliseconds()))

	r.logger.WithFields(logrus.Fields{
		"run":       name,
		"container": shortID(id),
		"warm":      warm,
	}).Debug("Container created")
	return id, nil
}

func (r *Runner) containerSpec(workspace string, labels map[string]string) ContainerSpec {
	return ContainerSpec{
		Image:       r.config.Image,
		Cmd:         verificationCmd,
		Env:         verificationEnv,
		WorkDir:     ContainerWorkDir,
		MountSource: workspace,
		MountTarget: ContainerWorkDir,
		Labels:      labels,
		MemoryLimit: r.config.MemoryLimit,
		NanoCPUs:    r.config.nanoCPUs(),
		PidsLimit:   pidsLimit,
		NetworkMode: r.config.NetworkMode,
	}
}

type waitResult struct {
	code int64
	err  error
}

// wait races the container's exit against the configured timeout. On
// timeout the container is killed once and timedOut is true. Cancellation
// of ctx itself also kills the container but is reported as an error.
func (r *Runner) wait(ctx context.Context, id string) (exitCode int64, timedOut bool, err error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	done := make(chan waitResult, 1)
	go func() {
		code, err := r.engine.Wait(waitCtx, id)
		done <- waitResult{code: code, err: err}
	}()

	select {
	case res := <-done:
		// a wait that failed because the deadline fired belongs to the timeout path
		if res.err == nil || waitCtx.Err() == nil {
			if res.err != nil {
				return 0, false, fmt.Errorf("%w: wait: %w", ErrExecutionFailed, res.err)
			}
			return res.code, false, nil
		}
	case <-waitCtx.Done():
	}

	r.kill(id)
	if ctx.Err() != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrExecutionFailed, ctx.Err())
	}
	return 0, true, nil
}

func (r *Runner) kill(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()
	if err := r.engine.Kill(ctx, id); err != nil {
		// removal is forced anyway
		r.logger.WithFields(logrus.Fields{
			"container": shortID(id),
			"error":     err,
		}).Warn("Failed to kill container")
	}
}

// Prewarm creates warm containers until the pool is full and returns how
// many it added.
func (r *Runner) Prewarm(ctx context.Context) (int, error) {
	added := 0
	for missing := r.pool.MaxSize() - r.pool.Available(); missing > 0; missing-- {
		if r.isClosed() {
			break
		}
		ok, err := r.addWarm(ctx)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	r.logger.WithFields(logrus.Fields{
		"added":     added,
		"available": r.pool.Available(),
	}).Info("Warm pool filled")
	return added, nil
}

// addWarm creates one container with an empty workspace and offers it to
// the pool, destroying both when the pool refuses.
func (r *Runner) addWarm(ctx context.Context) (bool, error) {
	name := newRunName()
	r.track(name)
	dir, err := createWorkspaceDir(r.workspaceRoot, name)
	if err != nil {
		r.release(preparedRun{name: name, dir: dir})
		return false, fmt.Errorf("%w: %w", ErrWorkspace, err)
	}
	id, err := r.create(ctx, name, dir, true)
	if err != nil {
		r.release(preparedRun{name: name, dir: dir})
		return false, err
	}

	r.mu.Lock()
	accepted := r.pool.Return(name)
	delete(r.inflight, name)
	r.mu.Unlock()
	if !accepted {
		r.removeContainer(id)
		r.removeWorkspace(dir)
		return false, nil
	}
	metrics.WarmPoolIdle.Set(float64(r.pool.Available()))
	return true, nil
}

func (r *Runner) scheduleRefill() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.refills.Add(1)
	go func() {
		defer r.refills.Done()
		ctx, cancel := context.WithTimeout(context.Background(), refillTimeout)
		defer cancel()
		if _, err := r.addWarm(ctx); err != nil {
			r.logger.WithError(err).Warn("Failed to refill warm pool")
		}
	}()
}

func (r *Runner) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Shutdown stops refilling, destroys every idle warm container and closes
// the engine connection. In-flight runs are not waited for.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.refills.Wait()

	handles := r.pool.Drain()
	for _, name := range handles {
		if err := r.engine.Remove(ctx, name); err != nil {
			r.logger.WithFields(logrus.Fields{
				"run":   name,
				"error": fmt.Errorf("%w: %w", ErrCleanupFailed, err),
			}).Warn("Failed to remove warm container")
		}
		r.removeWorkspace(r.workspacePath(name))
	}
	metrics.WarmPoolIdle.Set(0)
	r.logger.WithField("drained", len(handles)).Info("Runner shut down")
	return r.engine.Close()
}
