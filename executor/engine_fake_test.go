package executor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	logrus "github.com/sirupsen/logrus"
)

// fakeEngine records every call and plays back canned results.
type fakeEngine struct {
	mu sync.Mutex

	pingErr   error
	createErr error
	startErr  error
	waitErr   error
	logsErr   error
	listErr   error
	removeErr map[string]error
	startErrs map[string]error

	imageExists bool
	exitCode    int64
	blockWait   bool
	stdout      string
	stderr      string
	listed      []ContainerSummary
	onStart     func(spec ContainerSpec)

	specs   map[string]ContainerSpec
	created []string
	started []string
	killed  []string
	removed []string
	logs    int
	closed  int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		specs:     make(map[string]ContainerSpec),
		removeErr: make(map[string]error),
		startErrs: make(map[string]error),
	}
}

func (f *fakeEngine) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	return f.imageExists, nil
}

func (f *fakeEngine) Create(ctx context.Context, name string, spec ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	id := "id-" + name
	f.created = append(f.created, name)
	// warm containers are later addressed by name
	f.specs[id] = spec
	f.specs[name] = spec
	return id, nil
}

func (f *fakeEngine) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	f.started = append(f.started, id)
	spec := f.specs[id]
	hook := f.onStart
	err := f.startErr
	if e, ok := f.startErrs[id]; ok {
		err = e
	}
	f.mu.Unlock()

	if hook != nil {
		hook(spec)
	}
	return err
}

func (f *fakeEngine) Wait(ctx context.Context, id string) (int64, error) {
	if f.blockWait {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return f.exitCode, f.waitErr
}

func (f *fakeEngine) Logs(ctx context.Context, id string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs++
	return f.stdout, f.stderr, f.logsErr
}

func (f *fakeEngine) Kill(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, id)
	return nil
}

func (f *fakeEngine) List(ctx context.Context, labelKey, labelValue string) ([]ContainerSummary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []ContainerSummary
	for _, c := range f.listed {
		if c.Labels[labelKey] == labelValue {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeEngine) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return f.removeErr[id]
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeEngine) snapshot() (created, started, killed, removed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...),
		append([]string(nil), f.started...),
		append([]string(nil), f.killed...),
		append([]string(nil), f.removed...)
}

func (f *fakeEngine) specFor(id string) ContainerSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.specs[id]
}

var errEngine = errors.New("engine exploded")

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRunner(t *testing.T, engine *fakeEngine, mutate func(*DockerConfig), opts ...Option) *Runner {
	t.Helper()
	cfg := DefaultDockerConfig()
	cfg.PoolSize = 0
	if mutate != nil {
		mutate(&cfg)
	}
	opts = append([]Option{
		WithEngine(engine),
		WithLogger(quietLogger()),
		WithWorkspaceRoot(t.TempDir()),
	}, opts...)

	runner, err := NewRunner(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return runner
}
