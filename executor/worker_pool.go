package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"challengerunner/metrics"

	logrus "github.com/sirupsen/logrus"
)

var (
	ErrQueueFull  = errors.New("job queue full")
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// Verifier runs one verification. *Runner is the production implementation.
type Verifier interface {
	RunVerification(ctx context.Context, challengeDir, submission string) (*VerificationResult, error)
}

// Job represents a queued verification request
type Job struct {
	ctx          context.Context
	challengeDir string
	submission   string
	queuedAt     time.Time
	result       chan jobResult
}

type jobResult struct {
	result *VerificationResult
	err    error
}

// WorkerPool bounds how many verifications run at once and how many may wait.
type WorkerPool struct {
	jobs        chan Job
	verifier    Verifier
	logger      *logrus.Logger
	maxWorkers  int
	maxJobCount int
	wg          sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts maxWorkers workers behind a queue of maxJobCount.
func NewWorkerPool(verifier Verifier, logger *logrus.Logger, maxWorkers, maxJobCount int) (*WorkerPool, error) {
	if maxWorkers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", maxWorkers)
	}
	if maxJobCount < 0 {
		return nil, fmt.Errorf("queue size cannot be negative, got %d", maxJobCount)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	pool := &WorkerPool{
		jobs:        make(chan Job, maxJobCount),
		verifier:    verifier,
		logger:      logger,
		maxWorkers:  maxWorkers,
		maxJobCount: maxJobCount,
	}

	for i := 0; i < maxWorkers; i++ {
		pool.wg.Add(1)
		go pool.worker(i + 1)
	}
	return pool, nil
}

// worker processes jobs from the queue until it is closed
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	p.logger.Debugf("Worker %d started", id)

	for job := range p.jobs {
		metrics.QueueDepth.Set(float64(len(p.jobs)))
		p.executeJob(id, job)
	}
	p.logger.Debugf("Worker %d shutting down", id)
}

func (p *WorkerPool) executeJob(workerID int, job Job) {
	// the submitter gave up while the job was queued
	if err := job.ctx.Err(); err != nil {
		job.result <- jobResult{err: err}
		return
	}

	p.logger.WithFields(logrus.Fields{
		"worker":     workerID,
		"queue_wait": time.Since(job.queuedAt),
	}).Debug("Executing verification")

	result, err := p.verifier.RunVerification(job.ctx, job.challengeDir, job.submission)
	job.result <- jobResult{result: result, err: err}
}

// Submit queues a verification and waits for its result. It never blocks on
// a full queue: ErrQueueFull is returned instead.
func (p *WorkerPool) Submit(ctx context.Context, challengeDir, submission string) (*VerificationResult, error) {
	job := Job{
		ctx:          ctx,
		challengeDir: challengeDir,
		submission:   submission,
		queuedAt:     time.Now(),
		result:       make(chan jobResult, 1),
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		metrics.QueueDepth.Set(float64(len(p.jobs)))
	default:
		p.mu.RUnlock()
		return nil, fmt.Errorf("%w, max capacity: %d", ErrQueueFull, p.maxJobCount)
	}
	p.mu.RUnlock()

	select {
	case res := <-job.result:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.logger.Info("Shutting down worker pool...")
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	metrics.QueueDepth.Set(0)
	p.logger.Info("Worker pool shutdown complete")
}
