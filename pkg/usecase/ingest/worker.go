package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
	"github.com/cenkalti/backoff/v4"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrQueueFull     = goerr.New("ingest queue is full")
	ErrWorkerStopped = goerr.New("ingest worker is stopped")
)

// Job is one queued provider payload.
type Job struct {
	Owner   model.OwnerID
	Source  model.Source
	Payload []byte

	generation uint64
}

// WorkerConfig tunes the background ingestion worker.
type WorkerConfig struct {
	Count       int
	QueueSize   int
	MaxAttempts int
	// InitialBackoff and MaxBackoff bound the retry delay of retryable
	// failures.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Worker ingests queued payloads on a fixed number of goroutines.
type Worker struct {
	uc     *UseCase
	cfg    WorkerConfig
	queue  chan Job
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool

	// OnResult is called after each job finishes. Tests use it to observe
	// completion.
	OnResult func(job Job, result *Result, err error)
}

func NewWorker(uc *UseCase, cfg WorkerConfig) *Worker {
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}

	return &Worker{
		uc:    uc,
		cfg:   cfg,
		queue: make(chan Job, cfg.QueueSize),
	}
}

// Start launches the workers. They exit when ctx is cancelled or Stop is
// called.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.Count; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
	logging.From(ctx).Info("ingest worker started", "count", w.cfg.Count, "queue_size", w.cfg.QueueSize)
}

// Stop closes the queue and waits for queued jobs to drain.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// Enqueue adds a payload without blocking.
func (w *Worker) Enqueue(owner model.OwnerID, source model.Source, payload []byte) error {
	if err := source.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWorkerStopped
	}

	job := Job{
		Owner:      owner,
		Source:     source,
		Payload:    payload,
		generation: w.uc.fence.acquire(owner),
	}
	select {
	case w.queue <- job:
		return nil
	default:
		w.uc.fence.release(owner)
		return goerr.Wrap(ErrQueueFull, "failed to enqueue record", goerr.V("owner_id", owner))
	}
}

// Forget invalidates queued and in-flight jobs of owner.
func (w *Worker) Forget(owner model.OwnerID) {
	w.uc.Forget(owner)
}

func (w *Worker) run(ctx context.Context, id int) {
	defer w.wg.Done()
	logger := logging.From(ctx).With("worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.queue:
			if !ok {
				return
			}
			result, err := w.process(ctx, job)
			w.uc.fence.release(job.Owner)
			if err != nil {
				logger.Warn("failed to ingest record",
					"owner_id", job.Owner,
					"source", job.Source,
					"error", err,
				)
			}
			if w.OnResult != nil {
				w.OnResult(job, result, err)
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) (*Result, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.InitialBackoff
	b.MaxInterval = w.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.cfg.MaxAttempts-1)), ctx)

	var result *Result
	attempt := 0
	op := func() error {
		attempt++
		if !w.uc.fence.current(job.Owner, job.generation) {
			result = &Result{Skipped: true, Reason: ReasonForgotten}
			return nil
		}

		r, err := w.uc.ingest(ctx, job.Owner, job.Source, job.Payload, job.generation)
		if err == nil {
			result = r
			return nil
		}
		if !model.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		logging.From(ctx).Debug("retrying record ingestion",
			"owner_id", job.Owner, "attempt", attempt, "error", err)
		return err
	}

	if err := backoff.Retry(op, policy); err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return nil, goerr.Wrap(err, "record ingestion failed", goerr.V("attempts", attempt))
	}
	return result, nil
}
