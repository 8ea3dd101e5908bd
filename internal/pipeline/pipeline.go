package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"sync"
	"time"

	"log/slog"

	"imgdiff/internal/logging"
	"imgdiff/internal/storage"
)

// EventType enumerates job lifecycle stages.
type EventType string

const (
	EventQueued   EventType = "queued"
	EventStarted  EventType = "started"
	EventFinished EventType = "finished"
	EventFailed   EventType = "failed"
)

// Request carries per-job options that override the runner's defaults.
type Request struct {
	Mode       string // "", "none", "fast", "thorough"
	OutputPath string // explicit composite destination; "" uses the runner's output dir
}

// Job represents a single comparison request.
type Job struct {
	ID      string
	Left    string
	Right   string
	Request Request
}

// Result captures the outcome of a completed comparison.
type Result struct {
	Mode       string
	Badness    int64
	OffsetA    image.Point
	OffsetB    image.Point
	TimedOut   bool
	OutputPath string
	Duration   time.Duration
}

// Event is what subscribers receive as jobs move through the pipeline.
// Result is non-nil only for EventFinished.
type Event struct {
	Type   EventType
	Job    Job
	Result *Result
	Err    error
}

// Executor runs one comparison. A timed-out highlight is not an error; the
// executor reports it through Result.TimedOut.
type Executor func(ctx context.Context, job Job) (*Result, error)

// Pipeline orchestrates comparison dispatch across workers.
type Pipeline struct {
	exec      Executor
	log       *slog.Logger
	jobs      chan Job
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	stopOnce  sync.Once
	store     *storage.Store
	mu        sync.Mutex
	subs      map[int]chan Event
	nextSubID int
}

// New creates a Pipeline with the given concurrency and compare runner.
// store may be nil to disable history recording.
func New(ctx context.Context, concurrency int, exec Executor, logger *slog.Logger, store *storage.Store) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		exec:   exec,
		log:    logger,
		jobs:   make(chan Job, concurrency*2),
		cancel: cancel,
		store:  store,
		subs:   make(map[int]chan Event),
	}

	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	return p
}

// Submit adds a job to the processing queue. The queued event goes out
// before workers can pick the job up, so subscribers always see queued
// ahead of started.
func (p *Pipeline) Submit(job Job) error {
	if p.store != nil {
		_ = p.store.RecordQueued(storage.Comparison{
			ID:    job.ID,
			Left:  job.Left,
			Right: job.Right,
			Mode:  job.Request.Mode,
		})
	}
	p.broadcast(Event{Type: EventQueued, Job: job})

	select {
	case p.jobs <- job:
		return nil
	default:
		err := errors.New("job queue is full")
		if p.store != nil {
			_ = p.store.RecordFailed(job.ID, err.Error(), 0)
		}
		p.broadcast(Event{Type: EventFailed, Job: job, Err: err})
		return err
	}
}

// EnqueueAndWait submits job and blocks until it finishes or ctx is done.
func (p *Pipeline) EnqueueAndWait(ctx context.Context, job Job) (*Result, error) {
	events, unsubscribe := p.Subscribe()
	defer unsubscribe()

	if err := p.Submit(job); err != nil {
		return nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil, errors.New("pipeline stopped before completion")
			}
			if ev.Job.ID != job.ID {
				continue
			}
			switch ev.Type {
			case EventFinished:
				return ev.Result, nil
			case EventFailed:
				return nil, ev.Err
			}
		}
	}
}

// Stop signals workers to exit and waits for completion.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		close(p.jobs)
		p.wg.Wait()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	})
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(ctx, job)
		}
	}
}

func (p *Pipeline) run(ctx context.Context, job Job) {
	start := time.Now()

	logging.LogCompareStart(p.log, job.ID, job.Left, job.Right, job.Request.Mode)
	if p.store != nil {
		_ = p.store.RecordStarted(job.ID)
	}
	p.broadcast(Event{Type: EventStarted, Job: job})

	res, err := p.exec(ctx, job)
	duration := time.Since(start)

	if err != nil {
		logging.LogCompareError(p.log, job.ID, duration, err)
		if p.store != nil {
			_ = p.store.RecordFailed(job.ID, err.Error(), duration.Milliseconds())
		}
		p.broadcast(Event{Type: EventFailed, Job: job, Err: err})
		return
	}

	res.Duration = duration
	logging.LogCompareComplete(p.log, job.ID, duration, res.Badness)
	if p.store != nil {
		_ = p.store.RecordFinished(job.ID, storage.Finish{
			Badness:    res.Badness,
			OffsetAX:   res.OffsetA.X,
			OffsetAY:   res.OffsetA.Y,
			OffsetBX:   res.OffsetB.X,
			OffsetBY:   res.OffsetB.Y,
			DurationMS: duration.Milliseconds(),
			OutputPath: res.OutputPath,
		})
	}
	p.broadcast(Event{Type: EventFinished, Job: job, Result: res})
}

// Subscribe returns a channel for receiving job events and an unsubscribe function.
func (p *Pipeline) Subscribe() (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Event, 16)
	p.subs[id] = ch
	unsub := func() {
		p.mu.Lock()
		if c, ok := p.subs[id]; ok {
			close(c)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	}
	return ch, unsub
}

func (p *Pipeline) broadcast(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			p.log.Warn("event channel full", "subscriber", id, "job", ev.Job.ID)
		}
	}
}

// NewID returns a unique-enough job identifier.
func NewID(prefix string) string {
	ts := time.Now().UTC().Format("20060102T150405")
	return fmt.Sprintf("%s-%s-%04d", prefix, ts, rand.Intn(10000))
}
