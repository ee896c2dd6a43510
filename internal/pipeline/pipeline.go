package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"panofuse/internal/config"
	"panofuse/internal/logging"
	"panofuse/internal/sink"
	"panofuse/internal/stitch"
	"panofuse/internal/storage"
)

// JobType enumerates supported run variants.
type JobType string

const (
	JobSequential JobType = "sequential"
	JobDual       JobType = "dual"
	JobWatch      JobType = "watch"
)

// Job represents a single stitching request. Dual jobs carry the right
// stream in Options["right"].
type Job struct {
	ID        string         `json:"id"`
	Type      JobType        `json:"type"`
	InputPath string         `json:"input"`
	Output    string         `json:"output"`
	Options   map[string]any `json:"options,omitempty"`
}

// Result captures the outcome of a Job.
type Result struct {
	Job   Job
	Error error
	Meta  map[string]any
}

// Processor executes a job and returns a Result.
type Processor interface {
	Process(ctx context.Context, job Job) Result
}

// Pipeline orchestrates job dispatch across workers.
type Pipeline struct {
	processor Processor
	log       *slog.Logger
	jobs      chan Job
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	store     *storage.Store
	preview   *sink.Preview
	running   atomic.Bool

	// queueMu orders Submit's send against Stop closing jobs.
	queueMu sync.RWMutex

	mu            sync.Mutex
	subs          map[int]chan Result
	frameSubs     map[int]chan stitch.FrameEvent
	nextSubID     int
	nextFrameSubs int
}

// New creates a Pipeline whose workers build drivers from cfg and the
// registered backends.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, store *storage.Store, backends Backends) *Pipeline {
	concurrency := cfg.Processing.ParallelJobs
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		log:       logger,
		jobs:      make(chan Job, concurrency*2),
		cancel:    cancel,
		store:     store,
		preview:   sink.NewPreview(cfg.Output.Quality, 250*time.Millisecond),
		subs:      make(map[int]chan Result),
		frameSubs: make(map[int]chan stitch.FrameEvent),
	}

	p.startOnce.Do(func() {
		p.processor = newRouter(logger, store, cfg, backends, p.preview, p.broadcastFrame)
		for i := 0; i < concurrency; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
		p.running.Store(true)
	})

	return p
}

// Submit adds a job to the processing queue.
func (p *Pipeline) Submit(job Job) error {
	p.queueMu.RLock()
	defer p.queueMu.RUnlock()
	if !p.running.Load() {
		return errors.New("pipeline stopped")
	}
	if p.store != nil {
		optsJSON, _ := json.Marshal(job.Options)
		_ = p.store.RecordRunQueued(storage.RunRecord{
			ID:          job.ID,
			Variant:     string(job.Type),
			Status:      "queued",
			InputPath:   job.InputPath,
			OutputPath:  job.Output,
			OptionsJSON: string(optsJSON),
		})
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return errors.New("job queue is full")
	}
}

// Running reports whether workers accept jobs.
func (p *Pipeline) Running() bool { return p.running.Load() }

// Preview returns the sink holding the latest composite of any run.
func (p *Pipeline) Preview() *sink.Preview { return p.preview }

// Stop signals workers to exit and waits for completion.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.queueMu.Lock()
		p.running.Store(false)
		p.cancel()
		close(p.jobs)
		p.queueMu.Unlock()
		p.wg.Wait()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		for id, ch := range p.frameSubs {
			close(ch)
			delete(p.frameSubs, id)
		}
		p.mu.Unlock()
	})
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			start := time.Now()
			logging.LogRunStart(p.log, string(job.Type), job.ID, job.InputPath, job.Output, job.Options)

			if p.store != nil {
				_ = p.store.RecordRunStart(job.ID)
			}
			res := p.processor.Process(ctx, job)
			duration := time.Since(start)

			status := "completed"
			if res.Error != nil {
				logging.LogRunError(p.log, string(job.Type), job.ID, duration, res.Error, map[string]any{
					"input":   job.InputPath,
					"output":  job.Output,
					"options": job.Options,
				})
				status = "failed"
			} else {
				logging.LogRunComplete(p.log, string(job.Type), job.ID, duration, res.Meta)
			}
			if p.store != nil {
				_ = p.store.RecordRunResult(job.ID, status, res.Meta, errString(res.Error))
			}

			p.broadcast(res)
		}
	}
}

// Subscribe returns a channel for receiving job results and an unsubscribe function.
func (p *Pipeline) Subscribe() (<-chan Result, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Result, 8)
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

// SubscribeFrames streams per-frame events of every run.
func (p *Pipeline) SubscribeFrames() (<-chan stitch.FrameEvent, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextFrameSubs
	p.nextFrameSubs++
	ch := make(chan stitch.FrameEvent, 64)
	p.frameSubs[id] = ch
	unsub := func() {
		p.mu.Lock()
		if c, ok := p.frameSubs[id]; ok {
			close(c)
			delete(p.frameSubs, id)
		}
		p.mu.Unlock()
	}
	return ch, unsub
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (p *Pipeline) broadcast(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- res:
		default:
			p.log.Warn("result channel full", "subscriber", id, "job", res.Job.ID)
		}
	}
}

// broadcastFrame drops events for slow subscribers rather than stalling the
// driver.
func (p *Pipeline) broadcastFrame(ev stitch.FrameEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.frameSubs {
		select {
		case ch <- ev:
		default:
		}
	}
}
