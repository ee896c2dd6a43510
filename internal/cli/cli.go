package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"panofuse/internal/config"
	"panofuse/internal/pipeline"
	"panofuse/internal/server"
	"panofuse/internal/storage"

	"github.com/google/uuid"
)

// interruptGrace bounds how long a foreground command waits for a run to
// flush its final canvas after an interrupt.
const interruptGrace = 30 * time.Second

type pipelineClient interface {
	Submit(job pipeline.Job) error
	Subscribe() (<-chan pipeline.Result, func())
}

type backendLister interface {
	Names() map[string][]string
	HasDisplay() bool
}

type serverFunc func(ctx context.Context, cfg config.Server, store *storage.Store, pipe pipelineClient, log *slog.Logger) error

func defaultServe(ctx context.Context, cfg config.Server, store *storage.Store, pipe pipelineClient, log *slog.Logger) error {
	real, ok := pipe.(*pipeline.Pipeline)
	if !ok {
		return fmt.Errorf("pipeline does not support server operation")
	}
	return server.New(cfg, store, real, log).Start(ctx)
}

// Root carries the shared state of every command.
type Root struct {
	pipeline pipelineClient
	cfg      *config.Config
	log      *slog.Logger
	store    *storage.Store
	backends backendLister
	serveFn  serverFunc
}

func NewRoot(pl *pipeline.Pipeline, cfg *config.Config, logger *slog.Logger, store *storage.Store, backends backendLister) *Root {
	return &Root{
		pipeline: pl,
		cfg:      cfg,
		log:      logger,
		store:    store,
		backends: backends,
		serveFn:  defaultServe,
	}
}

// enqueueAndWait submits job and blocks until its result arrives. After ctx
// is cancelled the run is given interruptGrace to finish and save.
func (r *Root) enqueueAndWait(ctx context.Context, job pipeline.Job) (map[string]any, error) {
	resCh, unsubscribe := r.pipeline.Subscribe()
	defer unsubscribe()
	if err := r.enqueue(ctx, job); err != nil {
		return nil, err
	}

	done := ctx.Done()
	var grace <-chan time.Time
	for {
		select {
		case <-done:
			done = nil
			grace = time.After(interruptGrace)
			r.log.Info("interrupt received, waiting for run to finish", "id", job.ID)
		case <-grace:
			return nil, ctx.Err()
		case res, ok := <-resCh:
			if !ok {
				return nil, fmt.Errorf("pipeline stopped before completion")
			}
			if res.Job.ID == job.ID {
				return res.Meta, res.Error
			}
		}
	}
}

func (r *Root) enqueue(ctx context.Context, job pipeline.Job) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := r.pipeline.Submit(job); err != nil {
		return err
	}

	r.log.Info("job queued", "type", job.Type, "id", job.ID, "input", job.InputPath)
	return nil
}

func newID(prefix string) string {
	ts := time.Now().UTC().Format("20060102T150405")
	return fmt.Sprintf("%s-%s-%s", prefix, ts, uuid.NewString()[:8])
}

// printSummary writes the run meta in a stable order.
func printSummary(meta map[string]any) {
	if len(meta) == 0 {
		return
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("Run summary:\n")
	for _, k := range keys {
		fmt.Printf("  %s: %v\n", strings.ReplaceAll(k, "_", " "), meta[k])
	}
}
