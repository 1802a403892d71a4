package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"document-index/internal/config"
	"document-index/internal/models"
	"document-index/internal/pipeline"
	"document-index/internal/vectorstore"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Handler processes one job. Returned errors are logged; the entry is
// acknowledged either way.
type Handler func(ctx context.Context, job Job) error

// Ingester runs the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, src models.SourceDocument) (*pipeline.Result, error)
}

// Upserter writes chunks to the vector store.
type Upserter interface {
	Upsert(ctx context.Context, chunks []models.Chunk) (vectorstore.UpsertResult, error)
}

// IngestHandler runs the pipeline for a job and upserts the resulting chunks.
func IngestHandler(ing Ingester, up Upserter) Handler {
	return func(ctx context.Context, job Job) error {
		res, err := ing.Ingest(ctx, job.Source())
		if err != nil {
			return err
		}
		if res.Status != pipeline.StatusIndexed {
			return nil
		}
		_, err = up.Upsert(ctx, res.Chunks)
		return err
	}
}

// Worker consumes a Redis stream through a consumer group and runs a
// bounded number of jobs at a time.
type Worker struct {
	client *redis.Client
	cfg    config.WorkerConfig
	handle Handler
}

func New(client *redis.Client, cfg config.WorkerConfig, handle Handler) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &Worker{client: client, cfg: cfg, handle: handle}
}

// Run reads and processes entries until ctx is cancelled, then waits for
// in-flight jobs to finish. It starts with the consumer's pending entries,
// those read by an earlier run but never acknowledged, before taking new ones.
func (w *Worker) Run(ctx context.Context) error {
	if err := EnsureGroup(ctx, w.client, w.cfg.Stream, w.cfg.Group); err != nil {
		return err
	}
	logger := log.With().Str("stream", w.cfg.Stream).Str("group", w.cfg.Group).Str("consumer", w.cfg.Consumer).Logger()
	logger.Info().Int("concurrency", w.cfg.Concurrency).Msg("Worker started")

	jobs := make(chan redis.XMessage)
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range jobs {
				w.process(ctx, msg)
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
		logger.Info().Msg("Worker stopped")
	}()

	// backlog is the cursor into the pending list; empty once it is drained.
	backlog := "0"
	for {
		if ctx.Err() != nil {
			return nil
		}
		id := ">"
		if backlog != "" {
			id = backlog
		}
		streams, err := w.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.cfg.Group,
			Consumer: w.cfg.Consumer,
			Streams:  []string{w.cfg.Stream, id},
			Count:    int64(w.cfg.Concurrency),
			Block:    w.cfg.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("xreadgroup: %w", err)
		}
		read := 0
		for _, st := range streams {
			for _, msg := range st.Messages {
				select {
				case jobs <- msg:
				case <-ctx.Done():
					return nil
				}
				read++
				if backlog != "" {
					backlog = msg.ID
				}
			}
		}
		if backlog != "" && read == 0 {
			logger.Debug().Msg("Pending entries drained")
			backlog = ""
		}
	}
}

func (w *Worker) process(ctx context.Context, msg redis.XMessage) {
	logger := log.With().Str("entry", msg.ID).Logger()
	defer func() {
		// The entry is acknowledged even when the job failed; there are no retries.
		if err := w.client.XAck(context.WithoutCancel(ctx), w.cfg.Stream, w.cfg.Group, msg.ID).Err(); err != nil {
			logger.Error().Err(err).Msg("Failed to acknowledge entry")
		}
	}()

	job, err := decodeJob(msg)
	if err != nil {
		logger.Warn().Err(err).Msg("Dropping malformed job")
		return
	}
	start := time.Now()
	if err := w.handle(ctx, job); err != nil {
		logger.Error().Err(err).Str("user_id", job.UserID).Str("file", job.DocumentName).Msg("Job failed")
		return
	}
	logger.Info().Str("user_id", job.UserID).Str("file", job.DocumentName).Dur("took", time.Since(start)).Msg("Job done")
}
