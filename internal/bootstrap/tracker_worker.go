package bootstrap

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tracker_server/config"
	"tracker_server/pkg/logger"
)

// Worker runs the background side of the tracker: the label sync
// consumer and the link crawler loop.
type Worker struct {
	deps   *Dependencies
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	zlog   zerolog.Logger
}

// NewWorker builds the background worker.
func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	logger.Init(logger.Config{
		Level:     logger.LevelInfo,
		Component: "tracker-worker",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		zlog:   zlog,
	}, cleanup, nil
}

// Start launches the consumer goroutines and returns immediately.
func (w *Worker) Start() error {
	cfg := w.deps.Config

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.zlog.Info().Str("consumer", cfg.WorkerID).Msg("label sync consumer started")
		if err := w.deps.LabelQueue.Run(w.ctx, cfg.WorkerID, w.deps.LabelSyncService.Apply); err != nil {
			w.zlog.Error().Err(err).Msg("label sync consumer stopped")
		}
	}()

	if w.deps.LinkFetcher != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.zlog.Info().
				Dur("interval", cfg.LinkFetchInterval).
				Int("batch", cfg.LinkFetchBatch).
				Msg("link crawler started")
			w.deps.LinkFetcher.Run(w.ctx, cfg.LinkFetchInterval, cfg.LinkFetchBatch)
		}()
	}

	return nil
}

// Stop cancels all loops and waits for in-flight work to finish.
func (w *Worker) Stop() {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.zlog.Info().Msg("worker stopped")
	case <-time.After(30 * time.Second):
		w.zlog.Warn().Msg("worker stop timed out")
	}
}
