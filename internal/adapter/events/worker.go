package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/nft-market/internal/core/domain"
	"github.com/rl1809/nft-market/internal/port"
)

const (
	publishTimeout  = 5 * time.Second
	publishAttempts = 3
	retryBackoff    = 100 * time.Millisecond
)

// RunWorkers starts n workers that publish events from queue until it is
// closed. The returned WaitGroup is done once every worker has exited.
func RunWorkers(n int, queue <-chan domain.Event, pub port.EventPublisher, logger *slog.Logger) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, queue, pub, logger)
		}(i)
	}
	logger.Info("started event workers", "count", n)
	return &wg
}

func workerLoop(id int, queue <-chan domain.Event, pub port.EventPublisher, logger *slog.Logger) {
	for ev := range queue {
		var err error
		for attempt := 1; attempt <= publishAttempts; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			err = pub.Publish(ctx, ev)
			cancel()
			if err == nil {
				break
			}
			if attempt < publishAttempts {
				time.Sleep(time.Duration(attempt) * retryBackoff)
			}
		}

		if err != nil {
			logger.Error("failed to publish event",
				"worker", id,
				"seq", ev.Seq,
				"type", ev.Type.String(),
				"error", err,
			)
			continue
		}
		logger.Debug("published event", "worker", id, "seq", ev.Seq, "type", ev.Type.String())
	}
}
