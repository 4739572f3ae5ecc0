// Package worker runs the synchronization loop that keeps the local chart
// archive consistent with the remote publishing service.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/grafikarchiv/grafikarchiv/pkg/charts"
	"github.com/grafikarchiv/grafikarchiv/pkg/config"
	"github.com/grafikarchiv/grafikarchiv/pkg/datawrapper"
	"github.com/grafikarchiv/grafikarchiv/pkg/synccache"
	"github.com/grafikarchiv/grafikarchiv/pkg/thumbnails"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

type Worker struct {
	config *config.Config
	log    logger.Logger

	client       *datawrapper.Client
	chartService *charts.Service
	cacheService *synccache.Service
	pipeline     *thumbnails.Pipeline

	// now is swapped out in tests to pin the full-reconciliation gate.
	now func() time.Time

	shutdown chan struct{}
	done     chan struct{}
}

func New(cfg *config.Config, db *bun.DB) *Worker {
	return &Worker{
		config: cfg,
		log:    logger.New(),

		client:       datawrapper.New(cfg.APIBaseURL, cfg.APIToken, cfg.HTTPTimeout),
		chartService: charts.NewService(db),
		cacheService: synccache.NewService(db),
		pipeline:     thumbnails.NewPipeline(cfg.MediaDir, cfg.ThumbnailWidth),

		now: time.Now,

		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go w.run()
}

// run is the scheduler loop: one reconciliation pass, then a fixed sleep,
// forever. Pass failures never stop the loop; only Shutdown does.
func (w *Worker) run() {
	timer := time.NewTimer(0)

	for {
		select {
		case <-w.shutdown:
			w.done <- struct{}{}
			return
		case <-timer.C:
			id, err := uuid.NewRandom()
			if err != nil {
				w.log.Err(err).Error("new uuid error")
				timer.Reset(w.config.PollInterval)
				continue
			}
			log := w.log.ID(id.String()).Root(logger.Data{"pass_id": id.String()})
			ctx := log.WithContext(context.Background())

			if err := w.RunPass(ctx); err != nil {
				log.Err(err).Error("sync pass error")
			}

			timer.Reset(w.config.PollInterval)
		}
	}
}

func (w *Worker) Shutdown() {
	close(w.shutdown)
	<-w.done
}
