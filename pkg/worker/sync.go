package worker

import (
	"context"
	"time"

	"github.com/grafikarchiv/grafikarchiv/pkg/errcodes"
	"github.com/grafikarchiv/grafikarchiv/pkg/folders"
	"github.com/grafikarchiv/grafikarchiv/pkg/synccache"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// processStatus is the typed outcome of processing a single chart. It is
// what keeps "never abort the batch" explicit: the pass inspects the
// status instead of interpreting errors as control flow.
type processStatus int

const (
	statusProcessed processStatus = iota
	statusSkipNotPublished
	statusSkipTransient
	statusRateLimited
)

// RunPass executes one reconciliation pass: fetch the folder tree, diff
// the candidate charts against the cache, process new and updated charts
// one at a time, apply deletions, and run the daily full reconciliation
// when it is due. No single chart failure aborts the pass.
func (w *Worker) RunPass(ctx context.Context) error {
	log := logger.FromContext(ctx)
	log.Info("starting sync pass")

	list, err := w.client.ListFolders(ctx)
	if err != nil {
		// Remote unavailable this tick. Skip the pass; deleting anything
		// based on a failed listing would cascade an outage into data loss.
		log.Err(err).Error("folder listing error; skipping pass")
		return nil
	}

	tree := folders.Build(list)
	if tree.IsEmpty() {
		log.Warn("folder tree is empty; skipping pass")
		return nil
	}

	refs := tree.ChartRefs(w.config.ExcludedFolders)
	log.Info("fetched folder tree", logger.Data{"charts": len(refs)})

	refByID := make(map[string]folders.ChartRef, len(refs))
	observed := make([]synccache.Observation, 0, len(refs))
	for _, ref := range refs {
		refByID[ref.ChartID] = ref
		observed = append(observed, synccache.Observation{
			ChartID:        ref.ChartID,
			Title:          ref.Title,
			LastModifiedAt: ref.LastModifiedAt,
		})
	}

	snapshot, err := w.cacheService.Snapshot(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	diff := synccache.Diff(observed, snapshot)
	log.Info("diff complete", logger.Data{
		"new":       len(diff.New),
		"updated":   len(diff.Updated),
		"deleted":   len(diff.Deleted),
		"unchanged": len(diff.Unchanged),
	})

	changed := append(append([]synccache.Observation{}, diff.New...), diff.Updated...)
	for _, obs := range changed {
		w.processObservation(ctx, tree, refByID[obs.ChartID], obs)
	}

	for _, chartID := range diff.Deleted {
		if err := w.deleteChart(ctx, chartID); err != nil {
			log.Err(err).Error("delete chart error", logger.Data{"chart_id": chartID})
		}
	}

	state, err := w.cacheService.RetrieveState(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if synccache.FullSyncDue(state, w.now()) {
		if err := w.runFullReconciliation(ctx); err != nil {
			log.Err(err).Error("full reconciliation error")
		}
	}

	log.Info("finished sync pass")
	return nil
}

// processObservation drives one chart through detail fetch, normalization,
// persistence, and thumbnail rendering, then records its fingerprint. A
// rate-limited chart gets one retry after the cooldown; everything else is
// at most logged and skipped.
func (w *Worker) processObservation(ctx context.Context, tree *folders.Tree, ref folders.ChartRef, obs synccache.Observation) {
	log := logger.FromContext(ctx).Data(logger.Data{"chart_id": obs.ChartID})

	status := w.processChart(ctx, tree, ref)
	if status == statusRateLimited {
		log.Warn("rate limited; cooling down", logger.Data{"cooldown": w.config.RateLimitCooldown.String()})
		w.sleep(ctx, w.config.RateLimitCooldown)
		status = w.processChart(ctx, tree, ref)
	}

	switch status {
	case statusProcessed, statusSkipNotPublished:
		// Unpublished charts still exist remotely, so they are fingerprinted
		// too; publishing later bumps lastModifiedAt and reclassifies them
		// as updated.
		err := w.cacheService.Put(ctx, &synccache.Entry{
			ChartID:        obs.ChartID,
			Title:          obs.Title,
			LastModifiedAt: obs.LastModifiedAt,
		})
		if err != nil {
			log.Err(err).Error("cache put error")
		}
	case statusSkipTransient, statusRateLimited:
		// No fingerprint: the chart stays classified as new/updated and is
		// retried on the next pass.
		log.Warn("chart skipped this pass")
	}
}

func (w *Worker) processChart(ctx context.Context, tree *folders.Tree, ref folders.ChartRef) processStatus {
	log := logger.FromContext(ctx).Data(logger.Data{"chart_id": ref.ChartID})

	w.sleep(ctx, w.config.RequestPacing)

	detail, err := w.client.GetChart(ctx, ref.ChartID)
	if err != nil {
		if errors.Is(err, errcodes.RateLimited()) {
			return statusRateLimited
		}
		// A 404 here means the chart vanished between listing and fetch;
		// the next pass will classify it as deleted.
		log.Err(err).Error("chart detail error")
		return statusSkipTransient
	}

	record, err := w.normalizeChart(ctx, detail, tree, ref)
	if err != nil {
		if errors.Is(err, errcodes.NotPublished(ref.ChartID)) {
			log.Info("chart is not published; skipping")
			return statusSkipNotPublished
		}
		log.Err(err).Error("chart normalization error")
		return statusSkipTransient
	}

	if err := w.chartService.UpsertChart(ctx, record); err != nil {
		log.Err(err).Error("chart upsert error")
		return statusSkipTransient
	}
	log.Info("chart persisted", logger.Data{"title": record.Title})

	// Thumbnail failures are warnings: the metadata row is already saved
	// and a preview can be rendered on a later pass.
	raw, err := w.client.ExportPNG(ctx, ref.ChartID)
	if err != nil {
		if errors.Is(err, errcodes.RateLimited()) {
			return statusRateLimited
		}
		log.Warn("thumbnail export failed", logger.Data{"err": err.Error()})
		return statusProcessed
	}
	relPath, err := w.pipeline.Generate(ref.ChartID, raw)
	if err != nil {
		log.Warn("thumbnail generation failed", logger.Data{"err": err.Error()})
		return statusProcessed
	}
	if err := w.chartService.SetThumbnail(ctx, ref.ChartID, &relPath); err != nil {
		log.Warn("thumbnail reference update failed", logger.Data{"err": err.Error()})
	}

	return statusProcessed
}

// deleteChart removes a chart's row, its cache fingerprint, and its
// thumbnail file. A missing thumbnail file is tolerated.
func (w *Worker) deleteChart(ctx context.Context, chartID string) error {
	log := logger.FromContext(ctx).Data(logger.Data{"chart_id": chartID})

	if err := w.chartService.DeleteChart(ctx, chartID); err != nil {
		return errors.WithStack(err)
	}
	if err := w.cacheService.Delete(ctx, chartID); err != nil {
		return errors.WithStack(err)
	}
	if err := w.pipeline.Remove(chartID); err != nil {
		log.Warn("thumbnail removal failed", logger.Data{"err": err.Error()})
	}

	log.Info("chart deleted")
	return nil
}

// runFullReconciliation probes every locally stored chart's continued
// remote existence, independent of the folder-tree listing, and removes
// the ones the remote reports gone. It catches charts moved outside any
// tracked folder that an incremental pass would never see again.
func (w *Worker) runFullReconciliation(ctx context.Context) error {
	log := logger.FromContext(ctx)
	log.Info("starting full reconciliation")

	ids, err := w.chartService.ListChartIDs(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	removed := 0
	for _, chartID := range ids {
		w.sleep(ctx, w.config.RequestPacing)

		exists, err := w.client.ChartExists(ctx, chartID)
		if err != nil && errors.Is(err, errcodes.RateLimited()) {
			w.sleep(ctx, w.config.RateLimitCooldown)
			exists, err = w.client.ChartExists(ctx, chartID)
		}
		if err != nil {
			// Transient failure is not a deletion signal.
			log.Err(err).Error("existence probe error", logger.Data{"chart_id": chartID})
			continue
		}
		if exists {
			continue
		}

		if err := w.deleteChart(ctx, chartID); err != nil {
			log.Err(err).Error("delete chart error", logger.Data{"chart_id": chartID})
			continue
		}
		removed++
	}

	if err := w.cacheService.MarkFullSync(ctx, w.now()); err != nil {
		return errors.WithStack(err)
	}

	log.Info("finished full reconciliation", logger.Data{"probed": len(ids), "removed": removed})
	return nil
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
