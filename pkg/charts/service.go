package charts

import (
	"context"
	"database/sql"
	"time"

	"github.com/grafikarchiv/grafikarchiv/pkg/errcodes"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveChartOptions struct {
	ChartID *string
}

type ListChartsOptions struct {
	Limit  *int
	Offset *int

	includeTotal bool
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// UpsertChart creates the chart row or updates it in place, keyed by
// chart_id. The thumbnail column is left alone; it is owned by
// SetThumbnail so a failed render never clears a previous preview.
func (svc *Service) UpsertChart(ctx context.Context, chart *Chart) error {
	now := time.Now()
	if chart.CreatedAt.IsZero() {
		chart.CreatedAt = now
	}
	chart.UpdatedAt = now

	_, err := svc.db.
		NewInsert().
		Model(chart).
		On("CONFLICT (chart_id) DO UPDATE").
		Set("updated_at = EXCLUDED.updated_at").
		Set("title = EXCLUDED.title").
		Set("description = EXCLUDED.description").
		Set("notes = EXCLUDED.notes").
		Set("comments = EXCLUDED.comments").
		Set("tags = EXCLUDED.tags").
		Set("patch = EXCLUDED.patch").
		Set("evergreen = EXCLUDED.evergreen").
		Set("regional = EXCLUDED.regional").
		Set("archive = EXCLUDED.archive").
		Set("published_date = EXCLUDED.published_date").
		Set("last_modified_date = EXCLUDED.last_modified_date").
		Set("iframe_url = EXCLUDED.iframe_url").
		Set("embed_js = EXCLUDED.embed_js").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// SetThumbnail records (or clears) the local thumbnail reference.
func (svc *Service) SetThumbnail(ctx context.Context, chartID string, thumbnail *string) error {
	chart := &Chart{ChartID: chartID, Thumbnail: thumbnail, UpdatedAt: time.Now()}

	_, err := svc.db.
		NewUpdate().
		Model(chart).
		Column("thumbnail", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Chart")
		}
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveChart(ctx context.Context, opts RetrieveChartOptions) (*Chart, error) {
	chart := &Chart{}

	q := svc.db.
		NewSelect().
		Model(chart)

	if opts.ChartID != nil {
		q = q.Where("c.chart_id = ?", *opts.ChartID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Chart")
		}
		return nil, errors.WithStack(err)
	}

	return chart, nil
}

func (svc *Service) ListCharts(ctx context.Context, opts ListChartsOptions) ([]*Chart, error) {
	c, _, err := svc.listChartsWithTotal(ctx, opts)
	return c, errors.WithStack(err)
}

func (svc *Service) ListChartsWithTotal(ctx context.Context, opts ListChartsOptions) ([]*Chart, int, error) {
	opts.includeTotal = true
	return svc.listChartsWithTotal(ctx, opts)
}

func (svc *Service) listChartsWithTotal(ctx context.Context, opts ListChartsOptions) ([]*Chart, int, error) {
	allCharts := []*Chart{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&allCharts).
		Order("c.published_date DESC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return allCharts, total, nil
}

// ListChartIDs returns every locally stored chart id, for the
// full-reconciliation existence probe.
func (svc *Service) ListChartIDs(ctx context.Context) ([]string, error) {
	ids := []string{}

	err := svc.db.
		NewSelect().
		Model((*Chart)(nil)).
		Column("chart_id").
		Order("chart_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return ids, nil
}

// DeleteChart removes the chart row. The caller is responsible for the
// thumbnail file and the sync-cache entry.
func (svc *Service) DeleteChart(ctx context.Context, chartID string) error {
	_, err := svc.db.
		NewDelete().
		Model((*Chart)(nil)).
		Where("chart_id = ?", chartID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}
