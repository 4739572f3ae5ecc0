// Package synccache persists the chart fingerprints one sync pass leaves
// behind for the next, and classifies the drift between the current remote
// listing and that snapshot.
package synccache

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// Snapshot loads the whole cache keyed by chart id.
func (svc *Service) Snapshot(ctx context.Context) (map[string]*Entry, error) {
	entries := []*Entry{}

	err := svc.db.
		NewSelect().
		Model(&entries).
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	snapshot := make(map[string]*Entry, len(entries))
	for _, entry := range entries {
		snapshot[entry.ChartID] = entry
	}

	return snapshot, nil
}

// Put inserts or refreshes the fingerprint for one chart.
func (svc *Service) Put(ctx context.Context, entry *Entry) error {
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	_, err := svc.db.
		NewInsert().
		Model(entry).
		On("CONFLICT (chart_id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("last_modified_at = EXCLUDED.last_modified_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// Delete removes the fingerprint for one chart. Deleting an absent entry
// is not an error.
func (svc *Service) Delete(ctx context.Context, chartID string) error {
	_, err := svc.db.
		NewDelete().
		Model((*Entry)(nil)).
		Where("chart_id = ?", chartID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// RetrieveState returns the sync bookkeeping row, defaulting to an empty
// state when none has been written yet.
func (svc *Service) RetrieveState(ctx context.Context) (*State, error) {
	state := &State{}

	err := svc.db.
		NewSelect().
		Model(state).
		Where("ss.id = 1").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &State{ID: 1}, nil
		}
		return nil, errors.WithStack(err)
	}

	return state, nil
}

// MarkFullSync records the completion time of a full-reconciliation pass.
func (svc *Service) MarkFullSync(ctx context.Context, at time.Time) error {
	state := &State{ID: 1, LastFullSyncAt: &at}

	_, err := svc.db.
		NewInsert().
		Model(state).
		On("CONFLICT (id) DO UPDATE").
		Set("last_full_sync_at = EXCLUDED.last_full_sync_at").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// FullSyncDue reports whether a full-reconciliation pass should run: at
// most one per UTC calendar day.
func FullSyncDue(state *State, now time.Time) bool {
	if state == nil || state.LastFullSyncAt == nil {
		return true
	}
	last := state.LastFullSyncAt.UTC()
	now = now.UTC()
	return last.Year() != now.Year() || last.YearDay() != now.YearDay()
}
