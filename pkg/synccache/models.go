package synccache

import (
	"time"

	"github.com/uptrace/bun"
)

// Entry is the durable fingerprint of a previously seen chart: its title
// and the raw lastModifiedAt string as reported by the listing. The raw
// strings are ISO-8601 and therefore compare lexicographically.
type Entry struct {
	bun.BaseModel `bun:"table:sync_cache,alias:sc"`

	ChartID        string    `bun:"chart_id,pk" json:"chart_id"`
	Title          string    `bun:"title" json:"title"`
	LastModifiedAt string    `bun:"last_modified_at" json:"last_modified_at"`
	CreatedAt      time.Time `bun:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bun:"updated_at" json:"updated_at"`
}

// State is the single-row sync bookkeeping record.
type State struct {
	bun.BaseModel `bun:"table:sync_state,alias:ss"`

	ID             int        `bun:"id,pk" json:"id"`
	LastFullSyncAt *time.Time `bun:"last_full_sync_at" json:"last_full_sync_at"`
}
