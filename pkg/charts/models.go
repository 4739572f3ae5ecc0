package charts

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Chart is the locally archived copy of a remote published chart. A row
// exists iff the chart was observed remotely with a publish timestamp and
// has not since been observed absent.
type Chart struct {
	bun.BaseModel `bun:"table:charts,alias:c"`

	ChartID          string     `bun:"chart_id,pk" json:"chart_id"`
	Title            string     `bun:"title" json:"title"`
	Description      string     `bun:"description" json:"description"`
	Notes            string     `bun:"notes" json:"notes"`
	Comments         string     `bun:"comments" json:"comments"`
	Tags             string     `bun:"tags" json:"tags"`
	Patch            bool       `bun:"patch" json:"patch"`
	Evergreen        bool       `bun:"evergreen" json:"evergreen"`
	Regional         bool       `bun:"regional" json:"regional"`
	Archive          bool       `bun:"archive" json:"archive"`
	PublishedDate    *time.Time `bun:"published_date" json:"published_date"`
	LastModifiedDate *time.Time `bun:"last_modified_date" json:"last_modified_date"`
	IframeURL        string     `bun:"iframe_url" json:"iframe_url"`
	EmbedJS          string     `bun:"embed_js" json:"embed_js"`
	Thumbnail        *string    `bun:"thumbnail" json:"thumbnail"`
	CreatedAt        time.Time  `bun:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `bun:"updated_at" json:"updated_at"`
}

// TagList returns the comma-separated tags as a trimmed slice.
func (c *Chart) TagList() []string {
	if c.Tags == "" {
		return nil
	}
	tags := []string{}
	for _, tag := range strings.Split(c.Tags, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
