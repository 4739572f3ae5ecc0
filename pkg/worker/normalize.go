package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grafikarchiv/grafikarchiv/pkg/charts"
	"github.com/grafikarchiv/grafikarchiv/pkg/datawrapper"
	"github.com/grafikarchiv/grafikarchiv/pkg/errcodes"
	"github.com/grafikarchiv/grafikarchiv/pkg/folders"
	"github.com/robinjoseph08/golib/logger"
)

// Custom metadata field names as the publishing team spells them. The
// archive flag appears under both a German and an English key depending on
// the chart's age.
const (
	fieldComments  = "kommentar"
	fieldTags      = "tags"
	fieldPatch     = "patch"
	fieldEvergreen = "evergreen"
	fieldRegional  = "regional"
	fieldArchiveDE = "archiv"
	fieldArchiveEN = "archive"
)

// normalizeChart maps an expanded remote chart payload onto the local
// model. Unpublished charts are rejected with a not-published error;
// everything else degrades field by field rather than failing the chart.
func (w *Worker) normalizeChart(ctx context.Context, detail *datawrapper.ChartDetail, tree *folders.Tree, ref folders.ChartRef) (*charts.Chart, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"chart_id": detail.ID})

	if detail.PublishedAt == nil || *detail.PublishedAt == "" {
		return nil, errcodes.NotPublished(detail.ID)
	}

	custom := detail.Metadata.Custom

	record := &charts.Chart{
		ChartID:     detail.ID,
		Title:       detail.Title,
		Description: detail.Metadata.Describe.Intro,
		Notes:       w.chartNotes(detail),
		Comments:    custom[fieldComments],
		Tags:        tree.InheritTags(custom[fieldTags], ref.FolderName, w.config.RootFolderName),
		Patch:       flagSet(custom, fieldPatch),
		Evergreen:   flagSet(custom, fieldEvergreen),
		Regional:    flagSet(custom, fieldRegional),
		Archive:     flagSet(custom, fieldArchiveDE) || flagSet(custom, fieldArchiveEN),
		IframeURL:   w.embedURL(log, detail),
		EmbedJS:     w.embedJS(detail),
	}

	record.PublishedDate = parseTimestamp(log, "publishedAt", *detail.PublishedAt)
	record.LastModifiedDate = parseTimestamp(log, "lastModifiedAt", detail.LastModifiedAt)

	return record, nil
}

// chartNotes prefers the annotation layer's notes and falls back to the
// describe section, which is where older charts keep them.
func (w *Worker) chartNotes(detail *datawrapper.ChartDetail) string {
	if notes := detail.Metadata.Annotate.Notes; notes != "" {
		return notes
	}
	return detail.Metadata.Describe.Notes
}

// embedURL resolves the iframe URL through the embed-code fallback chain
// and truncates it to the longest length downstream consumers accept.
func (w *Worker) embedURL(log logger.Logger, detail *datawrapper.ChartDetail) string {
	codes := detail.Metadata.Publish.EmbedCodes

	url := codes["embed-method-responsive"]
	if url == "" {
		url = codes["responsive"]
	}
	if url == "" {
		url = detail.Metadata.Publish.EmbedResponsive
	}
	if url == "" {
		url = detail.PublicURL
	}

	if w.config.MaxEmbedURLLength > 0 && len(url) > w.config.MaxEmbedURLLength {
		log.Warn("embed url truncated", logger.Data{"length": len(url)})
		url = url[:w.config.MaxEmbedURLLength]
	}
	return url
}

// embedJS resolves the script embed snippet, synthesizing one from the
// public URL when the payload carries none.
func (w *Worker) embedJS(detail *datawrapper.ChartDetail) string {
	if snippet := detail.Metadata.Publish.EmbedCodes["embed"]; snippet != "" {
		return snippet
	}
	if snippet := detail.Metadata.Publish.Embed; snippet != "" {
		return snippet
	}
	return fmt.Sprintf(
		`<script src="%s"></script><dw-chart src="%s"></dw-chart>`,
		w.config.EmbedScriptURL, detail.PublicURL,
	)
}

// flagSet reports whether a stringly-typed boolean custom field is set.
func flagSet(custom datawrapper.CustomFields, field string) bool {
	return strings.EqualFold(custom[field], "true")
}

// Timestamp layouts the remote has been observed emitting, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp returns nil on unparseable input so a malformed date never
// blocks archiving the rest of the chart.
func parseTimestamp(log logger.Logger, field, value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	log.Warn("unparseable timestamp", logger.Data{"field": field, "value": value})
	return nil
}
