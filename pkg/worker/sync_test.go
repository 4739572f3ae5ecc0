package worker

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grafikarchiv/grafikarchiv/pkg/charts"
	"github.com/grafikarchiv/grafikarchiv/pkg/config"
	"github.com/grafikarchiv/grafikarchiv/pkg/datawrapper"
	"github.com/grafikarchiv/grafikarchiv/pkg/migrations"
	"github.com/grafikarchiv/grafikarchiv/pkg/thumbnails"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// fakeRemote serves the publishing API surface the worker talks to:
// folder listing, expanded chart details, PNG exports, and the bare chart
// endpoint used as the existence probe.
type fakeRemote struct {
	mu sync.Mutex

	folders  *datawrapper.FolderList
	details  map[string]string
	failNext map[string]int
	exportOK bool

	detailCalls map[string]int
	probeCalls  map[string]int

	srv *httptest.Server
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()

	r := &fakeRemote{
		folders:     &datawrapper.FolderList{},
		details:     map[string]string{},
		failNext:    map[string]int{},
		exportOK:    true,
		detailCalls: map[string]int{},
		probeCalls:  map[string]int{},
	}
	r.srv = httptest.NewServer(http.HandlerFunc(r.handle))
	t.Cleanup(r.srv.Close)

	return r
}

func (r *fakeRemote) handle(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := req.URL.Path
	switch {
	case path == "/folders":
		body, _ := json.Marshal(r.folders)
		w.Write(body)

	case strings.HasSuffix(path, "/export/png"):
		if !r.exportOK {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		img := image.NewRGBA(image.Rect(0, 0, 200, 100))
		var buf bytes.Buffer
		png.Encode(&buf, img)
		w.Write(buf.Bytes())

	case strings.HasPrefix(path, "/charts/"):
		id := strings.TrimPrefix(path, "/charts/")

		if code := r.failNext[id]; code != 0 {
			delete(r.failNext, id)
			w.WriteHeader(code)
			return
		}

		detail, ok := r.details[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if req.URL.Query().Get("expand") == "true" {
			r.detailCalls[id]++
			w.Write([]byte(detail))
			return
		}
		r.probeCalls[id]++
		w.Write([]byte(`{}`))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (r *fakeRemote) setFolders(list *datawrapper.FolderList) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.folders = list
}

func (r *fakeRemote) setDetail(chartID, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.details[chartID] = body
}

func (r *fakeRemote) removeChart(chartID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.details, chartID)
}

func (r *fakeRemote) setFailNext(chartID string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext[chartID] = code
}

func (r *fakeRemote) detailCallCount(chartID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detailCalls[chartID]
}

func (r *fakeRemote) probeCallCount(chartID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.probeCalls[chartID]
}

func teamTree(subfolders ...*datawrapper.Folder) *datawrapper.FolderList {
	return &datawrapper.FolderList{
		List: []*datawrapper.Folder{
			{
				ID:      "team-1",
				Name:    "RND",
				Type:    datawrapper.FolderTypeTeam,
				Folders: subfolders,
			},
		},
	}
}

func chartDetail(chartID, title string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"title": %q,
		"publicUrl": "https://charts.example.com/%s/",
		"publishedAt": "2026-01-01T09:00:00.000Z",
		"lastModifiedAt": "2026-01-01T10:00:00.000Z",
		"metadata": {
			"describe": {"intro": "Beschreibung."},
			"publish": {"embed-codes": {"embed-method-responsive": "https://charts.example.com/%s/embed"}},
			"custom": {"tags": "karte"}
		}
	}`, chartID, title, chartID, chartID)
}

func unpublishedDetail(chartID, title string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"title": %q,
		"publicUrl": "",
		"publishedAt": null,
		"lastModifiedAt": "2026-01-01T10:00:00.000Z",
		"metadata": {}
	}`, chartID, title)
}

func newTestWorker(t *testing.T) (*Worker, *fakeRemote) {
	t.Helper()

	remote := newFakeRemote(t)

	cfg := &config.Config{
		APIBaseURL:        remote.srv.URL,
		APIToken:          "test-token",
		EmbedScriptURL:    "https://static.example.com/embed.js",
		ExcludedFolders:   []string{"printexport"},
		HTTPTimeout:       5 * time.Second,
		MaxEmbedURLLength: 990,
		MediaDir:          t.TempDir(),
		PollInterval:      time.Minute,
		RootFolderName:    "RND",
		ThumbnailWidth:    80,
	}

	w := New(cfg, newTestDB(t))
	w.now = func() time.Time {
		return time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	}

	return w, remote
}

func TestRunPass_ArchivesNewChart(t *testing.T) {
	w, remote := newTestWorker(t)
	ctx := logger.New().WithContext(context.Background())

	remote.setFolders(teamTree(&datawrapper.Folder{
		ID:   "10",
		Name: "Politik",
		Charts: []*datawrapper.ChartStub{
			{ID: "abc123", Title: "Umfrage", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
		},
	}))
	remote.setDetail("abc123", chartDetail("abc123", "Umfrage"))

	require.NoError(t, w.RunPass(ctx))

	chart, err := w.chartService.RetrieveChart(ctx, charts.RetrieveChartOptions{ChartID: ptr("abc123")})
	require.NoError(t, err)
	assert.Equal(t, "Umfrage", chart.Title)
	assert.Equal(t, "Beschreibung.", chart.Description)
	assert.Equal(t, "karte, Politik", chart.Tags)
	assert.Equal(t, "https://charts.example.com/abc123/embed", chart.IframeURL)
	require.NotNil(t, chart.PublishedDate)

	require.NotNil(t, chart.Thumbnail)
	assert.Equal(t, thumbnails.RelativePath("abc123"), *chart.Thumbnail)
	_, err = os.Stat(filepath.Join(w.config.MediaDir, *chart.Thumbnail))
	assert.NoError(t, err)

	snapshot, err := w.cacheService.Snapshot(ctx)
	require.NoError(t, err)
	require.Contains(t, snapshot, "abc123")
	assert.Equal(t, "2026-01-01T10:00:00.000Z", snapshot["abc123"].LastModifiedAt)
}

func TestRunPass_SecondPassFetchesNothing(t *testing.T) {
	w, remote := newTestWorker(t)
	ctx := logger.New().WithContext(context.Background())

	remote.setFolders(teamTree(&datawrapper.Folder{
		ID:   "10",
		Name: "Politik",
		Charts: []*datawrapper.ChartStub{
			{ID: "abc123", Title: "Umfrage", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
		},
	}))
	remote.setDetail("abc123", chartDetail("abc123", "Umfrage"))

	require.NoError(t, w.RunPass(ctx))
	require.NoError(t, w.RunPass(ctx))

	assert.Equal(t, 1, remote.detailCallCount("abc123"))
}

func TestRunPass_DetectsUpdatedChart(t *testing.T) {
	w, remote := newTestWorker(t)
	ctx := logger.New().WithContext(context.Background())

	remote.setFolders(teamTree(&datawrapper.Folder{
		ID:   "10",
		Name: "Politik",
		Charts: []*datawrapper.ChartStub{
			{ID: "abc123", Title: "Umfrage", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
		},
	}))
	remote.setDetail("abc123", chartDetail("abc123", "Umfrage"))
	require.NoError(t, w.RunPass(ctx))

	remote.setFolders(teamTree(&datawrapper.Folder{
		ID:   "10",
		Name: "Politik",
		Charts: []*datawrapper.ChartStub{
			{ID: "abc123", Title: "Umfrage neu", LastModifiedAt: "2026-01-02T10:00:00.000Z"},
		},
	}))
	remote.setDetail("abc123", chartDetail("abc123", "Umfrage neu"))
	require.NoError(t, w.RunPass(ctx))

	chart, err := w.chartService.RetrieveChart(ctx, charts.RetrieveChartOptions{ChartID: ptr("abc123")})
	require.NoError(t, err)
	assert.Equal(t, "Umfrage neu", chart.Title)
	assert.Equal(t, 2, remote.detailCallCount("abc123"))
}

func TestRunPass_DeletesVanishedChart(t *testing.T) {
	w, remote := newTestWorker(t)
	ctx := logger.New().WithContext(context.Background())

	remote.setFolders(teamTree(&datawrapper.Folder{
		ID:   "10",
		Name: "Politik",
		Charts: []*datawrapper.ChartStub{
			{ID: "keep01", Title: "Bleibt", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
			{ID: "gone01", Title: "Geht", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
		},
	}))
	remote.setDetail("keep01", chartDetail("keep01", "Bleibt"))
	remote.setDetail("gone01", chartDetail("gone01", "Geht"))
	require.NoError(t, w.RunPass(ctx))

	thumbPath := filepath.Join(w.config.MediaDir, thumbnails.RelativePath("gone01"))
	_, err := os.Stat(thumbPath)
	require.NoError(t, err)

	remote.setFolders(teamTree(&datawrapper.Folder{
		ID:   "10",
		Name: "Politik",
		Charts: []*datawrapper.ChartStub{
			{ID: "keep01", Title: "Bleibt", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
		},
	}))
	remote.removeChart("gone01")
	require.NoError(t, w.RunPass(ctx))

	_, err = w.chartService.RetrieveChart(ctx, charts.RetrieveChartOptions{ChartID: ptr("gone01")})
	assert.Error(t, err)

	snapshot, err := w.cacheService.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotContains(t, snapshot, "gone01")
	assert.Contains(t, snapshot, "keep01")

	_, err = os.Stat(thumbPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRunPass_EmptyTreeNeverDeletes(t *testing.T) {
	w, remote := newTestWorker(t)
	ctx := logger.New().WithContext(context.Background())

	remote.setFolders(teamTree(&datawrapper.Folder{
		ID:   "10",
		Name: "Politik",
		Charts: []*datawrapper.ChartStub{
			{ID: "abc123", Title: "Umfrage", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
		},
	}))
	remote.setDetail("abc123", chartDetail("abc123", "Umfrage"))
	require.NoError(t, w.RunPass(ctx))

	// An empty listing means the remote is broken, not that every chart
	// was deleted.
	remote.setFolders(&datawrapper.FolderList{})
	require.NoError(t, w.RunPass(ctx))

	_, err := w.chartService.RetrieveChart(ctx, charts.RetrieveChartOptions{ChartID: ptr("abc123")})
	assert.NoError(t, err)

	snapshot, err := w.cacheService.Snapshot(ctx)
	require.NoError(t, err)
	assert.Contains(t, snapshot, "abc123")
}

func TestRunPass_ExcludedFolderIsSkipped(t *testing.T) {
	w, remote := newTestWorker(t)
	ctx := logger.New().WithContext(context.Background())

	remote.setFolders(teamTree(
		&datawrapper.Folder{
			ID:   "10",
			Name: "Politik",
			Charts: []*datawrapper.ChartStub{
				{ID: "pol01", Title: "Umfrage", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
			},
		},
		&datawrapper.Folder{
			ID:   "20",
			Name: "printexport",
			Folders: []*datawrapper.Folder{
				{
					ID:   "21",
					Name: "print-sub",
					Charts: []*datawrapper.ChartStub{
						{ID: "prt02", Title: "Print Sub", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
					},
				},
			},
			Charts: []*datawrapper.ChartStub{
				{ID: "prt01", Title: "Print", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
			},
		},
	))
	remote.setDetail("pol01", chartDetail("pol01", "Umfrage"))
	remote.setDetail("prt01", chartDetail("prt01", "Print"))
	remote.setDetail("prt02", chartDetail("prt02", "Print Sub"))

	require.NoError(t, w.RunPass(ctx))

	ids, err := w.chartService.ListChartIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pol01"}, ids)

	assert.Zero(t, remote.detailCallCount("prt01"))
	assert.Zero(t, remote.detailCallCount("prt02"))
}

func TestRunPass_UnpublishedChartIsCachedButNotArchived(t *testing.T) {
	w, remote := newTestWorker(t)
	ctx := logger.New().WithContext(context.Background())

	remote.setFolders(teamTree(&datawrapper.Folder{
		ID:   "10",
		Name: "Politik",
		Charts: []*datawrapper.ChartStub{
			{ID: "drf001", Title: "Entwurf", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
		},
	}))
	remote.setDetail("drf001", unpublishedDetail("drf001", "Entwurf"))

	require.NoError(t, w.RunPass(ctx))

	_, err := w.chartService.RetrieveChart(ctx, charts.RetrieveChartOptions{ChartID: ptr("drf001")})
	assert.Error(t, err)

	// The fingerprint is still recorded so the chart is not refetched
	// until it actually changes.
	snapshot, err := w.cacheService.Snapshot(ctx)
	require.NoError(t, err)
	assert.Contains(t, snapshot, "drf001")

	require.NoError(t, w.RunPass(ctx))
	assert.Equal(t, 1, remote.detailCallCount("drf001"))
}

func TestRunPass_TransientFailureRetriedNextPass(t *testing.T) {
	w, remote := newTestWorker(t)
	ctx := logger.New().WithContext(context.Background())

	remote.setFolders(teamTree(&datawrapper.Folder{
		ID:   "10",
		Name: "Politik",
		Charts: []*datawrapper.ChartStub{
			{ID: "abc123", Title: "Umfrage", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
		},
	}))
	remote.setDetail("abc123", chartDetail("abc123", "Umfrage"))
	remote.setFailNext("abc123", http.StatusInternalServerError)

	require.NoError(t, w.RunPass(ctx))

	_, err := w.chartService.RetrieveChart(ctx, charts.RetrieveChartOptions{ChartID: ptr("abc123")})
	assert.Error(t, err)

	snapshot, err := w.cacheService.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotContains(t, snapshot, "abc123")

	require.NoError(t, w.RunPass(ctx))

	chart, err := w.chartService.RetrieveChart(ctx, charts.RetrieveChartOptions{ChartID: ptr("abc123")})
	require.NoError(t, err)
	assert.Equal(t, "Umfrage", chart.Title)
}

func TestRunPass_RateLimitRetriesAfterCooldown(t *testing.T) {
	w, remote := newTestWorker(t)
	ctx := logger.New().WithContext(context.Background())

	remote.setFolders(teamTree(&datawrapper.Folder{
		ID:   "10",
		Name: "Politik",
		Charts: []*datawrapper.ChartStub{
			{ID: "abc123", Title: "Umfrage", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
		},
	}))
	remote.setDetail("abc123", chartDetail("abc123", "Umfrage"))
	remote.setFailNext("abc123", http.StatusTooManyRequests)

	require.NoError(t, w.RunPass(ctx))

	chart, err := w.chartService.RetrieveChart(ctx, charts.RetrieveChartOptions{ChartID: ptr("abc123")})
	require.NoError(t, err)
	assert.Equal(t, "Umfrage", chart.Title)
}

func TestRunPass_ThumbnailFailureIsNotFatal(t *testing.T) {
	w, remote := newTestWorker(t)
	ctx := logger.New().WithContext(context.Background())

	remote.setFolders(teamTree(&datawrapper.Folder{
		ID:   "10",
		Name: "Politik",
		Charts: []*datawrapper.ChartStub{
			{ID: "abc123", Title: "Umfrage", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
		},
	}))
	remote.setDetail("abc123", chartDetail("abc123", "Umfrage"))
	remote.mu.Lock()
	remote.exportOK = false
	remote.mu.Unlock()

	require.NoError(t, w.RunPass(ctx))

	chart, err := w.chartService.RetrieveChart(ctx, charts.RetrieveChartOptions{ChartID: ptr("abc123")})
	require.NoError(t, err)
	assert.Equal(t, "Umfrage", chart.Title)
	assert.Nil(t, chart.Thumbnail)

	snapshot, err := w.cacheService.Snapshot(ctx)
	require.NoError(t, err)
	assert.Contains(t, snapshot, "abc123")
}

func TestRunPass_FullReconciliationRemovesOrphans(t *testing.T) {
	w, remote := newTestWorker(t)
	ctx := logger.New().WithContext(context.Background())

	remote.setFolders(teamTree(&datawrapper.Folder{
		ID:   "10",
		Name: "Politik",
		Charts: []*datawrapper.ChartStub{
			{ID: "abc123", Title: "Umfrage", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
		},
	}))
	remote.setDetail("abc123", chartDetail("abc123", "Umfrage"))

	// A row with no fingerprint and no remote counterpart: incremental
	// diffing can never classify it, only the existence probe can.
	published := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, w.chartService.UpsertChart(ctx, &charts.Chart{
		ChartID:       "orphan",
		Title:         "Verwaist",
		PublishedDate: &published,
	}))

	require.NoError(t, w.RunPass(ctx))

	ids, err := w.chartService.ListChartIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123"}, ids)
}

func TestRunPass_FullReconciliationOncePerDay(t *testing.T) {
	w, remote := newTestWorker(t)
	ctx := logger.New().WithContext(context.Background())

	remote.setFolders(teamTree(&datawrapper.Folder{
		ID:   "10",
		Name: "Politik",
		Charts: []*datawrapper.ChartStub{
			{ID: "abc123", Title: "Umfrage", LastModifiedAt: "2026-01-01T10:00:00.000Z"},
		},
	}))
	remote.setDetail("abc123", chartDetail("abc123", "Umfrage"))

	require.NoError(t, w.RunPass(ctx))
	require.NoError(t, w.RunPass(ctx))
	assert.Equal(t, 1, remote.probeCallCount("abc123"))

	w.now = func() time.Time {
		return time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC)
	}
	require.NoError(t, w.RunPass(ctx))
	assert.Equal(t, 2, remote.probeCallCount("abc123"))
}

func ptr[T any](v T) *T {
	return &v
}
