// Package datawrapper is a minimal client for the Datawrapper v3 API,
// covering the endpoints the sync worker needs: folder listing, expanded
// chart details, PNG export, and the existence probe.
package datawrapper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/grafikarchiv/grafikarchiv/pkg/errcodes"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// ListFolders fetches the full folder hierarchy, team and user scoped.
func (c *Client) ListFolders(ctx context.Context) (*FolderList, error) {
	body, err := c.get(ctx, "/folders")
	if err != nil {
		return nil, err
	}

	folders := &FolderList{}
	if err := json.Unmarshal(body, folders); err != nil {
		return nil, errors.Wrap(err, "failed to parse folder listing")
	}

	return folders, nil
}

// GetChart fetches the expanded detail payload for one chart.
func (c *Client) GetChart(ctx context.Context, chartID string) (*ChartDetail, error) {
	body, err := c.get(ctx, fmt.Sprintf("/charts/%s?expand=true", chartID))
	if err != nil {
		return nil, err
	}

	detail := &ChartDetail{}
	if err := json.Unmarshal(body, detail); err != nil {
		return nil, errors.Wrapf(err, "failed to parse chart detail for %s", chartID)
	}

	return detail, nil
}

// ExportPNG fetches the rasterized export of a chart.
func (c *Client) ExportPNG(ctx context.Context, chartID string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("/charts/%s/export/png", chartID))
}

// ChartExists probes whether a chart still exists remotely. A 404 means it
// was deleted; any other failure is an error, not a deletion signal.
func (c *Client) ChartExists(ctx context.Context, chartID string) (bool, error) {
	_, err := c.get(ctx, fmt.Sprintf("/charts/%s", chartID))
	if err != nil {
		if errors.Is(err, errcodes.NotFound("Chart")) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create request for %s", path)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s", path)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errcodes.NotFound("Chart")
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errcodes.RateLimited()
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.Errorf("failed to fetch %s: HTTP %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read response for %s", path)
	}

	return body, nil
}
