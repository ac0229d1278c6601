// Package fetch downloads gps data from the OSM API, plain web URLs and S3.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fly-io/gpsdl/pkg/errors"
	"github.com/fly-io/gpsdl/pkg/gpx"
	"github.com/fly-io/gpsdl/pkg/security"
)

// PageSize is the number of trackpoints the API returns per page. A shorter
// page ends a bounding box download.
const PageSize = 5000

// DefaultAPIURL is the OSM API 0.6 base.
const DefaultAPIURL = "https://api.openstreetmap.org/api/0.6"

// ObjectOpener opens objects in a bucket store.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
}

// Client implements the gps fetcher over HTTP and S3.
type Client struct {
	httpClient *http.Client
	apiURL     string
	objects    ObjectOpener
	validator  *security.Validator
	userAgent  string
	pageSize   int
}

// NewClient creates a fetch client. objects may be nil, in which case s3://
// URLs fail.
func NewClient(apiURL string, timeout time.Duration, objects ObjectOpener, validator *security.Validator) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if validator == nil {
		validator = security.NewValidator(0)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     strings.TrimRight(apiURL, "/"),
		objects:    objects,
		validator:  validator,
		userAgent:  "gpsdl/1.0",
		pageSize:   PageSize,
	}
}

// FetchByBounds downloads all public trackpoints inside b, page by page.
func (c *Client) FetchByBounds(ctx context.Context, b gpx.Bounds) (*gpx.TrackData, error) {
	if err := b.Validate(); err != nil {
		return nil, errors.Transport("bbox", "", err)
	}

	var result *gpx.TrackData
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Transport("bbox", "", err)
		}

		pageURL := fmt.Sprintf("%s/trackpoints?bbox=%s&page=%d", c.apiURL, b.String(), page)
		slog.Info("fetch_trackpoints_page", "url", pageURL, "page", page)

		data, err := c.getGPX(ctx, pageURL)
		if err != nil {
			if result == nil || ctx.Err() != nil {
				return nil, errors.Transport("bbox", pageURL, err)
			}
			// Keep the pages already read.
			slog.Warn("fetch_trackpoints_partial", "url", pageURL, "pages", page, "error", err)
			result.WasCleanlyParsed = false
			break
		}

		n := data.PointCount()
		if result == nil {
			result = data
		} else {
			result.MergeFrom(data)
		}
		if n < c.pageSize {
			break
		}
	}

	result.FromServer = true
	slog.Info("fetch_trackpoints_complete", "bbox", b.String(), "points", result.PointCount())
	return result, nil
}

// FetchByURL downloads and decodes a gpx document.
func (c *Client) FetchByURL(ctx context.Context, rawURL string) (*gpx.TrackData, error) {
	u, err := c.validator.ValidateURL(rawURL)
	if err != nil {
		return nil, errors.Transport("url", rawURL, err)
	}

	var data *gpx.TrackData
	if u.Scheme == "s3" {
		data, err = c.getObject(ctx, u)
	} else {
		data, err = c.getGPX(ctx, rawURL)
	}
	if err != nil {
		return nil, errors.Transport("url", rawURL, err)
	}

	data.FromServer = c.isServerURL(u)
	slog.Info("fetch_url_complete", "url", rawURL, "points", data.PointCount(), "from_server", data.FromServer)
	return data, nil
}

func (c *Client) getGPX(ctx context.Context, rawURL string) (*gpx.TrackData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/gpx+xml, application/xml;q=0.9, */*;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "http get")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	if err := c.validator.ValidateSize(resp.ContentLength); err != nil {
		return nil, err
	}

	return c.decode(resp.Body)
}

func (c *Client) getObject(ctx context.Context, u *url.URL) (*gpx.TrackData, error) {
	if c.objects == nil {
		return nil, fmt.Errorf("s3 access is not configured")
	}

	body, size, err := c.objects.Open(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	if err := c.validator.ValidateSize(size); err != nil {
		return nil, err
	}
	return c.decode(body)
}

func (c *Client) decode(r io.Reader) (*gpx.TrackData, error) {
	raw, err := io.ReadAll(c.validator.LimitReader(r))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return gpx.Decode(bytes.NewReader(raw))
}

// isServerURL reports whether u points at the configured API or the OSM site.
func (c *Client) isServerURL(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if api, err := url.Parse(c.apiURL); err == nil && strings.EqualFold(api.Hostname(), host) {
		return true
	}
	return host == "openstreetmap.org" || strings.HasSuffix(host, ".openstreetmap.org") ||
		host == "osm.org" || strings.HasSuffix(host, ".osm.org")
}
