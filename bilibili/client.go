// Package bilibili is a small client for the two public live-platform endpoints
// the crawler needs: the area room ranking list (JSON) and the room page (HTML).
// It carries no state between calls and performs no retries.
package bilibili

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultListURL      = "https://api.live.bilibili.com/xlive/web-interface/v1/second/getListByArea"
	DefaultRoomPageBase = "https://live.bilibili.com"

	// SortOnline ranks rooms by current online count.
	SortOnline = "online"
	// SortLiveTime ranks rooms by how long they have been live.
	SortLiveTime = "livetime"

	maxListBody = 4 << 20
	maxPageBody = 16 << 20
)

// Client issues list and room-page requests. The zero value talks to the
// production endpoints with http.DefaultClient and no per-request timeout.
type Client struct {
	ListURL      string
	RoomPageBase string
	HTTPClient   *http.Client
	// Timeout bounds each request when > 0, on top of the caller's context.
	Timeout time.Duration
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) listURL() string {
	if c.ListURL != "" {
		return c.ListURL
	}
	return DefaultListURL
}

func (c *Client) roomPageBase() string {
	if c.RoomPageBase != "" {
		return strings.TrimRight(c.RoomPageBase, "/")
	}
	return DefaultRoomPageBase
}

// ListRooms fetches one page of a ranking. A nonzero platform code is returned as
// *APIError; transport failures and non-200 responses are returned as errors. A
// body that does not carry a room list yields a PageMalformed result, not an error.
func (c *Client) ListRooms(ctx context.Context, sort string, page, pageSize int) (PageResult, error) {
	if sort == "" {
		return PageResult{}, fmt.Errorf("sort empty")
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 30
	}
	u, err := url.Parse(c.listURL())
	if err != nil {
		return PageResult{}, fmt.Errorf("invalid list url: %w", err)
	}
	q := u.Query()
	q.Set("sort", sort)
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	q.Set("platform", "web")
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String(), apiHeaders, maxListBody)
	if err != nil {
		return PageResult{}, err
	}
	return ParsePage(body)
}

// FetchRoomPage returns the HTML of a room's live page.
func (c *Client) FetchRoomPage(ctx context.Context, roomID string) (string, error) {
	if roomID == "" {
		return "", fmt.Errorf("roomID empty")
	}
	body, err := c.get(ctx, c.roomPageBase()+"/"+url.PathEscape(roomID), pageHeaders, maxPageBody)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) get(ctx context.Context, target string, headers map[string]string, limit int64) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}

const chromeUA = `"Google Chrome";v="117", "Not;A=Brand";v="8", "Chromium";v="117"`

// Header sets mirror what a desktop browser sends so the platform serves the
// regular page instead of a bot interstitial.
var apiHeaders = map[string]string{
	"Accept":             "application/json, text/plain, */*",
	"Accept-Language":    "zh-CN",
	"Sec-Ch-Ua":          chromeUA,
	"Sec-Ch-Ua-Mobile":   "?0",
	"Sec-Ch-Ua-Platform": `"Windows"`,
	"Sec-Fetch-Dest":     "empty",
	"Sec-Fetch-Mode":     "cors",
	"Sec-Fetch-Site":     "same-site",
	"Referer":            "https://live.bilibili.com/",
	"Referrer-Policy":    "strict-origin-when-cross-origin",
}

var pageHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
	"Accept-Language":           "zh-CN",
	"Cache-Control":             "no-cache",
	"Pragma":                    "no-cache",
	"Sec-Ch-Ua":                 chromeUA,
	"Sec-Ch-Ua-Mobile":          "?0",
	"Sec-Ch-Ua-Platform":        `"Windows"`,
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "same-origin",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
	"Referer":                   "https://live.bilibili.com/all",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
}
