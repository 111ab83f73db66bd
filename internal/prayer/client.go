// Package prayer fetches the daily prayer schedule for a city.
package prayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultBaseURL = "https://api.myquran.com/v1"

var ErrLookupFailed = errors.New("prayer lookup failed")

// Schedule holds the five daily prayer times as returned by the service.
type Schedule struct {
	Subuh   string `json:"subuh"`
	Dzuhur  string `json:"dzuhur"`
	Ashar   string `json:"ashar"`
	Maghrib string `json:"maghrib"`
	Isya    string `json:"isya"`
}

type scheduleResponse struct {
	Status bool `json:"status"`
	Data   *struct {
		Jadwal *Schedule `json:"jadwal"`
	} `json:"data"`
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	group   singleflight.Group
}

func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Today returns today's schedule for city. Concurrent calls for the same
// city share one request, bounded by the client timeout rather than by any
// single caller's context.
func (c *Client) Today(ctx context.Context, city string) (Schedule, error) {
	city = strings.ToLower(strings.TrimSpace(city))
	if city == "" {
		return Schedule{}, fmt.Errorf("%w: empty city", ErrLookupFailed)
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(city, func() (interface{}, error) {
		return c.fetch(fetchCtx, city)
	})
	select {
	case <-ctx.Done():
		return Schedule{}, fmt.Errorf("%w: %w", ErrLookupFailed, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			c.logger.Warn("prayer lookup failed", zap.String("city", city), zap.Error(res.Err))
			return Schedule{}, res.Err
		}
		return res.Val.(Schedule), nil
	}
}

func (c *Client) fetch(ctx context.Context, city string) (Schedule, error) {
	endpoint := fmt.Sprintf("%s/sholat/jadwal/%s/today", c.baseURL, url.PathEscape(city))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Schedule{}, fmt.Errorf("%w: unexpected status %d", ErrLookupFailed, resp.StatusCode)
	}

	var body scheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Schedule{}, fmt.Errorf("%w: decode response: %w", ErrLookupFailed, err)
	}
	if !body.Status || body.Data == nil || body.Data.Jadwal == nil {
		return Schedule{}, fmt.Errorf("%w: no schedule for %q", ErrLookupFailed, city)
	}

	s := *body.Data.Jadwal
	if s.Subuh == "" || s.Dzuhur == "" || s.Ashar == "" || s.Maghrib == "" || s.Isya == "" {
		return Schedule{}, fmt.Errorf("%w: incomplete schedule for %q", ErrLookupFailed, city)
	}
	return s, nil
}

// Format renders a schedule as a chat reply.
func Format(city string, s Schedule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Jadwal Sholat di %s hari ini:\n", strings.ToUpper(city))
	fmt.Fprintf(&b, "📌 Subuh: %s\n", s.Subuh)
	fmt.Fprintf(&b, "📌 Dzuhur: %s\n", s.Dzuhur)
	fmt.Fprintf(&b, "📌 Ashar: %s\n", s.Ashar)
	fmt.Fprintf(&b, "📌 Maghrib: %s\n", s.Maghrib)
	fmt.Fprintf(&b, "📌 Isya: %s", s.Isya)
	return b.String()
}
