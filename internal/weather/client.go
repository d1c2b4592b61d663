// Package weather looks up historical hourly weather for a photo's capture
// time and place, using the open-meteo archive API.
//
// Enrichment is best effort. Enricher never returns an error; it returns an
// Outcome that either carries all three values (temperature, humidity,
// description) or none of them, plus the reason when none.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the open-meteo historical archive host.
	DefaultBaseURL = "https://archive-api.open-meteo.com"

	// DefaultTimeout bounds one archive request.
	DefaultTimeout = 10 * time.Second

	archivePath  = "/v1/archive"
	hourlyFields = "temperature_2m,relative_humidity_2m,weathercode"
)

// Client queries the archive API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a Client. Empty baseURL and zero timeout select the defaults.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// HourlyResponse is the subset of the archive response this package reads.
// Series values are pointers because the API reports missing hours as null.
type HourlyResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Hourly    struct {
		Time             []string   `json:"time"`
		Temperature2m    []*float64 `json:"temperature_2m"`
		RelativeHumidity []*float64 `json:"relative_humidity_2m"`
		WeatherCode      []*int     `json:"weathercode"`
	} `json:"hourly"`
}

// Hourly fetches the hourly series for one day (YYYY-MM-DD) at a location.
// The timezone is resolved by the API from the coordinates.
func (c *Client) Hourly(ctx context.Context, lat, lon float64, date string) (*HourlyResponse, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("start_date", date)
	q.Set("end_date", date)
	q.Set("hourly", hourlyFields)
	q.Set("timezone", "auto")

	reqURL := c.baseURL + archivePath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read weather response: %w", err)
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Str("date", date).
		Dur("duration", time.Since(start)).
		Msg("Weather archive response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("weather API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var out HourlyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse weather response: %w", err)
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
