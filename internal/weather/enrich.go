package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const captureLayout = "2006:01:02 15:04:05"

// Location is a point on the globe in decimal degrees.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Conditions is the weather at one hour.
type Conditions struct {
	TemperatureC float64
	HumidityPct  float64
	Code         int
	Description  string
}

// Reasons an Outcome carries no Conditions.
const (
	ReasonNoLocation  = "no GPS"
	ReasonNoTime      = "no capture time"
	ReasonBadTime     = "unparseable capture time"
	ReasonRequest     = "archive request failed"
	ReasonMissingHour = "hour missing from archive response"
	ReasonDisabled    = "weather lookup disabled"
)

// Outcome is the result of one enrichment attempt. Conditions is nil when
// enrichment was skipped or failed; Reason then says why, and Err holds the
// underlying error if there was one.
type Outcome struct {
	Conditions *Conditions
	Reason     string
	Err        error
}

// Enriched reports whether conditions were found.
func (o Outcome) Enriched() bool {
	return o.Conditions != nil
}

// Enricher attaches archive weather to a capture time and place.
type Enricher struct {
	client *Client
}

// NewEnricher creates an Enricher. A nil client disables lookups; every
// call then returns ReasonDisabled.
func NewEnricher(client *Client) *Enricher {
	return &Enricher{client: client}
}

// Enrich looks up the weather at loc during the hour of captureTime
// (YYYY:MM:DD HH:MM:SS, local to the location). No request is made when
// either input is missing or the time does not parse.
func (e *Enricher) Enrich(ctx context.Context, loc *Location, captureTime string) Outcome {
	if loc == nil {
		return Outcome{Reason: ReasonNoLocation}
	}
	if captureTime == "" {
		return Outcome{Reason: ReasonNoTime}
	}
	ts, err := time.Parse(captureLayout, captureTime)
	if err != nil {
		return Outcome{Reason: ReasonBadTime, Err: err}
	}
	if e == nil || e.client == nil {
		return Outcome{Reason: ReasonDisabled}
	}

	date := ts.Format("2006-01-02")
	hour := ts.Hour()

	resp, err := e.client.Hourly(ctx, loc.Latitude, loc.Longitude, date)
	if err != nil {
		log.Warn().Err(err).
			Float64("lat", loc.Latitude).
			Float64("lon", loc.Longitude).
			Str("date", date).
			Msg("Weather lookup failed, continuing without weather")
		return Outcome{Reason: ReasonRequest, Err: err}
	}

	cond, err := atHour(resp, hour)
	if err != nil {
		log.Warn().Err(err).Str("date", date).Int("hour", hour).Msg("Weather hour unavailable")
		return Outcome{Reason: ReasonMissingHour, Err: err}
	}
	return Outcome{Conditions: cond}
}

// atHour picks index hour from every series. All three values must be
// present; a partial result is an error.
func atHour(resp *HourlyResponse, hour int) (*Conditions, error) {
	h := resp.Hourly
	if hour < 0 || hour >= len(h.Temperature2m) || hour >= len(h.RelativeHumidity) || hour >= len(h.WeatherCode) {
		return nil, fmt.Errorf("hour %d out of range (temperature=%d humidity=%d code=%d)",
			hour, len(h.Temperature2m), len(h.RelativeHumidity), len(h.WeatherCode))
	}

	temp, hum, code := h.Temperature2m[hour], h.RelativeHumidity[hour], h.WeatherCode[hour]
	if temp == nil || hum == nil || code == nil {
		return nil, fmt.Errorf("null value at hour %d", hour)
	}

	return &Conditions{
		TemperatureC: *temp,
		HumidityPct:  *hum,
		Code:         *code,
		Description:  Describe(*code),
	}, nil
}
