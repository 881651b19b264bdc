package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrBadStatus is returned when an upstream service answers with a non-200 status.
var ErrBadStatus = errors.New("unexpected http status")

const feedFailureMessage = "Could not load vehicle positions."

// VehicleFeedSource fetches and decodes one snapshot of vehicle positions.
type VehicleFeedSource interface {
	Fetch(ctx context.Context) ([]Vehicle, error)
}

// NewVehicleFeedSource picks the decoder matching cfg.Format.
func NewVehicleFeedSource(cfg FeedConfig) (VehicleFeedSource, error) {
	timeout := msDuration(cfg.TimeoutMS)
	switch cfg.Format {
	case FeedFormatGtfsRt, "":
		return NewGtfsRtVehicleFeedSource(cfg.URL, timeout), nil
	case FeedFormatSiriXml:
		return NewSiriXmlVehicleFeedSource(cfg.URL, timeout), nil
	case FeedFormatSiriJson:
		return NewSiriJsonVehicleFeedSource(cfg.URL, timeout), nil
	}
	return nil, fmt.Errorf("unknown feed format %q", cfg.Format)
}

// FetchVehicles runs a single fetch and folds any failure into the result.
// It never returns an error; callers always get a usable, possibly empty list.
func FetchVehicles(ctx context.Context, src VehicleFeedSource, timeout time.Duration) FeedResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	vehicles, err := src.Fetch(ctx)
	feedLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		feedFetches.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("vehicle feed fetch failed")
		return FeedResult{Vehicles: []Vehicle{}, Message: feedFailureMessage}
	}
	feedFetches.WithLabelValues("ok").Inc()
	log.Debug().Int("vehicles", len(vehicles)).Msg("fetched vehicles")
	if vehicles == nil {
		vehicles = []Vehicle{}
	}
	return FeedResult{Vehicles: vehicles}
}

// getBody issues one GET and returns the whole body of a 200 response.
func getBody(ctx context.Context, client *http.Client, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d from %s", ErrBadStatus, resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}
