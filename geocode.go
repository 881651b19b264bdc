package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoMatch means the geocoder answered but found nothing for the query.
var ErrNoMatch = errors.New("no matching location")

const (
	notFoundMessage      = "Could not find the location. Please try again."
	geocodeFailedMessage = "Location search is unavailable right now. Please try again."
)

// Resolver turns a free-text query into a coordinate. Implementations never
// fail: every problem is reported through an unresolved Resolution.
type Resolver interface {
	Resolve(ctx context.Context, query string) Resolution
}

// NominatimResolver queries a Nominatim-compatible search endpoint, scoping
// every query to a fixed city.
type NominatimResolver struct {
	endpoint   string
	city       string
	userAgent  string
	httpClient *http.Client
}

func NewNominatimResolver(cfg GeocoderConfig, city string) *NominatimResolver {
	return &NominatimResolver{
		endpoint:   cfg.URL,
		city:       city,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: msDuration(cfg.TimeoutMS)},
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (r *NominatimResolver) Resolve(ctx context.Context, query string) Resolution {
	query = strings.TrimSpace(query)
	if query == "" {
		return Unresolved("")
	}
	c, err := r.lookup(ctx, r.qualify(query))
	switch {
	case err == nil:
		geocodeRequests.WithLabelValues("found").Inc()
		return Resolution{Coordinate: c, Found: true}
	case errors.Is(err, ErrNoMatch):
		geocodeRequests.WithLabelValues("not_found").Inc()
		log.Debug().Str("query", query).Msg("no geocoding match")
		return Unresolved(notFoundMessage)
	default:
		geocodeRequests.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("query", query).Msg("geocoding failed")
		return Resolution{Failed: true, Message: geocodeFailedMessage}
	}
}

func (r *NominatimResolver) qualify(query string) string {
	if r.city == "" {
		return query
	}
	return query + ", " + r.city
}

func (r *NominatimResolver) lookup(ctx context.Context, address string) (Coordinate, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return Coordinate{}, err
	}
	q := u.Query()
	q.Set("q", address)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	body, err := getBody(ctx, r.httpClient, u.String(), http.Header{
		"User-Agent": {r.userAgent},
		"Accept":     {"application/json"},
	})
	if err != nil {
		return Coordinate{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return Coordinate{}, fmt.Errorf("geocode %q: decode: %w", address, err)
	}
	if len(places) == 0 {
		return Coordinate{}, ErrNoMatch
	}
	lat, lon, ok := parseLatLon(places[0].Lat, places[0].Lon)
	if !ok {
		return Coordinate{}, fmt.Errorf("geocode %q: bad coordinates %q,%q", address, places[0].Lat, places[0].Lon)
	}
	c := Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return Coordinate{}, fmt.Errorf("geocode %q: coordinate out of range %v", address, c)
	}
	return c, nil
}

// resolveWithTimeout bounds a single Resolve call.
func resolveWithTimeout(ctx context.Context, r Resolver, query string, timeout time.Duration) Resolution {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return r.Resolve(ctx, query)
}
