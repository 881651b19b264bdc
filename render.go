package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// ErrInvalidViewState marks a center/zoom pair that cannot describe a map view.
var ErrInvalidViewState = errors.New("invalid view state")

const (
	invalidViewMessage = "The saved map view is invalid, so the map could not be shown."
	searchMarkerLabel  = "Search Location"
)

func (f *ViewFeedback) viewState() (ViewState, error) {
	if len(f.Center) != 2 {
		return ViewState{}, fmt.Errorf("%w: center has %d values", ErrInvalidViewState, len(f.Center))
	}
	if f.Zoom == nil {
		return ViewState{}, fmt.Errorf("%w: missing zoom", ErrInvalidViewState)
	}
	v := ViewState{Center: Coordinate{Lat: f.Center[0], Lon: f.Center[1]}, Zoom: *f.Zoom}
	if !v.valid() {
		return ViewState{}, fmt.Errorf("%w: center %v zoom %d", ErrInvalidViewState, f.Center, *f.Zoom)
	}
	return v, nil
}

// Render merges one render's inputs into the next view and the markers to
// draw. It has no side effects; prev is returned untouched whenever the view
// cannot be built.
//
// A search moves the view on the render where its query is submitted, which is
// any render whose query differs from the last one seen. Later renders with
// the same query keep whatever view the user reported.
func Render(prev ViewState, in RenderInput, loc Resolution, feed FeedResult, searchZoom int) (ViewState, RenderResult) {
	out := RenderResult{Markers: []Marker{}, Messages: []string{}}

	if !prev.valid() {
		log.Warn().Interface("view", prev).Msg("refusing to render from invalid view state")
		return prev, invalidViewResult(prev)
	}

	next := prev
	if in.View != nil {
		v, err := in.View.viewState()
		if err != nil {
			log.Warn().Err(err).Msg("ignoring map feedback")
			return prev, invalidViewResult(prev)
		}
		next.Center, next.Zoom = v.Center, v.Zoom
	}

	query := strings.TrimSpace(in.Query)
	if query == "" {
		next.LastQuery = ""
	} else if query != prev.LastQuery {
		switch {
		case loc.Found:
			next.Center = loc.Coordinate
			next.Zoom = searchZoom
			next.LastQuery = query
		case loc.Failed:
			// not applied yet: the next render that resolves it still moves the view
			next.LastQuery = ""
		default:
			next.LastQuery = query
		}
	}
	if loc.Found {
		out.Markers = append(out.Markers, Marker{Coordinate: loc.Coordinate, Label: searchMarkerLabel, Style: MarkerSearch})
	} else if query != "" && loc.Message != "" {
		out.Messages = append(out.Messages, loc.Message)
	}

	for _, v := range feed.Vehicles {
		out.Markers = append(out.Markers, Marker{
			Coordinate: Coordinate{Lat: v.Lat, Lon: v.Lon},
			Label:      "Bus ID: " + v.ID,
			Style:      MarkerVehicle,
		})
	}
	if feed.Message != "" {
		out.Messages = append(out.Messages, feed.Message)
	}

	out.View = next
	out.MapReady = true
	return next, out
}

// invalidViewResult is the map-less answer for a view that cannot be drawn.
func invalidViewResult(v ViewState) RenderResult {
	return RenderResult{View: v, Markers: []Marker{}, Messages: []string{invalidViewMessage}}
}

// mapService runs the two lookups for a render and hands their results to Render.
type mapService struct {
	resolver       Resolver
	feed           VehicleFeedSource
	geocodeTimeout time.Duration
	feedTimeout    time.Duration
	searchZoom     int
	initial        ViewState
}

func newMapService(cfg AppConfig, resolver Resolver, feed VehicleFeedSource) *mapService {
	return &mapService{
		resolver:       resolver,
		feed:           feed,
		geocodeTimeout: msDuration(cfg.Geocoder.TimeoutMS),
		feedTimeout:    msDuration(cfg.Feed.TimeoutMS),
		searchZoom:     cfg.City.SearchZoom,
		initial:        cfg.InitialView(),
	}
}

func (s *mapService) render(ctx context.Context, prev ViewState, in RenderInput) (ViewState, RenderResult) {
	var (
		loc  Resolution
		feed FeedResult
		wg   conc.WaitGroup
	)
	if strings.TrimSpace(in.Query) != "" {
		wg.Go(func() {
			loc = resolveWithTimeout(ctx, s.resolver, in.Query, s.geocodeTimeout)
		})
	}
	wg.Go(func() {
		feed = FetchVehicles(ctx, s.feed, s.feedTimeout)
	})
	wg.Wait()
	return Render(prev, in, loc, feed, s.searchZoom)
}
