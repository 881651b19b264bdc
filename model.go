package main

import "math"

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
}

// Valid reports whether c is finite and within latitude/longitude range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Resolution is the outcome of a location lookup. Found == false means the
// query is unresolved; Coordinate is meaningless in that case. Failed marks a
// lookup that could not complete, as opposed to one that found nothing.
type Resolution struct {
	Coordinate Coordinate
	Found      bool
	Failed     bool
	Message    string
}

// Unresolved builds a Resolution carrying only a diagnostic message.
func Unresolved(msg string) Resolution {
	return Resolution{Message: msg}
}

// Vehicle is one observation decoded from a vehicle feed.
type Vehicle struct {
	ID        string  `json:"id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Timestamp int64   `json:"timestamp"`
}

// FeedResult is the outcome of one vehicle feed fetch. On failure Vehicles is
// empty and Message describes the problem.
type FeedResult struct {
	Vehicles []Vehicle
	Message  string
}

// ViewState is the map center and zoom kept for one UI session.
type ViewState struct {
	Center Coordinate `json:"center"`
	Zoom   int        `json:"zoom"`
	// LastQuery is the search that last moved the view.
	LastQuery string `json:"lastQuery,omitempty"`
}

func (v ViewState) valid() bool {
	return v.Center.Valid() && v.Zoom >= 0
}

type MarkerStyle string

const (
	MarkerSearch  MarkerStyle = "search"
	MarkerVehicle MarkerStyle = "vehicle"
)

type Marker struct {
	Coordinate
	Label string      `json:"label"`
	Style MarkerStyle `json:"style"`
}

// ViewFeedback is the view reported by the map after user interaction. The
// loose shape lets malformed feedback be detected instead of silently zeroed.
type ViewFeedback struct {
	Center []float64 `json:"center"`
	Zoom   *int      `json:"zoom"`
}

type RenderInput struct {
	Query string        `json:"query"`
	View  *ViewFeedback `json:"view,omitempty"`
}

// RenderResult is what the map page draws. When MapReady is false the page
// shows Messages only.
type RenderResult struct {
	View     ViewState `json:"view"`
	Markers  []Marker  `json:"markers"`
	Messages []string  `json:"messages"`
	MapReady bool      `json:"mapReady"`
}
