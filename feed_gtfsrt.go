package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

type GtfsRtVehicleFeedSource struct {
	url        string
	httpClient *http.Client
}

func NewGtfsRtVehicleFeedSource(url string, timeout time.Duration) *GtfsRtVehicleFeedSource {
	return &GtfsRtVehicleFeedSource{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *GtfsRtVehicleFeedSource) Fetch(ctx context.Context) ([]Vehicle, error) {
	body, err := getBody(ctx, s.httpClient, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("gtfs-rt fetch: %w", err)
	}
	return decodeVehiclePositions(body)
}

// decodeVehiclePositions emits one Vehicle per entity carrying a vehicle
// message, in feed order. Missing ids and positions decode as zero values;
// coordinates are not range checked.
func decodeVehiclePositions(body []byte) ([]Vehicle, error) {
	var feed gtfs.FeedMessage
	if err := proto.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("gtfs-rt decode: %w", err)
	}
	vehicles := make([]Vehicle, 0, len(feed.GetEntity()))
	for _, ent := range feed.GetEntity() {
		vp := ent.GetVehicle()
		if vp == nil {
			continue
		}
		pos := vp.GetPosition()
		vehicles = append(vehicles, Vehicle{
			ID:        vp.GetVehicle().GetId(),
			Lat:       float64(pos.GetLatitude()),
			Lon:       float64(pos.GetLongitude()),
			Timestamp: clampTimestamp(vp.GetTimestamp()),
		})
	}
	return vehicles, nil
}

// clampTimestamp saturates POSIX seconds that do not fit an int64 instead of
// letting them wrap negative.
func clampTimestamp(ts uint64) int64 {
	if ts > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(ts)
}
