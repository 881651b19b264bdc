package main

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

func vehicleEntity(entityID, vehicleID string, lat, lon float32, ts uint64) *gtfs.FeedEntity {
	return &gtfs.FeedEntity{
		Id: proto.String(entityID),
		Vehicle: &gtfs.VehiclePosition{
			Vehicle:   &gtfs.VehicleDescriptor{Id: proto.String(vehicleID)},
			Position:  &gtfs.Position{Latitude: proto.Float32(lat), Longitude: proto.Float32(lon)},
			Timestamp: proto.Uint64(ts),
		},
	}
}

func marshalFeed(t *testing.T, entities ...*gtfs.FeedEntity) []byte {
	t.Helper()
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1700000000),
		},
		Entity: entities,
	}
	b, err := proto.Marshal(feed)
	if err != nil {
		t.Fatalf("marshal feed: %v", err)
	}
	return b
}

func serveBytes(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDecodeVehiclePositions_SkipsEntitiesWithoutVehicle(t *testing.T) {
	body := marshalFeed(t,
		vehicleEntity("e1", "101", 43.55, -80.25, 1700000001),
		&gtfs.FeedEntity{
			Id: proto.String("e2"),
			TripUpdate: &gtfs.TripUpdate{
				Trip: &gtfs.TripDescriptor{TripId: proto.String("t1")},
			},
		},
		vehicleEntity("e3", "102", 43.54, -80.26, 1700000002),
	)

	got, err := decodeVehiclePositions(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 vehicles, got %d", len(got))
	}
	if got[0].ID != "101" || got[1].ID != "102" {
		t.Errorf("entity order not preserved: %+v", got)
	}
	if got[0].Lat != float64(float32(43.55)) || got[0].Lon != float64(float32(-80.25)) {
		t.Errorf("unexpected position %v,%v", got[0].Lat, got[0].Lon)
	}
	if got[1].Timestamp != 1700000002 {
		t.Errorf("expected raw timestamp, got %d", got[1].Timestamp)
	}
}

func TestDecodeVehiclePositions_MissingFieldsAreNotErrors(t *testing.T) {
	body := marshalFeed(t,
		&gtfs.FeedEntity{
			Id:      proto.String("e1"),
			Vehicle: &gtfs.VehiclePosition{},
		},
		// out of range coordinates pass through untouched
		vehicleEntity("e2", "", 123, 456, 0),
	)

	got, err := decodeVehiclePositions(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []Vehicle{
		{ID: "", Lat: 0, Lon: 0, Timestamp: 0},
		{ID: "", Lat: 123, Lon: 456, Timestamp: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeVehiclePositions_TimestampBeyondInt64(t *testing.T) {
	body := marshalFeed(t, vehicleEntity("e1", "101", 43.55, -80.25, math.MaxUint64))
	got, err := decodeVehiclePositions(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got[0].Timestamp != math.MaxInt64 {
		t.Errorf("expected saturated timestamp, got %d", got[0].Timestamp)
	}
}

func TestDecodeVehiclePositions_Truncated(t *testing.T) {
	body := marshalFeed(t, vehicleEntity("e1", "101", 43.55, -80.25, 1))
	if _, err := decodeVehiclePositions(body[:len(body)-3]); err == nil {
		t.Fatal("expected an error for truncated payload")
	}
}

func TestFetchVehicles_DecodesFromHTTP(t *testing.T) {
	body := marshalFeed(t,
		vehicleEntity("e1", "7", 43.5, -80.2, 10),
		vehicleEntity("e2", "8", 43.6, -80.3, 11),
	)
	srv := serveBytes(t, http.StatusOK, body)
	src := NewGtfsRtVehicleFeedSource(srv.URL, time.Second)

	first := FetchVehicles(context.Background(), src, time.Second)
	if first.Message != "" {
		t.Fatalf("unexpected message %q", first.Message)
	}
	if len(first.Vehicles) != 2 {
		t.Fatalf("expected 2 vehicles, got %d", len(first.Vehicles))
	}

	second := FetchVehicles(context.Background(), src, time.Second)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeat fetch differs: %+v vs %+v", first, second)
	}
}

func TestFetchVehicles_Failures(t *testing.T) {
	valid := marshalFeed(t, vehicleEntity("e1", "7", 43.5, -80.2, 10))

	tests := []struct {
		name   string
		status int
		body   []byte
	}{
		{"truncated", http.StatusOK, valid[:len(valid)/2]},
		{"garbage", http.StatusOK, []byte("<html>not a feed</html>")},
		{"server error", http.StatusInternalServerError, valid},
		{"not found", http.StatusNotFound, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serveBytes(t, tt.status, tt.body)
			res := FetchVehicles(context.Background(), NewGtfsRtVehicleFeedSource(srv.URL, time.Second), time.Second)
			if len(res.Vehicles) != 0 {
				t.Errorf("expected no vehicles, got %d", len(res.Vehicles))
			}
			if res.Vehicles == nil {
				t.Error("expected an empty, non-nil slice")
			}
			if res.Message != feedFailureMessage {
				t.Errorf("unexpected message %q", res.Message)
			}
		})
	}
}

func TestFetchVehicles_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	res := FetchVehicles(context.Background(), NewGtfsRtVehicleFeedSource(srv.URL, 0), 50*time.Millisecond)
	if len(res.Vehicles) != 0 || res.Message == "" {
		t.Errorf("expected timeout to be reported as a failure, got %+v", res)
	}
}

func TestFetchVehicles_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := FetchVehicles(context.Background(), NewGtfsRtVehicleFeedSource(url, time.Second), time.Second)
	if len(res.Vehicles) != 0 || res.Message != feedFailureMessage {
		t.Errorf("unexpected result %+v", res)
	}
}
