package main

import (
	"context"
	"net/http"
	"reflect"
	"testing"
	"time"
)

const siriXmlSample = `<?xml version="1.0" encoding="ISO-8859-1"?>
<Siri xmlns="http://www.siri.org.uk/siri" version="2.0">
  <ServiceDelivery>
    <VehicleMonitoringDelivery>
      <VehicleActivity>
        <RecordedAtTime>2024-05-01T12:00:00Z</RecordedAtTime>
        <MonitoredVehicleJourney>
          <VehicleLocation><Longitude>-80.25</Longitude><Latitude>43.55</Latitude></VehicleLocation>
          <VehicleRef>bus-1</VehicleRef>
        </MonitoredVehicleJourney>
      </VehicleActivity>
      <VehicleActivity>
        <MonitoredVehicleJourney>
          <VehicleRef>no-location</VehicleRef>
        </MonitoredVehicleJourney>
      </VehicleActivity>
      <VehicleActivity>
        <MonitoredVehicleJourney>
          <VehicleLocation><Longitude>-80.26</Longitude><Latitude>43.54</Latitude></VehicleLocation>
          <VehicleRef>Gar&#231;on</VehicleRef>
        </MonitoredVehicleJourney>
      </VehicleActivity>
    </VehicleMonitoringDelivery>
  </ServiceDelivery>
</Siri>`

func TestDecodeSiriXml(t *testing.T) {
	got, err := decodeSiriXml([]byte(siriXmlSample))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []Vehicle{
		{ID: "bus-1", Lat: 43.55, Lon: -80.25, Timestamp: 1714564800},
		{ID: "Garçon", Lat: 43.54, Lon: -80.26},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeSiriXml_Malformed(t *testing.T) {
	if _, err := decodeSiriXml([]byte("<Siri><ServiceDelivery>")); err == nil {
		t.Fatal("expected an error")
	}
}

func TestDecodeSiriJson(t *testing.T) {
	wrapped := `{"Siri":{"ServiceDelivery":{"VehicleMonitoringDelivery":[{"VehicleActivity":[
		{"RecordedAtTime":"2024-05-01T12:00:00Z","MonitoredVehicleJourney":{"VehicleRef":"bus-1","VehicleLocation":{"Latitude":43.55,"Longitude":-80.25}}},
		{"MonitoredVehicleJourney":{"FramedVehicleJourneyRef":{"DatedVehicleJourneyRef":"dvj-9"},"VehicleLocation":{"Latitude":"43.54","Longitude":"-80.26"}}},
		{"MonitoredVehicleJourney":{"VehicleRef":"no-location"}},
		{"RecordedAtTime":"2024-05-01T12:00:00Z"}
	]}]}}}`
	got, err := decodeSiriJson([]byte(wrapped))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []Vehicle{
		{ID: "bus-1", Lat: 43.55, Lon: -80.25, Timestamp: 1714564800},
		{ID: "dvj-9", Lat: 43.54, Lon: -80.26},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	bare := `{"ServiceDelivery":{"VehicleMonitoringDelivery":[{"VehicleActivity":[
		{"MonitoredVehicleJourney":{"VehicleRef":"bus-2","VehicleLocation":{"Latitude":1,"Longitude":2}}}
	]}]}}`
	got, err = decodeSiriJson([]byte(bare))
	if err != nil {
		t.Fatalf("decode bare: %v", err)
	}
	if len(got) != 1 || got[0].ID != "bus-2" {
		t.Errorf("unexpected vehicles %+v", got)
	}
}

func TestSiriSources_HTTPFailure(t *testing.T) {
	srv := serveBytes(t, http.StatusBadGateway, nil)
	for _, src := range []VehicleFeedSource{
		NewSiriXmlVehicleFeedSource(srv.URL, time.Second),
		NewSiriJsonVehicleFeedSource(srv.URL, time.Second),
	} {
		res := FetchVehicles(context.Background(), src, time.Second)
		if len(res.Vehicles) != 0 || res.Message != feedFailureMessage {
			t.Errorf("%T: unexpected result %+v", src, res)
		}
	}
}
