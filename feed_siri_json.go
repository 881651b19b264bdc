package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// SiriJsonVehicleFeedSource reads a SIRI VehicleMonitoring JSON document,
// with or without the top-level "Siri" wrapper.
type SiriJsonVehicleFeedSource struct {
	url        string
	httpClient *http.Client
}

func NewSiriJsonVehicleFeedSource(url string, timeout time.Duration) *SiriJsonVehicleFeedSource {
	return &SiriJsonVehicleFeedSource{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type siriJsonServiceDelivery struct {
	VehicleMonitoringDelivery []struct {
		VehicleActivity []struct {
			RecordedAtTime          string `json:"RecordedAtTime"`
			MonitoredVehicleJourney *struct {
				VehicleRef              string `json:"VehicleRef"`
				FramedVehicleJourneyRef struct {
					DatedVehicleJourneyRef string `json:"DatedVehicleJourneyRef"`
				} `json:"FramedVehicleJourneyRef"`
				VehicleLocation struct {
					Latitude  looseFloat `json:"Latitude"`
					Longitude looseFloat `json:"Longitude"`
				} `json:"VehicleLocation"`
			} `json:"MonitoredVehicleJourney"`
		} `json:"VehicleActivity"`
	} `json:"VehicleMonitoringDelivery"`
}

type siriJsonDocument struct {
	Siri            *siriJsonDocument        `json:"Siri"`
	ServiceDelivery *siriJsonServiceDelivery `json:"ServiceDelivery"`
}

// looseFloat accepts both JSON numbers and numeric strings.
type looseFloat struct {
	Value float64
	Set   bool
}

func (f *looseFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// unparsable strings leave the value unset
			return nil
		}
		f.Value, f.Set = v, true
		return nil
	}
	if err := json.Unmarshal(b, &f.Value); err != nil {
		return err
	}
	f.Set = true
	return nil
}

func (s *SiriJsonVehicleFeedSource) Fetch(ctx context.Context) ([]Vehicle, error) {
	body, err := getBody(ctx, s.httpClient, s.url, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, fmt.Errorf("siri json fetch: %w", err)
	}
	return decodeSiriJson(body)
}

func decodeSiriJson(body []byte) ([]Vehicle, error) {
	var doc siriJsonDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("siri json decode: %w", err)
	}
	if doc.Siri != nil {
		doc = *doc.Siri
	}
	if doc.ServiceDelivery == nil {
		return nil, nil
	}
	var vehicles []Vehicle
	for _, vmd := range doc.ServiceDelivery.VehicleMonitoringDelivery {
		for _, va := range vmd.VehicleActivity {
			mvj := va.MonitoredVehicleJourney
			if mvj == nil {
				continue
			}
			id := mvj.VehicleRef
			if id == "" {
				id = mvj.FramedVehicleJourneyRef.DatedVehicleJourneyRef
			}
			loc := mvj.VehicleLocation
			if id == "" || !loc.Latitude.Set || !loc.Longitude.Set {
				continue
			}
			vehicles = append(vehicles, Vehicle{
				ID:        id,
				Lat:       loc.Latitude.Value,
				Lon:       loc.Longitude.Value,
				Timestamp: parseRecordedAt(va.RecordedAtTime),
			})
		}
	}
	return vehicles, nil
}
