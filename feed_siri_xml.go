package main

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// SiriXmlVehicleFeedSource reads a SIRI VehicleMonitoring XML document.
type SiriXmlVehicleFeedSource struct {
	url        string
	httpClient *http.Client
}

func NewSiriXmlVehicleFeedSource(url string, timeout time.Duration) *SiriXmlVehicleFeedSource {
	return &SiriXmlVehicleFeedSource{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Element names are matched on their local part, so any SIRI namespace works.
type siriXmlDocument struct {
	Deliveries []struct {
		Activities []siriXmlActivity `xml:"VehicleActivity"`
	} `xml:"ServiceDelivery>VehicleMonitoringDelivery"`
}

type siriXmlActivity struct {
	RecordedAtTime string `xml:"RecordedAtTime"`
	VehicleRef     string `xml:"MonitoredVehicleJourney>VehicleRef"`
	Latitude       string `xml:"MonitoredVehicleJourney>VehicleLocation>Latitude"`
	Longitude      string `xml:"MonitoredVehicleJourney>VehicleLocation>Longitude"`
}

func (s *SiriXmlVehicleFeedSource) Fetch(ctx context.Context) ([]Vehicle, error) {
	body, err := getBody(ctx, s.httpClient, s.url, http.Header{"Accept": {"application/xml"}})
	if err != nil {
		return nil, fmt.Errorf("siri xml fetch: %w", err)
	}
	return decodeSiriXml(body)
}

func decodeSiriXml(body []byte) ([]Vehicle, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	var doc siriXmlDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("siri xml decode: %w", err)
	}
	var vehicles []Vehicle
	for _, d := range doc.Deliveries {
		for _, a := range d.Activities {
			id := strings.TrimSpace(a.VehicleRef)
			if id == "" {
				continue
			}
			lat, lon, ok := parseLatLon(a.Latitude, a.Longitude)
			if !ok {
				continue
			}
			vehicles = append(vehicles, Vehicle{ID: id, Lat: lat, Lon: lon, Timestamp: parseRecordedAt(a.RecordedAtTime)})
		}
	}
	return vehicles, nil
}

func parseLatLon(lat, lon string) (float64, float64, bool) {
	lf, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return 0, 0, false
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return 0, 0, false
	}
	return lf, lo, true
}

// parseRecordedAt converts a SIRI timestamp to epoch seconds, 0 if absent or malformed.
func parseRecordedAt(s string) int64 {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return t.Unix()
}
