package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	geocodeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transitmap_geocode_requests_total",
		Help: "Location lookups by outcome (found, not_found, error).",
	}, []string{"outcome"})

	feedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transitmap_feed_fetches_total",
		Help: "Vehicle feed fetches by outcome (ok, error).",
	}, []string{"outcome"})

	feedLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transitmap_feed_fetch_seconds",
		Help:    "Vehicle feed fetch and decode latency.",
		Buckets: prometheus.DefBuckets,
	})

	renders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transitmap_renders_total",
		Help: "Map renders by transport (ws, http) and whether a map was produced.",
	}, []string{"transport", "map_ready"})

	wsSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transitmap_ws_sessions",
		Help: "Open websocket map sessions.",
	})
)
