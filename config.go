package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	FeedFormatGtfsRt   = "gtfsrt"
	FeedFormatSiriXml  = "siri-xml"
	FeedFormatSiriJson = "siri-json"
)

type ServerConfig struct {
	Port              int    `yaml:"port" validate:"gt=0,lte=65535"`
	StaticDir         string `yaml:"staticDir" validate:"required"`
	ShutdownTimeoutMS int    `yaml:"shutdownTimeoutMS" validate:"gte=0"`
}

// CityConfig holds the fixed city qualifier and the initial view.
type CityConfig struct {
	Name       string     `yaml:"name" validate:"required"`
	Center     Coordinate `yaml:"center"`
	Zoom       int        `yaml:"zoom" validate:"gte=0,lte=22"`
	SearchZoom int        `yaml:"searchZoom" validate:"gte=0,lte=22"`
}

type GeocoderConfig struct {
	URL       string `yaml:"url" validate:"required,url"`
	UserAgent string `yaml:"userAgent" validate:"required"`
	TimeoutMS int    `yaml:"timeoutMS" validate:"gt=0"`
}

type FeedConfig struct {
	URL       string `yaml:"url" validate:"required,url"`
	Format    string `yaml:"format" validate:"oneof=gtfsrt siri-xml siri-json"`
	TimeoutMS int    `yaml:"timeoutMS" validate:"gt=0"`
}

type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	City     CityConfig     `yaml:"city"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	Feed     FeedConfig     `yaml:"feed"`
}

// DefaultConfig returns the built-in Guelph setup used when no config file exists.
func DefaultConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Port:              8080,
			StaticDir:         "./static",
			ShutdownTimeoutMS: 10000,
		},
		City: CityConfig{
			Name:       "Guelph",
			Center:     Coordinate{Lat: 43.5448, Lon: -80.2482},
			Zoom:       13,
			SearchZoom: 15,
		},
		Geocoder: GeocoderConfig{
			URL:       "https://nominatim.openstreetmap.org/search",
			UserAgent: "guelph-transit-map/1.0",
			TimeoutMS: 5000,
		},
		Feed: FeedConfig{
			URL:       "https://glphprdtmgtfs.glphtrpcloud.com/tmgtfsrealtimewebservice/vehicle/vehiclepositions.pb",
			Format:    FeedFormatGtfsRt,
			TimeoutMS: 5000,
		},
	}
}

// LoadAppConfig reads path on top of DefaultConfig and validates the result.
// An empty path falls back to ./config.yml; a missing default file is not an error.
func LoadAppConfig(path string) (AppConfig, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = "config.yml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c AppConfig) InitialView() ViewState {
	return ViewState{Center: c.City.Center, Zoom: c.City.Zoom}
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
