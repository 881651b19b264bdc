package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog/log"
)

func TestInitLogging_JSON(t *testing.T) {
	orig := log.Logger
	defer func() { log.Logger = orig }()

	var buf bytes.Buffer
	initLogging(&buf, "json", false)
	log.Debug().Msg("hidden")
	log.Info().Str("feed", "gtfsrt").Msg("fetched vehicles")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "fetched vehicles" || entry["feed"] != "gtfsrt" {
		t.Errorf("unexpected entry %v", entry)
	}
}
