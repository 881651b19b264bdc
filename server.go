package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const maxRenderBody = 64 << 10

// app ties the render service to the HTTP surface.
type app struct {
	cfg AppConfig
	svc *mapService
	hub *wsHub
}

func newApp(cfg AppConfig, svc *mapService) *app {
	return &app{cfg: cfg, svc: svc, hub: newHub()}
}

func (a *app) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/config", a.handleConfig)
	mux.HandleFunc("/api/render", a.handleRender)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/data.json", a.handleWebSocket)

	fs := http.FileServer(http.Dir(a.cfg.Server.StaticDir))
	mux.Handle("/", fs)
}

// renderRequest is the wire form of a render. View and State stay raw so a
// badly shaped view is reported as an invalid view rather than a bad request.
// State is only read by the stateless endpoint, where the caller carries its
// own view between calls.
type renderRequest struct {
	Query string          `json:"query"`
	View  json.RawMessage `json:"view,omitempty"`
	State json.RawMessage `json:"state,omitempty"`
}

func (r renderRequest) input() (RenderInput, error) {
	in := RenderInput{Query: r.Query}
	if len(r.View) > 0 {
		if err := json.Unmarshal(r.View, &in.View); err != nil {
			return RenderInput{}, fmt.Errorf("%w: view: %v", ErrInvalidViewState, err)
		}
	}
	return in, nil
}

func (r renderRequest) state(fallback ViewState) (ViewState, error) {
	if len(r.State) == 0 || string(r.State) == "null" {
		return fallback, nil
	}
	var v ViewState
	if err := json.Unmarshal(r.State, &v); err != nil {
		return ViewState{}, fmt.Errorf("%w: state: %v", ErrInvalidViewState, err)
	}
	return v, nil
}

func (a *app) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRenderBody))
	if err != nil {
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}
	var req renderRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid render request: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	prev, err := req.state(a.svc.initial)
	if err != nil {
		log.Warn().Err(err).Msg("unreadable render state")
		renders.WithLabelValues("http", boolLabel(false)).Inc()
		// the caller's state is unusable, so hand back the initial view to recover from
		writeJSON(w, http.StatusOK, invalidViewResult(a.svc.initial))
		return
	}
	in, err := req.input()
	if err != nil {
		log.Warn().Err(err).Msg("unreadable map feedback")
		renders.WithLabelValues("http", boolLabel(false)).Inc()
		writeJSON(w, http.StatusOK, invalidViewResult(prev))
		return
	}
	_, out := a.svc.render(r.Context(), prev, in)
	renders.WithLabelValues("http", boolLabel(out.MapReady)).Inc()
	writeJSON(w, http.StatusOK, out)
}

type clientConfig struct {
	City       string    `json:"city"`
	View       ViewState `json:"view"`
	SearchZoom int       `json:"searchZoom"`
}

func (a *app) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, clientConfig{
		City:       a.cfg.City.Name,
		View:       a.cfg.InitialView(),
		SearchZoom: a.cfg.City.SearchZoom,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack is needed by the websocket upgrader.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func withLogging(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)

		ev := log.Info()
		switch {
		case rec.status >= http.StatusInternalServerError:
			ev = log.Error()
		case rec.status >= http.StatusBadRequest:
			ev = log.Warn()
		}
		ev.Int("status", rec.status).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("latency", time.Since(start).String()).
			Str("user-agent", r.UserAgent()).
			Msg("HTTP Request")
	})
}
