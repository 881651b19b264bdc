package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSession is one browser map session. Its view is only touched by the
// goroutine running the session's read loop.
type wsSession struct {
	id   string
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex
	view    ViewState
}

func (s *wsSession) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(v)
}

func (s *wsSession) close(code int, text string) {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	_ = s.conn.Close()
}

type wsHub struct {
	mu       sync.Mutex
	sessions map[*wsSession]struct{}
}

func newHub() *wsHub {
	return &wsHub{sessions: make(map[*wsSession]struct{})}
}

func (h *wsHub) add(s *wsSession) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	wsSessions.Inc()
}

func (h *wsHub) remove(s *wsSession) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		wsSessions.Dec()
	}
	h.mu.Unlock()
}

func (h *wsHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// closeAll ends every open session; used on shutdown.
func (h *wsHub) closeAll() {
	h.mu.Lock()
	sessions := make([]*wsSession, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()
	for _, s := range sessions {
		s.close(websocket.CloseGoingAway, "server shutting down")
	}
}

func (a *app) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	sess := &wsSession{
		id:   uuid.NewString(),
		conn: conn,
		view: a.svc.initial,
	}
	sess.log = log.With().Str("session", sess.id).Logger()
	conn.SetReadLimit(maxRenderBody)
	a.hub.add(sess)
	defer func() {
		a.hub.remove(sess)
		_ = conn.Close()
		sess.log.Debug().Msg("session closed")
	}()
	sess.log.Debug().Str("remote", r.RemoteAddr).Msg("session opened")

	ctx := r.Context()

	// First render draws the map straight away with the initial view.
	if err := a.renderSession(ctx, sess, RenderInput{}); err != nil {
		return
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.log.Debug().Err(err).Msg("ws read")
			}
			return
		}
		var req renderRequest
		if err := json.Unmarshal(data, &req); err != nil {
			sess.log.Warn().Err(err).Msg("bad render request")
			if err := sess.write(RenderResult{View: sess.view, Markers: []Marker{}, Messages: []string{"Could not read the map request."}}); err != nil {
				return
			}
			continue
		}
		in, err := req.input()
		if err != nil {
			sess.log.Warn().Err(err).Msg("unreadable map feedback")
			renders.WithLabelValues("ws", boolLabel(false)).Inc()
			if err := sess.write(invalidViewResult(sess.view)); err != nil {
				return
			}
			continue
		}
		if err := a.renderSession(ctx, sess, in); err != nil {
			return
		}
	}
}

func (a *app) renderSession(ctx context.Context, sess *wsSession, in RenderInput) error {
	next, out := a.svc.render(ctx, sess.view, in)
	sess.view = next
	renders.WithLabelValues("ws", boolLabel(out.MapReady)).Inc()
	if err := sess.write(out); err != nil {
		sess.log.Debug().Err(err).Msg("ws write")
		return err
	}
	return nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
