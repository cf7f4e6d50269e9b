package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB

	defaultInterval = 200 * time.Millisecond
	minInterval     = 50 * time.Millisecond
	maxInterval     = 10 * time.Second
)

// wsEnvelope is the frame pushed to display clients.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// The display runs on the LAN, any origin is accepted.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stateStream pushes published states to one client, each state at most once.
type stateStream struct {
	h        *Handler
	conn     *websocket.Conn
	lastSent time.Time
}

// @Summary      State stream
// @Description  Pushes {"type":"state","data":StateView} whenever a newer state is published
// @Tags         state
// @Param        interval     query  string  false  "check cadence, e.g. 500ms"
// @Param        interval_ms  query  int     false  "check cadence in milliseconds"
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	closed := make(chan struct{})
	go h.drainReads(conn, closed)

	s := &stateStream{h: h, conn: conn}
	if err := s.push(); err != nil {
		h.wsInfo("ws_write_failed_initial", err)
		return
	}

	check := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer check.Stop()
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			if err := s.ping(); err != nil {
				h.wsInfo("ws_ping_failed", err)
				return
			}
		case <-check.C:
			if err := s.pushIfNewer(); err != nil {
				h.wsInfo("ws_write_failed", err)
				return
			}
		}
	}
}

func (s *stateStream) push() error {
	view := s.h.stateView()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(wsEnvelope{Type: "state", Data: view}); err != nil {
		return err
	}
	s.lastSent = view.Timestamp
	return nil
}

func (s *stateStream) pushIfNewer() error {
	if s.h.services.Latest().Timestamp.Equal(s.lastSent) {
		return nil
	}
	return s.push()
}

func (s *stateStream) ping() error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

// parseInterval reads ?interval=500ms or ?interval_ms=500; values outside
// [minInterval, maxInterval] fall back to the configured default.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	if d, err := time.ParseDuration(c.Query("interval")); err == nil && inRange(d) {
		return d
	}
	if ms, err := strconv.Atoi(c.Query("interval_ms")); err == nil {
		if d := time.Duration(ms) * time.Millisecond; inRange(d) {
			return d
		}
	}
	return h.opts.WSInterval
}

func inRange(d time.Duration) bool { return d >= minInterval && d <= maxInterval }

// drainReads consumes control frames until the client goes away.
func (h *Handler) drainReads(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.wsInfo("ws_read_closed", err)
			return
		}
	}
}

func (h *Handler) wsInfo(event string, err error) {
	if h.log != nil {
		h.log.Infow(event, "err", err)
	}
}
