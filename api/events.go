package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/agent"
	"github.com/zaynkorai/research-agent/metrics"
	"github.com/zaynkorai/research-agent/streaming"
)

// EventDone closes every research run. Its payload is the ResearchResponse, failed runs included.
const EventDone = "done"

var (
	heartbeatInterval = 15 * time.Second
	wsPingInterval    = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func toStreamEvent(evt agent.Event) streaming.Event {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		payload, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return streaming.Event{Type: evt.Node, Payload: payload}
}

func doneEvent(resp ResearchResponse) streaming.Event {
	payload, _ := json.Marshal(resp)
	return streaming.Event{Type: EventDone, Payload: payload}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeSSE(w http.ResponseWriter, evt streaming.Event) {
	if evt.Seq > 0 {
		fmt.Fprintf(w, "id: %d\n", evt.Seq)
	}
	if evt.Type != "" {
		fmt.Fprintf(w, "event: %s\n", evt.Type)
	}
	fmt.Fprintf(w, "data: %s\n\n", evt.Marshal())
}

// lastEventID reads the replay cursor from the Last-Event-ID header or the last_event_id
// query parameter. ok is false when neither is present.
func lastEventID(c *gin.Context) (id uint64, ok bool) {
	for _, raw := range []string{c.GetHeader("Last-Event-ID"), c.Query("last_event_id")} {
		if raw == "" {
			continue
		}
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// sessionEvents streams a thread's progress events as SSE, replaying buffered events after
// Last-Event-ID first.
func (s *Server) sessionEvents(c *gin.Context) {
	id := c.Param("id")

	ch := s.streams.Subscribe(id, 256)
	defer s.streams.Unsubscribe(id, ch)
	metrics.StreamSubscribers.Inc()
	defer metrics.StreamSubscribers.Dec()

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, ": connected to thread %s\n\n", id)
	c.Writer.Flush()

	var sent uint64
	if since, ok := lastEventID(c); ok {
		for _, evt := range s.streams.ReplaySince(id, since) {
			writeSSE(c.Writer, evt)
			sent = evt.Seq
		}
		c.Writer.Flush()
	}

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("SSE client disconnected", zap.String("thread_id", id))
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Seq <= sent {
				continue
			}
			writeSSE(c.Writer, evt)
			c.Writer.Flush()
		case <-hb.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			c.Writer.Flush()
		}
	}
}

// sessionWebSocket delivers the same events as sessionEvents over a WebSocket.
func (s *Server) sessionWebSocket(c *gin.Context) {
	id := c.Param("id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.String("thread_id", id), zap.Error(err))
		return
	}
	defer conn.Close()

	ch := s.streams.Subscribe(id, 256)
	defer s.streams.Unsubscribe(id, ch)
	metrics.StreamSubscribers.Inc()
	defer metrics.StreamSubscribers.Dec()

	var sent uint64
	if since, ok := lastEventID(c); ok {
		for _, evt := range s.streams.ReplaySince(id, since) {
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
			sent = evt.Seq
		}
	}

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(3 * wsPingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(3 * wsPingInterval))
	})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-closed:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Seq <= sent {
				continue
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
