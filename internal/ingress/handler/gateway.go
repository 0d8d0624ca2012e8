package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	maxFrameBytes = 64 << 10
)

// Frame types sent by the gateway.
const (
	frameReply   = "reply"
	frameSkipped = "skipped"
	frameError   = "error"
)

// gatewayFrame is one outbound websocket frame.
type gatewayFrame struct {
	Type       string `json:"type"`
	RequestID  string `json:"request_id,omitempty"`
	SessionRef string `json:"session_ref,omitempty"`
	Content    string `json:"content,omitempty"`
	Index      int    `json:"index"`
	Final      bool   `json:"final,omitempty"`
	Error      string `json:"error,omitempty"`
}

// gatewayRequest is one inbound websocket frame: a message plus an optional correlation id.
type gatewayRequest struct {
	messageRequest
	RequestID string `json:"request_id"`
}

// Gateway relays messages arriving over a websocket. Frames on one connection are handled in
// order; separate connections run concurrently.
type Gateway struct {
	relay    Relay
	upgrader websocket.Upgrader
	// pongWait bounds the silence between reads; pings go out at 9/10 of it.
	pongWait time.Duration
}

func NewGateway(r Relay) *Gateway {
	return &Gateway{
		relay:    r,
		pongWait: pongWait,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// bridges are server processes, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ingress: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(g.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.pongWait))
	})

	out := make(chan gatewayFrame, 16)
	writerDone := make(chan struct{})
	go g.writeLoop(conn, out, writerDone)
	defer func() {
		close(out)
		<-writerDone
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("ingress: websocket read: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			out <- gatewayFrame{Type: frameError, Error: "text frames only"}
			continue
		}
		for _, f := range g.handleFrame(ctx, data) {
			out <- f
		}
		// pongs are not read while a frame is handled
		_ = conn.SetReadDeadline(time.Now().Add(g.pongWait))
	}
}

func (g *Gateway) handleFrame(ctx context.Context, data []byte) []gatewayFrame {
	var req gatewayRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return []gatewayFrame{{Type: frameError, Error: "invalid message frame"}}
	}
	if err := req.validate(); err != nil {
		return []gatewayFrame{{Type: frameError, RequestID: req.RequestID, Error: err.Error()}}
	}
	res, err := g.relay.Handle(ctx, req.message())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("ingress: gateway handle: %v", err)
		}
		return []gatewayFrame{{Type: frameError, RequestID: req.RequestID, Error: "request cancelled"}}
	}
	if !res.Handled {
		return []gatewayFrame{{Type: frameSkipped, RequestID: req.RequestID}}
	}
	resp := newMessageResponse(res)
	frames := make([]gatewayFrame, 0, len(resp.Chunks))
	for i, c := range resp.Chunks {
		frames = append(frames, gatewayFrame{
			Type:       frameReply,
			RequestID:  req.RequestID,
			SessionRef: res.SessionRef,
			Content:    c,
			Index:      i,
			Final:      i == len(resp.Chunks)-1,
		})
	}
	return frames
}

func (g *Gateway) writeLoop(conn *websocket.Conn, out <-chan gatewayFrame, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(g.pongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case f, ok := <-out:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				log.Printf("ingress: websocket write: %v", err)
				// keep draining so the reader never blocks
				for range out {
				}
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				for range out {
				}
				return
			}
		}
	}
}
