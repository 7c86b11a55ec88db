package server

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// pointerMessage is a pointer event on the websocket stream.
type pointerMessage struct {
	Type string `json:"type"`
	PointerRequest
}

type streamReply struct {
	Type string `json:"type"`
	Response
}

// stream upgrades to a websocket carrying press, drag and release events.
// Every event gets one reply, in order.
func (s *Server) stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	replies := make(chan streamReply, 16)
	done := make(chan struct{})
	go s.writeLoop(conn, replies, done)
	defer func() {
		close(replies)
		<-done
	}()

	for {
		var msg pointerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		select {
		case replies <- streamReply{Type: msg.Type, Response: s.handleEvent(msg)}:
		case <-done:
			return
		}
	}
}

func (s *Server) handleEvent(msg pointerMessage) Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		resp Response
		err  error
	)
	switch msg.Type {
	case "press":
		resp = s.press(msg.PointerRequest)
	case "drag":
		resp, err = s.move(msg.PointerRequest, false)
	case "release":
		resp, err = s.move(msg.PointerRequest, true)
	default:
		err = fmt.Errorf("unknown event type %q", msg.Type)
	}
	if err != nil {
		return Response{Success: false, Message: err.Error()}
	}
	return resp
}

func (s *Server) writeLoop(conn *websocket.Conn, replies <-chan streamReply, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case r, open := <-replies:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(r); err != nil {
				s.log.Warn("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
