package liveview

import (
	"fmt"
	"github.com/gorilla/websocket"
)

// messageConn is the part of a websocket connection the proxy needs.
// Both gorilla and fiber connections satisfy it and share message type values.
type messageConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

// dialPage opens the DevTools websocket of a page target
func (s *Server) dialPage(id string) (*websocket.Conn, error) {
	url := fmt.Sprintf("ws://%s/devtools/page/%s", s.cdpAddr, id)
	conn, _, err := s.dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// pipe copies messages from src to dst until either side fails
func pipe(dst, src messageConn) {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			return
		}
		if err := dst.WriteMessage(messageType, message); err != nil {
			return
		}
	}
}
