package endpoint

import (
	"context"

	"github.com/gorilla/websocket"
)

// Socket is the subset of *websocket.Conn the broker client uses.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens broker sockets. The default implementation wraps
// gorilla/websocket; tests inject scripted sockets.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Socket, error)
}

type wsDialer struct{}

func (wsDialer) DialContext(ctx context.Context, url string) (Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
