// Package transport
package transport

import (
	"io"

	"github.com/gorilla/websocket"
)

// DialWebsocket connects to an endpoint that tunnels the modem byte stream
// over websocket binary messages. Message boundaries are ignored; frames are
// reassembled from the concatenated stream like on any other transport.
func DialWebsocket(rawURL string, opts ...Option) (Transport, error) {
	c, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return nil, err
	}
	return NewWebsocket(c, opts...), nil
}

func NewWebsocket(c *websocket.Conn, opts ...Option) Transport {
	return New(&wsConn{Conn: c}, opts...)
}

type wsConn struct {
	*websocket.Conn
	reader io.Reader
}

// Read drains binary messages in order, crossing message boundaries without
// surfacing them. Non-binary messages are dropped.
func (ws *wsConn) Read(buf []byte) (int, error) {
	for {
		if ws.reader == nil {
			typ, r, err := ws.NextReader()
			if err != nil {
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			ws.reader = r
		}

		n, err := ws.reader.Read(buf)
		if err == io.EOF {
			ws.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (ws *wsConn) Write(buf []byte) (int, error) {
	err := ws.Conn.WriteMessage(websocket.BinaryMessage, buf)
	return len(buf), err
}

func (ws *wsConn) Close() error {
	return ws.Conn.Close()
}
