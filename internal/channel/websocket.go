package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteTimeout = time.Second

// WebSocketDialer dials <BaseURL>/<jobID>.
type WebSocketDialer struct {
	BaseURL string
	Header  http.Header
	Dialer  *websocket.Dialer
}

// NewWebSocketDialer returns a dialer for the given ws:// or wss:// base URL.
func NewWebSocketDialer(baseURL string) *WebSocketDialer {
	return &WebSocketDialer{BaseURL: baseURL, Dialer: websocket.DefaultDialer}
}

// URLFor returns the channel address for jobID.
func (d *WebSocketDialer) URLFor(jobID string) string {
	return strings.TrimRight(d.BaseURL, "/") + "/" + url.PathEscape(jobID)
}

func (d *WebSocketDialer) Dial(ctx context.Context, jobID string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	target := d.URLFor(jobID)
	conn, resp, err := dialer.DialContext(ctx, target, d.Header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			hint, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("dial status channel %s: %s %q: %w", target, resp.Status, string(hint), err)
		}
		return nil, fmt.Errorf("dial status channel %s: %w", target, err)
	}
	return &wsConn{conn: conn}, nil
}

var _ Dialer = (*WebSocketDialer)(nil)

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Close sends a close frame carrying code, then closes the socket.
func (c *wsConn) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	writeErr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	if err := c.conn.Close(); err != nil {
		return err
	}
	if writeErr != nil && writeErr != websocket.ErrCloseSent {
		return writeErr
	}
	return nil
}
