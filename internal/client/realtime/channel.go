package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	wire "github.com/zenite-os/zenite/internal/services/netlink/realtime"
)

// Channel is one open realtime connection.
type Channel interface {
	Receive() (wire.Frame, error)
	Send(frame wire.Frame) error
	Close() error
}

// Dialer opens channels to the NetLink realtime endpoint.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// WSDialer dials the /ws endpoint with gorilla/websocket.
type WSDialer struct {
	// URL is the ws:// or wss:// address of the endpoint.
	URL string
	// Token returns the current bearer token.
	Token            func() string
	HandshakeTimeout time.Duration
}

// Dial opens an authenticated websocket.
func (d WSDialer) Dial(ctx context.Context) (Channel, error) {
	endpoint := strings.TrimSpace(d.URL)
	if endpoint == "" {
		return nil, errors.New("realtime url is required")
	}
	header := http.Header{}
	if d.Token != nil {
		if token := strings.TrimSpace(d.Token()); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			if len(body) > 0 {
				return nil, fmt.Errorf("realtime connect failed: %v (%s)", err, strings.TrimSpace(string(body)))
			}
		}
		return nil, fmt.Errorf("realtime connect failed: %w", err)
	}
	return &wsChannel{conn: conn}, nil
}

type wsChannel struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsChannel) Receive() (wire.Frame, error) {
	var frame wire.Frame
	if err := c.conn.ReadJSON(&frame); err != nil {
		return wire.Frame{}, err
	}
	return frame, nil
}

func (c *wsChannel) Send(frame wire.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
