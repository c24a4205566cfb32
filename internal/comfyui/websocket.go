package comfyui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	apperrors "comfy-bridge/internal/errors"
)

// ErrStreamClosed is returned by ReadMessage once the connection has been
// closed, by either side.
var ErrStreamClosed = errors.New("upstream stream closed")

const controlWriteTimeout = 5 * time.Second

// Stream is one upstream WebSocket connection bound to a client id
type Stream struct {
	conn        *websocket.Conn
	readTimeout time.Duration

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// OpenStream connects to the engine's event socket as clientID
func (c *Client) OpenStream(ctx context.Context, clientID string) (*Stream, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	q := u.Query()
	q.Set("clientId", clientID)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, classifyRequestError(fmt.Errorf("websocket dial: %w", err), apperrors.ErrUnknownTransport)
	}

	s := &Stream{
		conn:        conn,
		readTimeout: c.readTimeout,
	}

	// Set up read deadline management
	s.extendDeadline()
	conn.SetPongHandler(func(string) error {
		s.extendDeadline()
		return nil
	})

	return s, nil
}

// ReadMessage blocks for the next frame. It must be called from a single
// goroutine.
func (s *Stream) ReadMessage() (isBinary bool, data []byte, err error) {
	msgType, data, err := s.conn.ReadMessage()
	if err != nil {
		if s.closed.Load() || isClosure(err) {
			return false, nil, fmt.Errorf("%w: %v", ErrStreamClosed, err)
		}
		return false, nil, fmt.Errorf("websocket read: %w", err)
	}

	// Reset read deadline on any message
	s.extendDeadline()
	return msgType == websocket.BinaryMessage, data, nil
}

// Ping sends a keepalive ping. Safe to call concurrently with ReadMessage.
func (s *Stream) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteTimeout))
}

// Close sends a normal close frame and tears the connection down without
// waiting for the remote's reply. Safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(controlWriteTimeout))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Stream) extendDeadline() {
	if s.readTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
}

func isClosure(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
