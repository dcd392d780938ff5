package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dontdude/coderoom/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// ErrClosed is returned by Send after the transport has shut down.
var ErrClosed = errors.New("transport closed")

// ConnectionError reports that the link to the server could not be
// established or was lost. Sessions are not re-established automatically.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// WSTransport is a websocket link to the room server.
type WSTransport struct {
	url  string
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
	closed    atomic.Bool // set by Close, distinguishes a hang-up from a lost link
}

var _ Transport = (*WSTransport)(nil)

// Dial connects to the server's websocket endpoint.
func Dial(ctx context.Context, url string) (*WSTransport, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}
	ws.SetReadLimit(maxMessageSize)

	t := &WSTransport{
		url:  url,
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	go t.writePump()
	return t, nil
}

func (t *WSTransport) Send(event domain.Event, payload any) error {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	select {
	case t.send <- data:
		return nil
	case <-t.done:
		return ErrClosed
	}
}

// Listen delivers inbound messages to handle, in order, until the connection
// ends or ctx is cancelled. A lost connection is returned as *ConnectionError;
// a close initiated by Close returns nil.
func (t *WSTransport) Listen(ctx context.Context, handle func(domain.Envelope)) error {
	stop := context.AfterFunc(ctx, func() { t.Close() })
	defer stop()

	t.ws.SetReadDeadline(time.Now().Add(pongWait))
	t.ws.SetPingHandler(func(appData string) error {
		t.ws.SetReadDeadline(time.Now().Add(pongWait))
		return t.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, data, err := t.ws.ReadMessage()
		if err != nil {
			t.shutdown()
			if t.closed.Load() || ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return &ConnectionError{URL: t.url, Err: err}
		}
		t.ws.SetReadDeadline(time.Now().Add(pongWait))

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("invalid message from server", "error", err)
			continue
		}
		handle(env)
	}
}

// Close ends the connection. It is safe to call more than once.
func (t *WSTransport) Close() error {
	t.closed.Store(true)
	t.shutdown()
	return nil
}

func (t *WSTransport) shutdown() {
	t.closeOnce.Do(func() {
		close(t.done)
	})
}

func (t *WSTransport) writePump() {
	defer t.ws.Close()
	for {
		select {
		case data := <-t.send:
			t.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Warn("write to server failed", "error", err)
				t.shutdown()
				return
			}
		case <-t.done:
			t.ws.SetWriteDeadline(time.Now().Add(writeWait))
			t.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
