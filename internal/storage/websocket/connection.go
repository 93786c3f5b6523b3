package wsstorage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/roadops/operator-console/pkg/streaming"
)

const (
	sendQueueSize = 4096
	ackQueueSize  = 8
	maxRedials    = 10
	maxBackoff    = 30 * time.Second
	writeWait     = 10 * time.Second
	ackTimeout    = 10 * time.Second
)

// link owns one viewer connection. A single writer goroutine drains the send
// queue; a reader routes acks back to callers waiting on them.
type link struct {
	mu     sync.Mutex
	conn   *ws.Conn
	gone   chan struct{} // closed when conn is replaced
	queue  chan []byte
	acks   chan streaming.AckMessage
	done   chan struct{}
	closed bool

	target string
	secret string

	// replayed first after a redial so the server can rejoin the session
	hello []byte

	// first redial backoff, shortened in tests
	backoff time.Duration

	logger *slog.Logger
}

func newLink(logger *slog.Logger) *link {
	return &link{
		queue:   make(chan []byte, sendQueueSize),
		acks:    make(chan streaming.AckMessage, ackQueueSize),
		done:    make(chan struct{}),
		backoff: time.Second,
		logger:  logger,
	}
}

func (l *link) dial(target, secret string) error {
	l.target = target
	l.secret = secret

	conn, err := l.dialOnce()
	if err != nil {
		return err
	}

	gone := make(chan struct{})
	l.mu.Lock()
	l.conn = conn
	l.gone = gone
	l.mu.Unlock()

	go l.writeLoop(conn, gone)
	go l.readLoop(conn)
	return nil
}

func (l *link) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(l.target)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if l.secret != "" {
		q := u.Query()
		q.Set("secret", l.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (l *link) writeLoop(conn *ws.Conn, gone chan struct{}) {
	for {
		select {
		case <-l.done:
			return
		case <-gone:
			return
		case data := <-l.queue:
			select {
			case <-gone:
				// picked up after conn broke; leave it for the next writer
				l.send(data)
				return
			default:
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				l.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				go l.redial(conn)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				l.logger.Warn("WebSocket write error", "error", err)
				go l.redial(conn)
				return
			}
		}
	}
}

func (l *link) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			l.logger.Warn("WebSocket read error", "error", err)
			go l.redial(conn)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			l.logger.Debug("Ignoring viewer message", "raw", string(message))
			continue
		}
		select {
		case l.acks <- ack:
		default:
			l.logger.Debug("Ack queue full, dropping", "for", ack.For)
		}
	}
}

// redial replaces broken with a fresh connection, backing off exponentially.
// Both loops may report the same failure; only the first one redials.
func (l *link) redial(broken *ws.Conn) {
	l.mu.Lock()
	if l.closed || l.conn != broken {
		l.mu.Unlock()
		return
	}
	_ = broken.Close()
	l.conn = nil
	close(l.gone)
	l.mu.Unlock()

	backoff := l.backoff
	for attempt := 1; attempt <= maxRedials; attempt++ {
		select {
		case <-l.done:
			return
		case <-time.After(backoff):
		}

		l.logger.Info("Redialing viewer stream", "attempt", attempt)
		conn, err := l.dialOnce()
		if err != nil {
			l.logger.Warn("Redial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			_ = conn.Close()
			return
		}
		gone := make(chan struct{})
		l.conn = conn
		l.gone = gone
		hello := l.hello
		l.mu.Unlock()

		if hello != nil {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
				err = conn.WriteMessage(ws.TextMessage, hello)
			}
			if err != nil {
				l.logger.Warn("Failed to replay session start", "error", err)
			}
		}

		l.logger.Info("Viewer stream reconnected", "attempt", attempt)
		go l.writeLoop(conn, gone)
		go l.readLoop(conn)
		return
	}

	l.logger.Error("Viewer stream lost", "attempts", maxRedials)
}

// send queues data for the writer and drops it when the queue is full.
func (l *link) send(data []byte) bool {
	select {
	case l.queue <- data:
		return true
	default:
		l.logger.Warn("WebSocket send queue full, dropping message")
		return false
	}
}

// sendAndWait queues data and blocks until the viewer acks msgType.
func (l *link) sendAndWait(data []byte, msgType string, timeout time.Duration) error {
	if !l.send(data) {
		return fmt.Errorf("send queue full for %q", msgType)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-l.acks:
			if ack.For == msgType {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", msgType)
		case <-l.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", msgType)
		}
	}
}

func (l *link) close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}
