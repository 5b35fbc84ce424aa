package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roadwatch/backend/internal/domain"
)

const (
	sendBufferSize = 16
	writeTimeout   = 5 * time.Second
	pingInterval   = 30 * time.Second
)

// ErrSlowClient is returned by Send when a client's outbound buffer is full.
var ErrSlowClient = errors.New("client send buffer full")

// clientWriter serializes all writes to one connection through a single
// goroutine. Sends never block the caller: a full buffer drops the message
// and reports the client as slow.
type clientWriter struct {
	conn      *websocket.Conn
	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClientWriter(conn *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		sendCh: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			cw.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				cw.conn.Close()
				return
			}
		case <-pingTicker.C:
			cw.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cw.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cw.conn.Close()
				return
			}
		case <-cw.done:
			return
		}
	}
}

// Send enqueues an envelope for delivery. It implements registry.Handle.
func (cw *clientWriter) Send(env domain.Envelope) error {
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	select {
	case cw.sendCh <- msg:
		return nil
	case <-cw.done:
		return errors.New("connection closed")
	default:
		return ErrSlowClient
	}
}

// Close stops the writer and closes the underlying connection. It implements
// session.Conn and is safe to call more than once.
func (cw *clientWriter) Close() error {
	var err error
	cw.closeOnce.Do(func() {
		close(cw.done)
		err = cw.conn.Close()
	})
	return err
}
