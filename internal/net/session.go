package net

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Settings tunes a Session.
type Settings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	InQueueSize      int
	OutQueueSize     int
}

func DefaultSettings() Settings {
	return Settings{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     15 * time.Second,
		InQueueSize:      128,
		OutQueueSize:     64,
	}
}

// Session is one connection to a scene server. Network I/O runs in
// dedicated goroutines; frames are consumed only from the dispatch loop.
type Session struct {
	ID   ulid.ULID
	URL  string
	conn *websocket.Conn

	InQueue  chan []byte // dispatch loop reads frames from here
	OutQueue chan []byte // writer goroutine reads from here

	outBuf [][]byte // buffered frames, flushed by FlushOutput (dispatch loop only)

	settings  Settings
	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	errOnce   sync.Once
	err       atomic.Value // first error that ended the session

	log *zap.Logger
}

// Dial opens a WebSocket connection to url.
func Dial(ctx context.Context, url string, settings Settings, log *zap.Logger) (*Session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: settings.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewSession(conn, url, settings, log), nil
}

// NewSession wraps an established connection.
func NewSession(conn *websocket.Conn, url string, settings Settings, log *zap.Logger) *Session {
	id := ulid.Make()
	return &Session{
		ID:       id,
		URL:      url,
		conn:     conn,
		InQueue:  make(chan []byte, settings.InQueueSize),
		OutQueue: make(chan []byte, settings.OutQueueSize),
		settings: settings,
		closeCh:  make(chan struct{}),
		log:      log.With(zap.String("session", id.String())),
	}
}

// Start launches the reader and writer goroutines. The session closes when
// either ends or ctx is cancelled.
func (s *Session) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.fail(s.readLoop()) })
	g.Go(func() error { return s.fail(s.writeLoop()) })
	go func() {
		select {
		case <-gctx.Done():
		case <-s.closeCh:
		}
		s.Close()
	}()
	go func() {
		if err := g.Wait(); err != nil && !errors.Is(err, errSessionClosed) {
			s.log.Info("session ended", zap.Error(err))
		}
	}()
}

// fail records the first abnormal loop error. It runs before the loop
// returns, so Err is set by the time Closed fires.
func (s *Session) fail(err error) error {
	if err != nil && !errors.Is(err, errSessionClosed) {
		s.errOnce.Do(func() { s.err.Store(err) })
	}
	return err
}

var errSessionClosed = errors.New("session closed")

// Send buffers a frame. It is not written until FlushOutput runs.
// Called only from the dispatch loop.
func (s *Session) Send(frame []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, frame)
}

// FlushOutput hands buffered frames to the writer goroutine. A full
// OutQueue means the server stopped reading; the session is closed.
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, closing session")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close shuts the connection down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool { return s.closed.Load() }

// Closed is closed once the session shuts down.
func (s *Session) Closed() <-chan struct{} { return s.closeCh }

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	if err, ok := s.err.Load().(error); ok {
		return err
	}
	return nil
}

// readLoop pushes every binary message onto InQueue.
func (s *Session) readLoop() error {
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
	})
	for {
		if s.settings.ReadTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
		}
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return errSessionClosed
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Info("server closed connection")
				s.Close()
				return errSessionClosed
			}
			return fmt.Errorf("read: %w", err)
		}
		if kind != websocket.BinaryMessage {
			s.log.Debug("ignoring non-binary message", zap.Int("type", kind))
			continue
		}

		// Block until the loop catches up; frames must not be dropped.
		select {
		case s.InQueue <- data:
		case <-s.closeCh:
			return errSessionClosed
		}
	}
}

// writeLoop writes queued frames and keeps the connection alive with pings.
func (s *Session) writeLoop() error {
	var ping <-chan time.Time
	if s.settings.PingInterval > 0 {
		t := time.NewTicker(s.settings.PingInterval)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case data := <-s.OutQueue:
			s.conn.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				if s.closed.Load() {
					return errSessionClosed
				}
				return fmt.Errorf("write: %w", err)
			}
			s.log.Debug("TX", zap.Int("len", len(data)))
		case <-ping:
			deadline := time.Now().Add(s.settings.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if s.closed.Load() {
					return errSessionClosed
				}
				return fmt.Errorf("ping: %w", err)
			}
		case <-s.closeCh:
			return errSessionClosed
		}
	}
}
