// Package session implements the per-client state machine and the
// acceptor that drives it: a WebSocket-framed transport, a one-time text
// ABI handshake followed by binary request/response frames, and an
// ordered send queue enforcing at most one write in flight. The shape
// follows corestream's Server/streamClient split, adapted from an
// open block-type byte to the closed state_request/state_result unions
// of this protocol.
package session

import (
	"context"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"

	"github.com/greymass/statehistory/internal/logger"
	"github.com/greymass/statehistory/internal/protocol"
)

// State is the session lifecycle: init -> accepting -> open -> closed.
type State int32

const (
	StateInit State = iota
	StateAccepting
	StateOpen
	StateClosed
)

// Handler resolves decoded requests against the node's state. It is the
// narrow seam between the transport-level session and the history logs
// and chain engine.
type Handler interface {
	HandleGetStatus() protocol.GetStatusResultV0
	HandleGetBlock(blockNum uint32) protocol.GetBlockResultV0
}

// Session is one accepted client connection. sendQueue holds serialized
// frames not yet written; drainSendQueue enforces the single-in-flight-write
// invariant by draining it one frame at a time.
type Session struct {
	id      uint64
	conn    *websocket.Conn
	handler Handler

	state atomic.Int32

	mu        sync.Mutex
	sendQueue [][]byte
	writing   bool

	closeOnce sync.Once
	closed    chan struct{}

	onClose func(*Session)
}

func newSession(id uint64, conn *websocket.Conn, handler Handler, onClose func(*Session)) *Session {
	s := &Session{
		id:      id,
		conn:    conn,
		handler: handler,
		closed:  make(chan struct{}),
		onClose: onClose,
	}
	s.state.Store(int32(StateInit))
	return s
}

// start drives the session from init through the handshake into open,
// then runs the read loop until the connection closes. It blocks until
// the session is closed, so callers run it on its own goroutine.
func (s *Session) start(ctx context.Context) {
	s.state.Store(int32(StateAccepting))

	if err := s.conn.Write(ctx, websocket.MessageText, []byte(protocol.ABI)); err != nil {
		logger.Warning("session %d: abi handshake failed: %v", s.id, err)
		s.Close()
		return
	}

	s.state.Store(int32(StateOpen))
	s.readLoop(ctx)
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		msgType, data, err := s.conn.Read(ctx)
		if err != nil {
			s.Close()
			return
		}
		if msgType != websocket.MessageBinary {
			logger.Warning("session %d: unexpected %v frame after handshake", s.id, msgType)
			s.Close()
			return
		}

		req, err := protocol.DecodeRequest(data)
		if err != nil {
			logger.Warning("session %d: decode error: %v", s.id, err)
			s.Close()
			return
		}

		var result protocol.Result
		switch r := req.(type) {
		case protocol.GetStatusRequestV0:
			result = s.handler.HandleGetStatus()
		case protocol.GetBlockRequestV0:
			result = s.handler.HandleGetBlock(r.BlockNum)
		default:
			logger.Warning("session %d: unhandled request type %T", s.id, req)
			s.Close()
			return
		}

		s.enqueue(ctx, protocol.EncodeResult(result))
	}
}

// enqueue appends frame to the send queue and starts the writer if it is
// currently idle. A read completing and enqueuing a response never waits
// on an in-flight write — it only ever appends.
func (s *Session) enqueue(ctx context.Context, frame []byte) {
	s.mu.Lock()
	s.sendQueue = append(s.sendQueue, frame)
	if s.writing {
		s.mu.Unlock()
		return
	}
	s.writing = true
	s.mu.Unlock()

	go s.drainSendQueue(ctx)
}

// drainSendQueue writes queued frames one at a time, popping the head
// only after its write completes, preserving enqueue order and the
// at-most-one-in-flight-write invariant.
func (s *Session) drainSendQueue(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.sendQueue) == 0 {
			s.writing = false
			s.mu.Unlock()
			return
		}
		frame := s.sendQueue[0]
		s.sendQueue = s.sendQueue[1:]
		s.mu.Unlock()

		if err := s.conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
			logger.Warning("session %d: write error: %v", s.id, err)
			s.Close()
			return
		}
	}
}

// Close shuts the underlying socket and is idempotent; concurrent or
// repeated calls beyond the first are no-ops.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		close(s.closed)
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}
