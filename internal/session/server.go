package session

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"

	"nhooyr.io/websocket"

	"github.com/greymass/statehistory/internal/logger"
)

// sendBufferBytes is the TCP send/recv buffer size (1 MiB) applied to
// every accepted connection alongside TCP_NODELAY.
const sendBufferBytes = 1 << 20

// Server is the acceptor and session table: it binds the configured
// endpoint, accepts connections, and starts a Session per accept. Accept
// errors are left to http.Server.Serve (see acceptLoop), which retries
// temporary ones such as EMFILE instead of exiting.
type Server struct {
	handler Handler

	httpServer *http.Server
	listener   net.Listener

	sessions   map[uint64]*Session
	sessionsMu sync.Mutex
	nextID     atomic.Uint64

	stopping atomic.Bool
	wg       sync.WaitGroup
}

// NewServer constructs a Server that will dispatch decoded requests to
// handler.
func NewServer(handler Handler) *Server {
	return &Server{
		handler:  handler,
		sessions: make(map[uint64]*Session),
	}
}

// Listen binds address (host:port), applies SO_REUSEADDR and per-connection
// TCP tuning via a custom net.Listener, and begins accepting in the
// background. It returns once the listener is bound.
func (s *Server) Listen(address string) error {
	lc := net.ListenConfig{
		Control: func(network, addr string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	ln, err := lc.Listen(context.Background(), "tcp", address)
	if err != nil {
		return err
	}
	s.listener = &tunedListener{Listener: ln}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	s.httpServer = &http.Server{Handler: mux}

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// acceptLoop delegates the accept/re-arm cycle to http.Server.Serve,
// which already retries on a temporary Accept error (EMFILE among them)
// with a backoff instead of exiting; it only returns once the listener
// is closed during shutdown.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	err := s.httpServer.Serve(s.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) && !s.stopping.Load() {
		logger.Warning("session: accept loop exited: %v", err)
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.stopping.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		logger.Warning("session: websocket accept error: %v", err)
		return
	}

	id := s.nextID.Add(1)
	sess := newSession(id, conn, s.handler, s.removeSession)

	s.sessionsMu.Lock()
	if s.stopping.Load() {
		s.sessionsMu.Unlock()
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}
	s.sessions[id] = sess
	s.sessionsMu.Unlock()

	sess.start(context.Background())
}

func (s *Server) removeSession(sess *Session) {
	s.sessionsMu.Lock()
	delete(s.sessions, sess.id)
	s.sessionsMu.Unlock()
}

// Close sets stopping, closes every open session, and shuts the
// listener. Every in-flight handler early-returns because its session
// is forcibly closed.
func (s *Server) Close() error {
	if !s.stopping.CompareAndSwap(false, true) {
		return errors.New("session: server already closed")
	}

	// Session.Close calls removeSession, which takes sessionsMu, so the
	// sessions are closed only after the lock is released.
	s.sessionsMu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.sessionsMu.Unlock()

	for _, sess := range open {
		sess.Close()
	}

	if s.httpServer != nil {
		s.httpServer.Close()
	}

	s.wg.Wait()
	return nil
}

// SessionCount reports the number of currently open sessions.
func (s *Server) SessionCount() int {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return len(s.sessions)
}

// tunedListener wraps a net.Listener to apply TCP_NODELAY and enlarged
// send/recv buffers to every accepted *net.TCPConn. No example in this
// codebase sets these socket options, so this is grounded directly on
// net.TCPConn's stdlib API rather than a third-party transport library.
type tunedListener struct {
	net.Listener
}

func (l *tunedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
		tcp.SetReadBuffer(sendBufferBytes)
		tcp.SetWriteBuffer(sendBufferBytes)
	}
	return conn, nil
}
