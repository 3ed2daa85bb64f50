package internal

import (
	"context"
	"errors"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

var sessionDebug = os.Getenv("WSLINE_DEBUG") != ""

func sdbg(id, format string, args ...any) {
	if !sessionDebug {
		return
	}
	log.Printf("[SESSION|"+id+"] "+format, args...)
}

// ErrSessionTerminated is returned by Cast/Send/Notify/Shutdown once the
// session has exited.
var ErrSessionTerminated = errors.New("session terminated")

// closeGrace bounds the closing handshake: once a close is underway the
// session terminates within this window no matter what the server does.
// Fixed at 5s on purpose; tests shorten it.
var closeGrace = 5 * time.Second

// Mailbox events. Socket events carry the connection generation so events
// from a torn-down connection cannot leak into the next one.
type event interface{ isEvent() }

type evBytes struct {
	gen int
	b   []byte
}

type evClosed struct {
	gen int
	err error
}

type evCast struct{ msg any }

type evSend struct{ b []byte }

type evInfo struct{ msg any }

type sysOp uint8

const (
	sysGetState sysOp = iota
	sysReplaceState
	sysTerminate
)

type evSystem struct {
	op    sysOp
	h     Handler
	reply chan Handler
}

func (evBytes) isEvent()  {}
func (evClosed) isEvent() {}
func (evCast) isEvent()   {}
func (evSend) isEvent()   {}
func (evInfo) isEvent()   {}
func (evSystem) isEvent() {}

// Session is one WebSocket connection plus its handler. A single goroutine
// runs the state machine and all handler callbacks; a per-connection reader
// goroutine pumps socket bytes into the mailbox.
type Session struct {
	id      string
	handler Handler
	opts    *Options
	conn    *Conn

	mail chan event
	done chan struct{}

	// Owned by the state-machine goroutine.
	buf     []byte
	asm     reassembly
	gen     int
	attempt int

	waitErr error // valid once done is closed
}

// Start creates a Session for rawurl and connects it.
//
// With opts.Async false, Start blocks until the handshake completes and
// returns the connect error directly. With opts.Async true, Start returns
// at once and failures surface only through OnConnectFailure. Cancelling
// ctx makes the session close normally and terminate.
func Start(ctx context.Context, rawurl string, h Handler, opts *Options) (*Session, error) {
	opts = opts.withDefaults()
	conn, err := NewConn(rawurl, opts)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:      uuid.NewString(),
		handler: h,
		opts:    opts,
		conn:    conn,
		mail:    make(chan event, 64),
		done:    make(chan struct{}),
	}

	if opts.Async {
		go s.run(ctx, false)
		return s, nil
	}

	if err := s.connect(ctx); err != nil {
		_ = s.conn.Close()
		return nil, err
	}
	go s.run(ctx, true)
	return s, nil
}

// ID returns the session's UUID, also used in debug logs.
func (s *Session) ID() string { return s.id }

// Cast delivers a fire-and-forget message to OnCast.
func (s *Session) Cast(msg any) error { return s.post(evCast{msg: msg}) }

// Send encodes f in the caller (encode errors come back here, synchronously)
// and queues the bytes for the wire.
func (s *Session) Send(f Frame) error {
	b, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	return s.post(evSend{b: b})
}

// Notify delivers an arbitrary message to OnInfo.
func (s *Session) Notify(msg any) error { return s.post(evInfo{msg: msg}) }

// Shutdown asks the session to run a normal closing handshake and exit.
func (s *Session) Shutdown() error { return s.post(evSystem{op: sysTerminate}) }

// State fetches the handler value from the session goroutine.
func (s *Session) State() (Handler, error) {
	reply := make(chan Handler, 1)
	if err := s.post(evSystem{op: sysGetState, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case h := <-reply:
		return h, nil
	case <-s.done:
		return nil, ErrSessionTerminated
	}
}

// ReplaceState swaps the handler value on the session goroutine.
func (s *Session) ReplaceState(h Handler) error {
	return s.post(evSystem{op: sysReplaceState, h: h})
}

// Done is closed when the session has terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until termination. It returns nil when the session ended
// normally (close code 1000, a bare close, or an abrupt remote TCP close
// the handler accepted), the termination reason otherwise.
func (s *Session) Wait() error {
	<-s.done
	return s.waitErr
}

func (s *Session) post(ev event) error {
	select {
	case <-s.done:
		return ErrSessionTerminated
	default:
	}
	select {
	case s.mail <- ev:
		return nil
	case <-s.done:
		return ErrSessionTerminated
	}
}

// connect runs one full connection attempt: dial, upgrade, OnConnect, then
// flips the connection into active mode by starting its reader.
func (s *Session) connect(ctx context.Context) error {
	start := time.Now()
	if err := s.conn.Open(ctx); err != nil {
		return err
	}
	leftover, err := s.conn.Upgrade()
	if err != nil {
		_ = s.conn.Close()
		return err
	}
	observeDial(s.conn.URL.Host, time.Since(start))
	sdbg(s.id, "connected to %s (%s)", s.conn.URL.Host, s.conn.Kind)

	if err := s.guardConnect(); err != nil {
		_ = s.conn.Close()
		return err
	}

	s.buf = append(s.buf[:0], leftover...)
	s.asm.reset()
	s.gen++
	go s.readLoop(s.conn, s.gen)
	return nil
}

func (s *Session) guardConnect() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &HandlerPanicError{Callback: "OnConnect", Value: p, Stack: debug.Stack()}
		}
	}()
	return s.handler.OnConnect(s.conn)
}

// readLoop pumps socket bytes into the mailbox until the socket dies or the
// session ends. One loop exists per connection generation.
func (s *Session) readLoop(c *Conn, gen int) {
	buf := make([]byte, 32*1024)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			b := make([]byte, n)
			copy(b, buf[:n])
			if s.post(evBytes{gen: gen, b: b}) != nil {
				return
			}
		}
		if err != nil {
			_ = s.post(evClosed{gen: gen, err: err})
			return
		}
	}
}

// run is the session goroutine: (connect) -> open -> closing -> disconnect,
// looping back through connect while the handler keeps asking to reconnect.
func (s *Session) run(ctx context.Context, connected bool) {
	if !connected {
		if err := s.establish(ctx); err != nil {
			s.terminate(err)
			return
		}
	}

	for {
		ex, err := s.open(ctx)
		if err != nil {
			s.terminate(err)
			return
		}

		reason := ex.reason
		if !ex.skipClosing {
			reason = s.closing(ex)
		}

		retry, err := s.disconnect(reason)
		if err != nil {
			s.terminate(err)
			return
		}
		if !retry {
			s.terminate(&CloseError{CloseReason: reason})
			return
		}

		observeReconnect(s.conn.URL.Host)
		if err := s.establish(ctx); err != nil {
			s.terminate(err)
			return
		}
	}
}

// establish retries connect under the handler's OnConnectFailure policy.
func (s *Session) establish(ctx context.Context) error {
	for {
		err := s.connect(ctx)
		if err == nil {
			s.attempt = 0
			return nil
		}
		_ = s.conn.Close()

		s.attempt++
		observeConnectFailure(s.conn.URL.Host, err)
		sdbg(s.id, "connect attempt %d failed: %v", s.attempt, err)

		rep, perr := s.invoke("OnConnectFailure", func() Reply {
			return s.handler.OnConnectFailure(ConnectFailure{Err: err, Attempt: s.attempt, Conn: s.conn})
		})
		if perr != nil {
			return perr
		}

		switch r := rep.(type) {
		case replyContinue:
			return err
		case replyReconnect:
			if r.conn != nil {
				s.conn = r.conn
			}
			if d := reconnectDelay(s.opts, s.attempt); d > 0 {
				select {
				case <-time.After(d):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		default:
			return s.badResponse("OnConnectFailure", err, rep)
		}
	}
}

// disconnect runs OnDisconnect and decides between termination and another
// connect sequence.
func (s *Session) disconnect(reason CloseReason) (retry bool, err error) {
	_ = s.conn.Close()
	sdbg(s.id, "disconnected: %s", reason)

	rep, perr := s.invoke("OnDisconnect", func() Reply {
		return s.handler.OnDisconnect(reason)
	})
	if perr != nil {
		return false, perr
	}

	switch r := rep.(type) {
	case replyContinue:
		return false, nil
	case replyReconnect:
		if r.conn != nil {
			// Swapping the Conn is an OnConnectFailure privilege.
			return false, s.badResponse("OnDisconnect", reason, rep)
		}
		s.buf = s.buf[:0]
		s.asm.reset()
		s.attempt = 0
		return true, nil
	default:
		return false, s.badResponse("OnDisconnect", reason, rep)
	}
}

// terminate is the single exit path: teardown, OnTerminate, result publish.
func (s *Session) terminate(reason error) {
	_ = s.conn.Close()

	func() {
		defer func() { _ = recover() }()
		s.handler.OnTerminate(reason)
	}()

	var ce *CloseError
	if errors.As(reason, &ce) && ce.Normal() {
		s.waitErr = nil
	} else {
		s.waitErr = reason
	}
	sdbg(s.id, "terminated: %v", s.waitErr)
	close(s.done)
}
