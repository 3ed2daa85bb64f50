package internal

import "log"

// ConnectFailure describes one failed connection attempt, passed to
// OnConnectFailure. Attempt counts from 1 within a connect sequence.
type ConnectFailure struct {
	Err     error
	Attempt int
	Conn    *Conn
}

// Handler is the user side of a session. All callbacks run on the session
// goroutine, one at a time; they must not block indefinitely (the close
// grace timer cannot fire while a callback runs).
//
// Embed DefaultHandler to pick up the default behaviors and override what
// you need. State lives in the handler value itself; the session never
// copies it.
type Handler interface {
	// OnConnect runs after every successful handshake, initial or
	// reconnect. A non-nil error fails that connection attempt: a
	// synchronous Start returns it, otherwise it goes to OnConnectFailure.
	OnConnect(conn *Conn) error

	// OnFrame receives whole text/binary messages, fragmentation already
	// undone. There is no default: DefaultHandler returns nil, which
	// terminates the session with a BadResponseError.
	OnFrame(f Frame) Reply

	// OnCast receives messages submitted with Session.Cast. No default.
	OnCast(msg any) Reply

	// OnInfo receives anything submitted with Session.Notify.
	OnInfo(msg any) Reply

	// OnPing runs for inbound pings; the default replies with a pong
	// carrying the same payload.
	OnPing(payload []byte) Reply

	OnPong(payload []byte) Reply

	// OnDisconnect runs whenever an established connection ends, with the
	// reason. Reply Reconnect() to dial the same Conn again, or Continue()
	// to terminate; any other reply is a BadResponseError.
	OnDisconnect(reason CloseReason) Reply

	// OnConnectFailure runs when a connection attempt fails (async start
	// or reconnect). Reply Reconnect() to retry, or ReconnectWith to swap
	// in a different Conn for the next attempt.
	OnConnectFailure(f ConnectFailure) Reply

	// OnTerminate is the last callback; reason is nil-safe to inspect but
	// never nil for abnormal exits.
	OnTerminate(reason error)
}

// Reply is what a callback tells the session to do next. Construct replies
// only with the functions below; a nil or out-of-place Reply terminates the
// session with a BadResponseError.
type Reply interface {
	isReply()
}

type replyContinue struct{}

type replySend struct{ f Frame }

type replyClose struct {
	code   StatusCode
	reason string
	coded  bool
}

type replyReconnect struct{ conn *Conn }

func (replyContinue) isReply()  {}
func (replySend) isReply()      {}
func (replyClose) isReply()     {}
func (replyReconnect) isReply() {}

// Continue keeps going with no wire action.
func Continue() Reply { return replyContinue{} }

// Send writes one frame before the loop resumes.
func Send(f Frame) Reply { return replySend{f: f} }

// CloseNormal starts the closing handshake with a bare close frame.
func CloseNormal() Reply { return replyClose{} }

// CloseWith starts the closing handshake with an explicit code and reason.
func CloseWith(code StatusCode, reason string) Reply {
	return replyClose{code: code, reason: reason, coded: true}
}

// Reconnect (from OnDisconnect or OnConnectFailure) dials the same Conn
// again.
func Reconnect() Reply { return replyReconnect{} }

// ReconnectWith (from OnConnectFailure only) swaps in a new Conn for the
// next attempt.
func ReconnectWith(c *Conn) Reply { return replyReconnect{conn: c} }

// DefaultHandler provides the default behavior for every callback.
type DefaultHandler struct{}

func (DefaultHandler) OnConnect(*Conn) error { return nil }

// OnFrame has no default; returning nil makes the session fail with a
// BadResponseError naming the callback.
func (DefaultHandler) OnFrame(Frame) Reply { return nil }

func (DefaultHandler) OnCast(any) Reply { return nil }

func (DefaultHandler) OnInfo(msg any) Reply {
	log.Printf("[SESSION] unhandled info message: %v", msg)
	return Continue()
}

func (DefaultHandler) OnPing(payload []byte) Reply { return Send(Pong(payload)) }

func (DefaultHandler) OnPong([]byte) Reply { return Continue() }

func (DefaultHandler) OnDisconnect(CloseReason) Reply { return Continue() }

func (DefaultHandler) OnConnectFailure(ConnectFailure) Reply { return Continue() }

func (DefaultHandler) OnTerminate(error) {}
