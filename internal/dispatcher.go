package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"syscall"
	"time"
)

// openExit describes how the open loop ended.
type openExit struct {
	reason CloseReason
	// sendClose: a close frame still has to go out (ours, or the echo of a
	// remote close).
	sendClose  bool
	closeFrame Frame
	// skipClosing: the socket is already gone, no closing handshake to run.
	skipClosing bool
}

// open is the steady-state event loop. It parses at most one frame per
// iteration and services the mailbox in between, so neither direction can
// starve the other. It returns how the connection ended, or a hard error
// that terminates the session outright.
func (s *Session) open(ctx context.Context) (openExit, error) {
	for {
		if len(s.buf) > 0 {
			f, n, err := ParseFrame(s.buf, s.opts.MaxFramePayload)
			if err != nil {
				return s.failExit(err), nil
			}
			if n > 0 {
				s.buf = s.buf[n:]
				observeFrameIn(n)
				ex, done, err := s.dispatchFrame(f)
				if done || err != nil {
					return ex, err
				}
				// Service one pending event before the next frame.
				select {
				case ev := <-s.mail:
					ex, done, err := s.handleEvent(ev)
					if done || err != nil {
						return ex, err
					}
				default:
				}
				continue
			}
		}

		select {
		case ev := <-s.mail:
			ex, done, err := s.handleEvent(ev)
			if done || err != nil {
				return ex, err
			}
		case <-ctx.Done():
			return openExit{
				reason:     CloseReason{Origin: OriginLocal},
				sendClose:  true,
				closeFrame: CloseEmpty(),
			}, nil
		}
	}
}

// failExit turns an inbound protocol violation into a local close with the
// violation's code (1002, or 1009 for oversized frames).
func (s *Session) failExit(err error) openExit {
	var pe *FrameParseError
	if !errors.As(err, &pe) {
		pe = &FrameParseError{Reason: err.Error(), Code: StatusProtocolError}
	}
	sdbg(s.id, "protocol violation: %s", pe.Reason)
	return openExit{
		reason:     CloseReason{Origin: OriginLocal, Code: pe.Code, Reason: pe.Reason},
		sendClose:  true,
		closeFrame: Close(pe.Code, pe.Reason),
	}
}

func (s *Session) dispatchFrame(f Frame) (openExit, bool, error) {
	switch f.Kind {
	case KindPing:
		return s.applyReply("OnPing", f, func() Reply { return s.handler.OnPing(f.Payload) })

	case KindPong:
		return s.applyReply("OnPong", f, func() Reply { return s.handler.OnPong(f.Payload) })

	case KindClose:
		// Echo the peer's close and move to the closing loop.
		// A bare close is reported as {remote, 1000}.
		echo := CloseEmpty()
		code := StatusNormalClosure
		if f.Code != 0 {
			echo = Close(f.Code, "")
			code = f.Code
		}
		return openExit{
			reason:     CloseReason{Origin: OriginRemote, Code: code, Reason: f.Reason},
			sendClose:  true,
			closeFrame: echo,
		}, true, nil

	default:
		whole, complete, err := s.asm.push(f)
		if err != nil {
			return s.failExit(err), true, nil
		}
		if !complete {
			return openExit{}, false, nil
		}
		return s.applyReply("OnFrame", whole, func() Reply { return s.handler.OnFrame(whole) })
	}
}

func (s *Session) handleEvent(ev event) (openExit, bool, error) {
	switch e := ev.(type) {
	case evBytes:
		if e.gen == s.gen {
			s.buf = append(s.buf, e.b...)
		}
		return openExit{}, false, nil

	case evClosed:
		if e.gen != s.gen {
			return openExit{}, false, nil
		}
		return openExit{reason: closeReasonFor(e.err), skipClosing: true}, true, nil

	case evCast:
		return s.applyReply("OnCast", e.msg, func() Reply { return s.handler.OnCast(e.msg) })

	case evSend:
		if err := s.conn.Write(e.b); err != nil {
			return s.sendFailure(err)
		}
		observeFrameOut(len(e.b))
		return openExit{}, false, nil

	case evInfo:
		return s.applyReply("OnInfo", e.msg, func() Reply { return s.handler.OnInfo(e.msg) })

	case evSystem:
		switch e.op {
		case sysGetState:
			e.reply <- s.handler
			return openExit{}, false, nil
		case sysReplaceState:
			s.handler = e.h
			return openExit{}, false, nil
		default: // sysTerminate
			return openExit{
				reason:     CloseReason{Origin: OriginLocal},
				sendClose:  true,
				closeFrame: CloseEmpty(),
			}, true, nil
		}

	default:
		return openExit{}, false, nil
	}
}

// applyReply validates and executes one callback reply. Frames the handler
// sends go out synchronously before the loop resumes.
func (s *Session) applyReply(callback string, args any, fn func() Reply) (openExit, bool, error) {
	rep, perr := s.invoke(callback, fn)
	if perr != nil {
		return openExit{}, false, perr
	}

	switch r := rep.(type) {
	case replyContinue:
		return openExit{}, false, nil

	case replySend:
		b, err := EncodeFrame(r.f)
		if err != nil {
			return openExit{}, false, err
		}
		if err := s.conn.Write(b); err != nil {
			return s.sendFailure(err)
		}
		observeFrameOut(len(b))
		return openExit{}, false, nil

	case replyClose:
		reason := CloseReason{Origin: OriginLocal}
		frame := CloseEmpty()
		if r.coded {
			reason = CloseReason{Origin: OriginLocal, Code: r.code, Reason: r.reason}
			frame = Close(r.code, r.reason)
		}
		return openExit{reason: reason, sendClose: true, closeFrame: frame}, true, nil

	default:
		return openExit{}, false, s.badResponse(callback, args, rep)
	}
}

// sendFailure maps a write error: a socket the peer already closed counts
// as {remote, closed}; anything else terminates with the error.
func (s *Session) sendFailure(err error) (openExit, bool, error) {
	if isClosedConnError(err) {
		return openExit{reason: CloseReason{Origin: OriginRemote}, skipClosing: true}, true, nil
	}
	return openExit{}, false, err
}

// closing drains the socket until the peer hangs up, bounded by the close
// grace timer; on timeout the socket is force-closed.
func (s *Session) closing(ex openExit) CloseReason {
	reason := ex.reason

	if ex.sendClose {
		b, err := EncodeFrame(ex.closeFrame)
		if err == nil {
			err = s.conn.Write(b)
		}
		if err != nil && isClosedConnError(err) && reason.Origin == OriginLocal {
			// Transport died before our close went out.
			return CloseReason{Origin: OriginRemote}
		}
	}

	timer := time.NewTimer(closeGrace)
	defer timer.Stop()

	for {
		select {
		case ev := <-s.mail:
			switch e := ev.(type) {
			case evClosed:
				if e.gen == s.gen {
					return reason
				}
			case evBytes:
				// Discarded: the close handshake is already decided.
			case evSystem:
				switch e.op {
				case sysGetState:
					e.reply <- s.handler
				case sysReplaceState:
					s.handler = e.h
				}
			default:
				sdbg(s.id, "dropping %T during close", ev)
			}
		case <-timer.C:
			sdbg(s.id, "close grace elapsed, forcing socket shut")
			_ = s.conn.Close()
			return reason
		}
	}
}

func (s *Session) invoke(callback string, fn func() Reply) (rep Reply, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &HandlerPanicError{Callback: callback, Value: p, Stack: debug.Stack()}
		}
	}()
	return fn(), nil
}

func (s *Session) badResponse(callback string, args any, rep Reply) error {
	return &BadResponseError{
		Handler:  fmt.Sprintf("%T", s.handler),
		Callback: callback,
		Args:     args,
		Response: rep,
	}
}

// closeReasonFor classifies a read-side failure: a clean EOF or closed
// socket is the peer hanging up without a close frame; the rest are errors.
func closeReasonFor(err error) CloseReason {
	if err == nil || errors.Is(err, io.EOF) || isClosedConnError(err) {
		return CloseReason{Origin: OriginRemote}
	}
	return CloseReason{Origin: OriginError, Err: err}
}

func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
