package wsline

// Package wsline provides the public surface of this repository: a
// client-side WebSocket session with a callback handler. The
// implementation lives in internal/ and may change without notice.

import (
	"context"

	"wsline/internal"
)

// --- Frames ---

type Frame = internal.Frame

type FrameKind = internal.FrameKind

const (
	KindText         = internal.KindText
	KindBinary       = internal.KindBinary
	KindPing         = internal.KindPing
	KindPong         = internal.KindPong
	KindClose        = internal.KindClose
	KindFragment     = internal.KindFragment
	KindContinuation = internal.KindContinuation
	KindFinish       = internal.KindFinish
)

type StatusCode = internal.StatusCode

const (
	StatusNormalClosure = internal.StatusNormalClosure
	StatusGoingAway     = internal.StatusGoingAway
	StatusProtocolError = internal.StatusProtocolError
	StatusMessageTooBig = internal.StatusMessageTooBig
	StatusInternalError = internal.StatusInternalError
)

func Text(s string) Frame { return internal.Text(s) }

func Binary(b []byte) Frame { return internal.Binary(b) }

func Ping(payload []byte) Frame { return internal.Ping(payload) }

func Pong(payload []byte) Frame { return internal.Pong(payload) }

func Close(code StatusCode, reason string) Frame { return internal.Close(code, reason) }

func CloseEmpty() Frame { return internal.CloseEmpty() }

func Fragment(kind FrameKind, payload []byte) Frame { return internal.Fragment(kind, payload) }

func Continuation(payload []byte) Frame { return internal.Continuation(payload) }

func Finish(payload []byte) Frame { return internal.Finish(payload) }

// --- Handler contract ---

type Handler = internal.Handler

// DefaultHandler supplies default behavior for every callback; embed it and
// override what you need.
type DefaultHandler = internal.DefaultHandler

type Reply = internal.Reply

func Continue() Reply { return internal.Continue() }

func Send(f Frame) Reply { return internal.Send(f) }

func CloseNormal() Reply { return internal.CloseNormal() }

func CloseWith(code StatusCode, reason string) Reply { return internal.CloseWith(code, reason) }

func Reconnect() Reply { return internal.Reconnect() }

func ReconnectWith(c *Conn) Reply { return internal.ReconnectWith(c) }

type ConnectFailure = internal.ConnectFailure

type CloseReason = internal.CloseReason

type CloseOrigin = internal.CloseOrigin

const (
	OriginLocal  = internal.OriginLocal
	OriginRemote = internal.OriginRemote
	OriginError  = internal.OriginError
)

// --- Connection & options ---

type Conn = internal.Conn

type Options = internal.Options

// NewConn builds an unopened Conn, e.g. to hand to ReconnectWith.
func NewConn(rawurl string, opts *Options) (*Conn, error) { return internal.NewConn(rawurl, opts) }

// LoadOptions reads Options from a YAML file.
func LoadOptions(path string) (*Options, error) { return internal.LoadOptions(path) }

// --- Session ---

type Session = internal.Session

// Start connects a session to rawurl and attaches h. See internal.Start for
// the sync/async contract.
func Start(ctx context.Context, rawurl string, h Handler, opts *Options) (*Session, error) {
	return internal.Start(ctx, rawurl, h, opts)
}

// --- Errors ---

type URLError = internal.URLError
type ConnError = internal.ConnError
type RequestError = internal.RequestError
type HandshakeError = internal.HandshakeError
type FrameEncodeError = internal.FrameEncodeError
type FrameParseError = internal.FrameParseError
type BadResponseError = internal.BadResponseError
type HandlerPanicError = internal.HandlerPanicError
type CloseError = internal.CloseError

var ErrSessionTerminated = internal.ErrSessionTerminated

// --- Telemetry ---

// EnableMetrics switches frame/reconnect accounting on.
func EnableMetrics() { internal.EnableMetrics() }

// StartMetricsServer serves /metrics on the provided address until context
// cancellation.
func StartMetricsServer(ctx context.Context, addr string) error {
	return internal.StartMetricsServer(ctx, addr)
}
