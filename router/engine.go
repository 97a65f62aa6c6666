package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/loomnet/loom/types"
	"github.com/loomnet/loom/types/msgengine"
)

// Engine is a single-goroutine message loop. Its mailbox is its only
// public surface; Run owns all internal state.
type Engine interface {
	// Run starts the engine's message loop, it is expected to be started on a goroutine by the registry.
	Run()

	// Inbox is the send side of the engine's mailbox.
	Inbox() chan<- msgengine.Message

	// Cancel cancels the engine's context.
	Cancel()

	// Ctx returns the engine's context.
	Ctx() context.Context

	// Close performs the engine's terminal cleanup. Run calls it on the way out.
	Close()
}

// EngineSpec constructs an engine. ctx is the supervising group's context,
// self is the address the registry will bind to the engine's mailbox.
type EngineSpec func(ctx context.Context, self types.Addr) Engine

// EngineCommon keeps common engine fields and implements most of Engine.
// Embed it and add Run and Close.
type EngineCommon struct {
	inbox   chan msgengine.Message
	ctx     context.Context
	ctxCan  context.CancelFunc
	running RunCheck
}

// MakeCommon creates an EngineCommon with a child context of pCtx and an
// inbox of chLen capacity. A negative chLen makes an inbox-less engine,
// for loops that only pump a socket.
func MakeCommon(pCtx context.Context, chLen int) *EngineCommon {
	ctx, ctxCan := context.WithCancel(pCtx)

	var inbox chan msgengine.Message = nil

	if chLen >= 0 {
		inbox = make(chan msgengine.Message, chLen)
	}

	return &EngineCommon{
		inbox:   inbox,
		ctx:     ctx,
		ctxCan:  ctxCan,
		running: MakeRunCheck(),
	}
}

func (ec *EngineCommon) Inbox() chan<- msgengine.Message {
	return ec.inbox
}

// Mailbox is the receive side of the inbox, for the engine's own Run loop.
func (ec *EngineCommon) Mailbox() <-chan msgengine.Message {
	return ec.inbox
}

func (ec *EngineCommon) Ctx() context.Context {
	return ec.ctx
}

func (ec *EngineCommon) Cancel() {
	ec.ctxCan()
}

func (ec *EngineCommon) Running() *RunCheck {
	return &ec.running
}

// RunCheck is a wrapper around an atomic boolean, it is used to check that
// an engine's Run is only ever entered once.
type RunCheck struct {
	*atomic.Bool
}

func MakeRunCheck() RunCheck {
	return RunCheck{
		&atomic.Bool{},
	}
}

// CheckOrMark atomically checks if its true, else marks it as true, returns false if it was already true.
func (rc *RunCheck) CheckOrMark() bool {
	return rc.CompareAndSwap(false, true)
}

// L returns a logger annotated with the engine's type.
func L(e Engine) *slog.Logger {
	return slog.With("engine", fmt.Sprintf("%T", e))
}

// LogUnknownMessage logs a message that fell through an engine's handler.
func LogUnknownMessage(e Engine, msg msgengine.Message) {
	L(e).Warn("unknown message received", "msg", fmt.Sprintf("%T", msg))
}
