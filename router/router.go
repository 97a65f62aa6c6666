// Package router is the address registry of a loom node: it issues opaque
// engine addresses, spawns engines under supervising groups, and routes
// messages to addresses, FIFO per mailbox.
//
// Engines share nothing; everything crossing an engine boundary travels as
// a message through here.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loomnet/loom/types"
	"github.com/loomnet/loom/types/msgengine"
	"golang.org/x/exp/maps"
)

var (
	ErrUnknownGroup = errors.New("unknown supervising group")
	ErrGroupClosed  = errors.New("supervising group is closed")
)

// Registry maps addresses to live mailboxes. One instance per node; it is
// handed explicitly to the components that need it.
type Registry struct {
	ctx    context.Context
	ctxCan context.CancelFunc

	mu     sync.RWMutex
	addrs  map[types.Addr]*binding
	groups map[string]*group
}

type binding struct {
	inbox chan<- msgengine.Message
	ctx   context.Context
}

// group is a structured-concurrency scope: its context parents every
// engine spawned under it, and its WaitGroup tracks their Run loops.
type group struct {
	ctx    context.Context
	ctxCan context.CancelFunc
	wg     sync.WaitGroup
}

func New(pCtx context.Context) *Registry {
	ctx, ctxCan := context.WithCancel(pCtx)

	return &Registry{
		ctx:    ctx,
		ctxCan: ctxCan,
		addrs:  make(map[types.Addr]*binding),
		groups: make(map[string]*group),
	}
}

// Register issues a fresh unique address. It never fails.
//
// The address is unbound until Spawn binds one to a live mailbox; routing
// to an unbound address drops the message.
func (r *Registry) Register() types.Addr {
	return types.MakeAddr()
}

func (r *Registry) AddGroup(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[name]; ok {
		return fmt.Errorf("group %q already exists", name)
	}

	ctx, ctxCan := context.WithCancel(r.ctx)
	r.groups[name] = &group{ctx: ctx, ctxCan: ctxCan}

	return nil
}

// Spawn constructs an engine under the named supervising group, binds a
// fresh address to its mailbox, and starts its Run loop on its own
// goroutine. It returns as soon as the loop is started; the engine's
// initialization happens asynchronously.
func (r *Registry) Spawn(groupName string, spec EngineSpec) (types.Addr, error) {
	r.mu.RLock()
	g, ok := r.groups[groupName]
	r.mu.RUnlock()

	if !ok {
		return types.Addr{}, fmt.Errorf("%w: %q", ErrUnknownGroup, groupName)
	}
	if types.IsContextDone(g.ctx) {
		return types.Addr{}, fmt.Errorf("%w: %q", ErrGroupClosed, groupName)
	}

	addr := r.Register()

	engine := spec(g.ctx, addr)

	inbox := engine.Inbox()
	if inbox == nil {
		return types.Addr{}, fmt.Errorf("engine spec for group %q produced no mailbox", groupName)
	}

	r.mu.Lock()
	// The group may have been closed while the engine was constructed; the
	// wg.Add must not race CloseGroup's Wait, so re-check under the lock.
	if types.IsContextDone(g.ctx) {
		r.mu.Unlock()
		return types.Addr{}, fmt.Errorf("%w: %q", ErrGroupClosed, groupName)
	}
	g.wg.Add(1)
	r.addrs[addr] = &binding{inbox: inbox, ctx: engine.Ctx()}
	r.mu.Unlock()

	go func() {
		defer g.wg.Done()
		defer r.unbind(addr)
		defer func() {
			if v := recover(); v != nil {
				slog.Error("engine panicked", "addr", addr, "panic", v)
			}
		}()

		engine.Run()
	}()

	return addr, nil
}

func (r *Registry) unbind(addr types.Addr) {
	r.mu.Lock()
	delete(r.addrs, addr)
	r.mu.Unlock()
}

// Send delivers msg to the engine's mailbox, FIFO relative to other sends
// to the same address. Messages to a dead or unbound address are dropped;
// the caller is never crashed or blocked by them.
func (r *Registry) Send(addr types.Addr, msg msgengine.Message) {
	r.mu.RLock()
	b, ok := r.addrs[addr]
	r.mu.RUnlock()

	if !ok {
		slog.Debug("dropping message to dead address", "addr", addr, "msg", fmt.Sprintf("%T", msg))
		return
	}

	select {
	case b.inbox <- msg:
	case <-b.ctx.Done():
		slog.Debug("dropping message to cancelled engine", "addr", addr, "msg", fmt.Sprintf("%T", msg))
	}
}

// Alive reports whether the address is bound to an engine that has not
// been cancelled.
func (r *Registry) Alive(addr types.Addr) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.addrs[addr]

	return ok && !types.IsContextDone(b.ctx)
}

// CloseGroup cancels every engine in the group and waits for their Run
// loops to return. The group name becomes unknown afterwards.
func (r *Registry) CloseGroup(name string) error {
	r.mu.Lock()
	g, ok := r.groups[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownGroup, name)
	}
	g.ctxCan()
	delete(r.groups, name)
	r.mu.Unlock()

	g.wg.Wait()

	return nil
}

// Close tears down all groups and waits for every engine to stop.
func (r *Registry) Close() {
	r.mu.Lock()
	gs := maps.Values(r.groups)
	maps.Clear(r.groups)
	r.mu.Unlock()

	r.ctxCan()

	for _, g := range gs {
		g.wg.Wait()
	}
}
