package router

// This file contains mock engines, for testing purposes.

import (
	"context"
	"sync"

	"github.com/loomnet/loom/types"
	"github.com/loomnet/loom/types/msgengine"
)

type MockEngine struct {
	*EngineCommon

	self types.Addr

	RunFunc   func(m *MockEngine)
	CloseFunc func(m *MockEngine)
}

func (m *MockEngine) Run() {
	if !m.Running().CheckOrMark() {
		L(m).Warn("tried to run engine, while already running")
		return
	}

	if m.RunFunc != nil {
		m.RunFunc(m)
		return
	}

	for {
		select {
		case <-m.Ctx().Done():
			m.Close()
			return
		case <-m.Mailbox():
		}
	}
}

func (m *MockEngine) Close() {
	if m.CloseFunc != nil {
		m.CloseFunc(m)
	}
}

func MockEngineSpec(opt func(m *MockEngine)) EngineSpec {
	return func(ctx context.Context, self types.Addr) Engine {
		m := &MockEngine{
			EngineCommon: MakeCommon(ctx, 8),
			self:         self,
		}

		if opt != nil {
			opt(m)
		}

		return m
	}
}

// Recorder collects every message a mock engine receives, in arrival order.
type Recorder struct {
	mu   sync.Mutex
	msgs []msgengine.Message
}

func (r *Recorder) add(msg msgengine.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.msgs = append(r.msgs, msg)
}

func (r *Recorder) Msgs() []msgengine.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]msgengine.Message(nil), r.msgs...)
}

func RecordingSpec(rec *Recorder) EngineSpec {
	return MockEngineSpec(func(m *MockEngine) {
		m.RunFunc = func(m *MockEngine) {
			for {
				select {
				case <-m.Ctx().Done():
					m.Close()
					return
				case msg := <-m.Mailbox():
					rec.add(msg)
				}
			}
		}
	})
}
