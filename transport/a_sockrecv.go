package transport

import (
	"context"
	"slices"

	"github.com/loomnet/loom/router"
	"github.com/loomnet/loom/types"
)

// RecvChunk is one socket read: either bytes, or the error that ended the
// stream. A read never produces both.
type RecvChunk struct {
	data []byte

	err error
}

// SockRecv pumps blocking reads from a stream socket into a channel, in
// read order. It does not own the socket; the connection engine that
// started it does, and stops it by closing the socket.
type SockRecv struct {
	*router.EngineCommon

	conn types.StreamConn

	outCh chan RecvChunk
}

func MakeSockRecv(conn types.StreamConn, pCtx context.Context) *SockRecv {
	return &SockRecv{
		conn:  conn,
		outCh: make(chan RecvChunk, SockRecvChunkChanBuffer),

		EngineCommon: router.MakeCommon(pCtx, -1),
	}
}

func (r *SockRecv) Run() {
	defer func() {
		if v := recover(); v != nil {
			router.L(r).Error("panicked", "err", v)
			r.Cancel()
		}
	}()

	if !r.Running().CheckOrMark() {
		router.L(r).Warn("tried to run engine, while already running")
		return
	}

	var buf = make([]byte, ReadBufferSize)

	for {
		n, err := r.conn.Read(buf)

		if n > 0 {
			chunk := slices.Clone(buf[:n])

			select {
			case <-r.Ctx().Done():
				return
			case r.outCh <- RecvChunk{data: chunk}:
				// fallthrough continue
			}
		}

		if err != nil {
			select {
			case <-r.Ctx().Done():
			case r.outCh <- RecvChunk{err: err}:
			}

			return
		}
	}
}

func (r *SockRecv) Close() {
	// The socket belongs to the connection engine; nothing to do here.
}
