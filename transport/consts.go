package transport

const (
	// ReadBufferSize is the size of a connection's socket read buffer; a
	// single chunk is never larger than this.
	ReadBufferSize = 1 << 16

	// Inbox
	ConnInboxChLen      = 256
	TransportInboxChLen = 32

	// Chunk
	SockRecvChunkChanBuffer = 256

	// Events
	EventChLen = 256
)
