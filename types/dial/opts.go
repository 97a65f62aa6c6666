package dial

import (
	"time"
)

const DefaultKeepAlive = time.Second * 15

type Opts struct {
	// TCP keep-alive period. Has no effect on unix sockets.
	//
	// If not set, will use DefaultKeepAlive.
	KeepAlive time.Duration
}

func (opts *Opts) SetDefaults() {
	if opts.KeepAlive == 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
}
