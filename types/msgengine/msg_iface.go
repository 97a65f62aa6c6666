package msgengine

// This file contains the Message interface, and dud bindings

type Message interface {
	emsg()
}

func (m *ConnSend) emsg()        {}
func (m *ConnShutdown) emsg()    {}
func (m *TptConnOpened) emsg()   {}
func (m *TptConnChunk) emsg()    {}
func (m *TptConnClosed) emsg()   {}
func (m *TptConnect) emsg()      {}
func (m *TptListen) emsg()       {}
func (m *TptUnlisten) emsg()     {}
func (m *TptSendTo) emsg()       {}
func (m *TptShutdownPeer) emsg() {}
func (m *TptPeers) emsg()        {}
