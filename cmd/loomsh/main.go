package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/LukaGiorgadze/gonull"
	"github.com/abiosoft/ishell/v2"
	"github.com/loomnet/loom/node"
	"github.com/loomnet/loom/transport"
	"github.com/loomnet/loom/types"
	"github.com/loomnet/loom/types/key"
)

var (
	programLevel = new(slog.LevelVar) // Info by default

	privKey *key.NodePrivate

	requireAuth bool
	maxPeers    gonull.Nullable[uint]
	allowed     []netip.Prefix

	n *node.Node
)

func main() {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: programLevel, AddSource: true})
	slog.SetDefault(slog.New(h))
	programLevel.Set(slog.LevelDebug)

	shell := ishell.New()

	shell.SetHomeHistoryPath(".loomsh_history")

	shell.Println("Loom Interactive Shell")

	traceCmd := &ishell.Cmd{
		Name: "trace",
		Help: "set log level to trace",
		Func: func(c *ishell.Context) {
			programLevel.Set(-8)
		},
	}

	debugCmd := &ishell.Cmd{
		Name: "debug",
		Help: "set log level to debug",
		Func: func(c *ishell.Context) {
			programLevel.Set(slog.LevelDebug)
		},
	}

	infoCmd := &ishell.Cmd{
		Name: "info",
		Help: "set log level to info",
		Func: func(c *ishell.Context) {
			programLevel.Set(slog.LevelInfo)
		},
	}

	shell.AddCmd(traceCmd)
	shell.AddCmd(debugCmd)
	shell.AddCmd(infoCmd)

	shell.AddCmd(keyCmd())
	shell.AddCmd(ndCmd())
	shell.AddCmd(listenCmd())
	shell.AddCmd(connectCmd())
	shell.AddCmd(sendCmd())
	shell.AddCmd(peersCmd())
	shell.AddCmd(closeCmd())

	shell.Run()

	if n != nil {
		n.Close()
	}
}

// Key commands
func keyCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "key",
		Help: "private key setting, generating, and reading",
		Func: func(c *ishell.Context) {
			if privKey == nil {
				c.Println("key: nil")
			} else {
				c.Println("key:", privKey.Marshal())
			}
		},
	}

	c.AddCmd(&ishell.Cmd{
		Name: "gen",
		Help: "generate a new key",
		Func: func(c *ishell.Context) {
			k := key.NewNode()
			privKey = &k

			c.Println("key generated:", privKey.Marshal())
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "set",
		Help: "set a key",
		Func: func(c *ishell.Context) {
			var line string
			if len(c.Args) == 0 {
				c.Println("enter the key, with 'privkey:' prefix")
				line = c.ReadLine()
			} else {
				line = c.Args[0]
			}

			if p, err := key.UnmarshalPrivate(line); err != nil {
				c.Err(err)
				return
			} else {
				privKey = p
			}
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "file",
		Help: "load (or create) a key file",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(errors.New("give the key file path in args"))
				return
			}

			p, err := node.LoadOrCreateKey(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}

			privKey = &p

			c.Println("key loaded:", privKey.Public().Marshal())
		},
	})

	c.AddCmd(&ishell.Cmd{Name: "pub", Help: "show the pubkey", Func: func(c *ishell.Context) {
		if privKey != nil {
			c.Println("pub:", privKey.Public().Marshal())
		} else {
			c.Err(errors.New("private key not set"))
		}
	}})

	return c
}

// Node commands
func ndCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "nd",
		Help: "loom node and subcommands",
		Func: func(c *ishell.Context) {
			if n == nil {
				c.Println("node: nil")
			} else {
				c.Println("node:", n.Key().Marshal())
			}

			c.Println("auth:", requireAuth)

			if maxPeers.Valid {
				c.Println("cap:", maxPeers.Val)
			} else {
				c.Println("cap: none")
			}

			c.Println("allow:", allowed)
		},
	}

	c.AddCmd(&ishell.Cmd{
		Name: "create",
		Help: "create a new node, closing the previous one if it already existed",
		Func: func(c *ishell.Context) {
			if n != nil {
				slog.Info("previous node exists, closing...")
				n.Close()

				n = nil
			}

			var priv key.NodePrivate
			if privKey != nil {
				priv = *privKey
			}

			nn, err := node.New(node.Options{
				Priv:         priv,
				RequireAuth:  requireAuth,
				AllowedCIDRs: allowed,
				MaxPeers:     maxPeers,
			})
			if err != nil {
				c.Err(err)
				return
			}

			n = nn

			go consumeEvents(nn)

			c.Println("node created:", nn.Key().Marshal())
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "auth",
		Help: "set whether new nodes require handshake auth: on|off",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Println("auth:", requireAuth)
				return
			}

			switch c.Args[0] {
			case "on":
				requireAuth = true
			case "off":
				requireAuth = false
			default:
				c.Err(errors.New("expected on or off"))
				return
			}

			c.Println("set auth:", requireAuth)
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "cap",
		Help: "set the peer cap for new nodes: <n>|none",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(errors.New("give the cap in args"))
				return
			}

			if c.Args[0] == "none" {
				maxPeers = gonull.Nullable[uint]{}

				c.Println("set cap: none")
				return
			}

			if i, err := strconv.ParseUint(c.Args[0], 10, 32); err != nil {
				c.Err(err)
			} else {
				maxPeers = gonull.NewNullable(uint(i))

				c.Println("set cap:", maxPeers.Val)
			}
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "allow",
		Help: "set the accept allowlist for new nodes: <cidr,...>|none",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(errors.New("give the cidrs in args"))
				return
			}

			if c.Args[0] == "none" {
				allowed = nil

				c.Println("set allow: none")
				return
			}

			prefixes := make([]netip.Prefix, 0)

			for _, s := range strings.Split(c.Args[0], ",") {
				p, err := netip.ParsePrefix(s)
				if err != nil {
					c.Err(err)
					return
				}

				prefixes = append(prefixes, p)
			}

			allowed = prefixes

			c.Println("set allow:", allowed)
		},
	})

	return c
}

func listenCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "listen",
		Help: "listen on an endpoint: <tcp://host:port | unix://path>",
		Func: func(c *ishell.Context) {
			if n == nil {
				c.Err(errors.New("node does not exist"))
				return
			}
			if len(c.Args) == 0 {
				c.Err(errors.New("give the endpoint in args"))
				return
			}

			ep, err := types.ParseEndpoint(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}

			bound, err := n.Listen(ep)
			if err != nil {
				c.Err(err)
				return
			}

			c.Println("listening on", bound)
		},
	}

	c.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "stop listening on an endpoint",
		Func: func(c *ishell.Context) {
			if n == nil {
				c.Err(errors.New("node does not exist"))
				return
			}
			if len(c.Args) == 0 {
				c.Err(errors.New("give the endpoint in args"))
				return
			}

			ep, err := types.ParseEndpoint(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}

			n.Unlisten(ep)

			c.Println("stopped listening on", ep)
		},
	})

	return c
}

func connectCmd() *ishell.Cmd {
	return &ishell.Cmd{
		Name: "connect",
		Help: "connect to a peer: <tcp://host:port | unix://path>",
		Func: func(c *ishell.Context) {
			if n == nil {
				c.Err(errors.New("node does not exist"))
				return
			}
			if len(c.Args) == 0 {
				c.Err(errors.New("give the endpoint in args"))
				return
			}

			ep, err := types.ParseEndpoint(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}

			n.Connect(ep)

			c.Println("connecting to", ep)
		},
	}
}

func sendCmd() *ishell.Cmd {
	return &ishell.Cmd{
		Name: "send",
		Help: "send text to a peer: <endpoint> <text...>",
		Func: func(c *ishell.Context) {
			if n == nil {
				c.Err(errors.New("node does not exist"))
				return
			}
			if len(c.Args) < 2 {
				c.Err(errors.New("give the endpoint and text in args"))
				return
			}

			ep, err := types.ParseEndpoint(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}

			n.SendTo(ep, []byte(strings.Join(c.Args[1:], " ")))
		},
	}
}

func peersCmd() *ishell.Cmd {
	return &ishell.Cmd{
		Name: "peers",
		Help: "show the peer table",
		Func: func(c *ishell.Context) {
			if n == nil {
				c.Err(errors.New("node does not exist"))
				return
			}

			infos := n.Peers()
			if len(infos) == 0 {
				c.Println("no peers")
				return
			}

			for _, p := range infos {
				line := fmt.Sprintf("%s  %s", p.Peer, p.Status)

				if !p.Key.IsZero() {
					line += "  " + p.Key.Debug()
				}
				if p.Reason != "" {
					line += "  (" + p.Reason + ")"
				}

				c.Println(line)
			}
		},
	}
}

func closeCmd() *ishell.Cmd {
	return &ishell.Cmd{
		Name: "close",
		Help: "shut down a peer connection (again to forget it): <endpoint>",
		Func: func(c *ishell.Context) {
			if n == nil {
				c.Err(errors.New("node does not exist"))
				return
			}
			if len(c.Args) == 0 {
				c.Err(errors.New("give the endpoint in args"))
				return
			}

			ep, err := types.ParseEndpoint(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}

			n.ShutdownPeer(ep)
		},
	}
}

func consumeEvents(n *node.Node) {
	for ev := range n.Events() {
		switch ev := ev.(type) {
		case transport.PeerConnected:
			slog.Info("peer connected", "peer", ev.Peer, "kind", ev.Kind, "key", ev.Key.Debug())
		case transport.PeerChunk:
			slog.Info("chunk", "peer", ev.Peer, "len", len(ev.Data), "text", string(ev.Data))
		case transport.PeerDisconnected:
			slog.Info("peer disconnected", "peer", ev.Peer, "reason", ev.Reason)
		case transport.ListenerClosed:
			slog.Warn("listener closed", "bind", ev.Bind, "reason", ev.Reason)
		}
	}
}
