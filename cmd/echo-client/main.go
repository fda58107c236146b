// Command echo-client dials an echo-server (S1 scenario, spec.md §8),
// writes each line of stdin as a message, and prints whatever comes back,
// wiring in the frame codec and the same optional compress/crypt codecs the
// server accepts — mirroring the teacher's client/main.go flag layout.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/xtaci/eventloop/bootstrap"
	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/codec/compress"
	"github.com/xtaci/eventloop/codec/crypt"
	"github.com/xtaci/eventloop/codec/frame"
	"github.com/xtaci/eventloop/eventloop"
	"github.com/xtaci/eventloop/internal/xlog"
	"github.com/xtaci/eventloop/transport/kcp"
	"github.com/xtaci/eventloop/transport/tcp"
)

var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "echo-client"
	app.Usage = "eventloop echo client (S1)"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "connect", Value: "127.0.0.1:12948", Usage: "server address"},
		&cli.StringFlag{Name: "transport", Value: "tcp", Usage: "tcp, kcp"},
		&cli.StringFlag{Name: "key", Value: "", Usage: "pre-shared secret; empty disables the crypt codec"},
		&cli.StringFlag{Name: "crypt", Value: "salsa20", Usage: "salsa20, blowfish"},
		&cli.BoolFlag{Name: "compress", Usage: "enable the snappy compress codec"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		xlog.Errorf("echo-client: %v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	group := eventloop.NewGroup("client", 1)

	var factory bootstrap.ChannelFactory
	var remote channel.Address
	switch c.String("transport") {
	case "kcp":
		factory = kcp.ChannelFactory
		remote = kcp.Addr(c.String("connect"))
	default:
		factory = tcp.ChannelFactory
		remote = tcp.Addr(c.String("connect"))
	}

	replies := make(chan []byte, 16)

	b := bootstrap.NewBootstrap(group, factory)
	b.Handler(func(p *channel.Pipeline) {
		_ = p.AddLast("frame-decoder", frame.NewDecoder())
		_ = p.AddLast("frame-encoder", frame.NewEncoder())
		if c.Bool("compress") {
			_ = p.AddLast("compress-decoder", compress.NewDecoder())
			_ = p.AddLast("compress-encoder", compress.NewEncoder())
		}
		if key := c.String("key"); key != "" {
			method := crypt.Method(c.String("crypt"))
			derived := crypt.DeriveKey(method, key, 4096)
			dec, err := crypt.NewDecoder(method, derived)
			if err != nil {
				xlog.Errorf("echo-client: crypt decoder: %v", err)
			} else {
				_ = p.AddLast("crypt-decoder", dec)
			}
			enc, err := crypt.NewEncoder(method, derived)
			if err != nil {
				xlog.Errorf("echo-client: crypt encoder: %v", err)
			} else {
				_ = p.AddLast("crypt-encoder", enc)
			}
		}
		_ = p.AddLast("capture", &replyHandler{replies: replies})
	})

	ch, connectFuture := b.Connect(remote)
	if err := connectFuture.Await(); err != nil {
		return err
	}
	xlog.Printf("echo-client: connected to %s (%s)", remote.String(), c.String("transport"))

	go func() {
		for data := range replies {
			fmt.Printf("< %s\n", data)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	alloc := ch.Config().Allocator
	for scanner.Scan() {
		line := scanner.Bytes()
		buf := alloc.Buffer(len(line), len(line))
		if err := buf.WriteBytes(line); err != nil {
			xlog.Errorf("echo-client: write: %v", err)
			continue
		}
		if err := ch.WriteAndFlush(buf).Await(); err != nil {
			xlog.Errorf("echo-client: flush: %v", err)
		}
	}
	return ch.Close().Await()
}

// replyHandler prints every message the server echoes back.
type replyHandler struct {
	channel.HandlerBase
	replies chan<- []byte
}

func (h *replyHandler) ChannelRead(ctx channel.Context, msg interface{}) {
	bb := msg.(interface{ Bytes() []byte })
	data := append([]byte{}, bb.Bytes()...)
	if r, ok := msg.(interface{ Release() bool }); ok {
		r.Release()
	}
	h.replies <- data
}

func (h *replyHandler) ExceptionCaught(ctx channel.Context, cause error) {
	xlog.Errorf("echo-client: %v", cause)
	_ = ctx.Channel().Close()
}
